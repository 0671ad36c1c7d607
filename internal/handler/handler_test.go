package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magazyn/internal/middleware"
	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/service"
	"magazyn/internal/store"
	"magazyn/internal/store/memstore"
	"magazyn/pkg/imagestore"
	"magazyn/pkg/jwtutil"
	"magazyn/pkg/password"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	return newTestServerWith(t, openMemstore(t))
}

func openMemstore(t *testing.T) *memstore.Store {
	t.Helper()
	st, err := memstore.Open(filepath.Join(t.TempDir(), "db.json"), nil)
	require.NoError(t, err)
	return st
}

func newTestServerWith(t *testing.T, st store.Store) *echo.Echo {
	t.Helper()
	policy := password.NewPolicy(password.Bcrypt{Cost: 4}, password.SHA256Hex{})
	tokens := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})

	e := echo.New()
	e.Use(middleware.RequestIDMiddleware())
	e.GET("/healthz", NewHealthHandler(st).Check)
	RegisterRoutes(e.Group("/api"), &Services{
		Auth:       service.NewAuthService(st, policy, tokens),
		Warehouses: service.NewWarehouseService(st, policy),
		Products:   service.NewProductService(st, imagestore.NewLocal(t.TempDir(), "/uploads")),
	})
	return e
}

type client struct {
	t     *testing.T
	e     *echo.Echo
	token string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var payload *strings.Reader
	switch b := body.(type) {
	case nil:
		payload = strings.NewReader("")
	case string:
		payload = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		payload = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type sessionBody struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type warehouseBody struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

type productBody struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Price       *float64 `json:"price"`
	MainImageID *string  `json:"mainImageId"`
	Images      []struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		Position int    `json:"position"`
	} `json:"images"`
}

type pageBody struct {
	Items    []productBody `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Filters  struct {
		Brand []string `json:"brand"`
	} `json:"filters"`
}

func register(t *testing.T, e *echo.Echo, username string) *client {
	t.Helper()
	c := &client{t: t, e: e}
	rec := c.do(http.MethodPost, "/api/auth/register", map[string]string{"username": username, "password": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c.token = decode[sessionBody](t, rec).Token
	return c
}

func TestFullFlow(t *testing.T) {
	e := newTestServer(t)
	anon := &client{t: t, e: e}

	rec := anon.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "tester", "password": "tester"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[sessionBody](t, rec)
	assert.Equal(t, "tester", session.User.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = anon.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "tester", "password": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "tester", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid username or password"}`, rec.Body.String())

	rec = anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "tester", "password": "tester"})
	require.Equal(t, http.StatusOK, rec.Code)
	owner := &client{t: t, e: e, token: decode[sessionBody](t, rec).Token}

	rec = owner.do(http.MethodPost, "/api/magazines", map[string]string{"name": "Magazyn", "password": "sekret"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wh := decode[warehouseBody](t, rec)
	assert.Equal(t, session.User.ID, wh.OwnerID)
	assert.NotContains(t, rec.Body.String(), "sekret")

	rec = owner.do(http.MethodGet, "/api/magazines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]warehouseBody](t, rec), 1)

	base := "/api/magazines/" + wh.ID + "/products"
	rec = owner.do(http.MethodPost, base, `{"name":"Kurtka","brand":"Acme","price":189.99,"images":[{"url":"http://img/1.png"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[productBody](t, rec)
	require.NotNil(t, created.Price)
	assert.InDelta(t, 189.99, *created.Price, 0.0001)
	require.Len(t, created.Images, 1)

	rec = owner.do(http.MethodPut, base+"/"+created.ID, `{"brand":"Other","price":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[productBody](t, rec)
	assert.Equal(t, "Kurtka", updated.Name)
	assert.Equal(t, "Other", updated.Brand)
	assert.Nil(t, updated.Price)
	assert.Len(t, updated.Images, 1)

	rec = owner.do(http.MethodGet, base+"/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Other", decode[productBody](t, rec).Brand)

	rec = owner.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pageBody](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, []string{"Other"}, page.Filters.Brand)

	rec = owner.do(http.MethodDelete, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = owner.do(http.MethodDelete, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = owner.do(http.MethodDelete, "/api/magazines/"+wh.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true,"scope":"deleted"}`, rec.Body.String())
}

func TestMembership(t *testing.T) {
	e := newTestServer(t)
	owner := register(t, e, "owner")
	guest := register(t, e, "guest")

	rec := owner.do(http.MethodPost, "/api/magazines", map[string]string{"name": "Shared", "password": "sekret"})
	require.Equal(t, http.StatusCreated, rec.Code)
	wh := decode[warehouseBody](t, rec)
	base := "/api/magazines/" + wh.ID + "/products"

	assert.Equal(t, http.StatusForbidden, guest.do(http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusForbidden, guest.do(http.MethodDelete, "/api/magazines/"+wh.ID, nil).Code)

	rec = guest.do(http.MethodPost, "/api/magazines/connect", map[string]string{"name": "Shared", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = guest.do(http.MethodPost, "/api/magazines/connect", map[string]string{"name": "shared", "password": "sekret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, wh.ID, decode[warehouseBody](t, rec).ID)

	rec = guest.do(http.MethodPost, base, map[string]string{"name": "From guest"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = guest.do(http.MethodDelete, "/api/magazines/"+wh.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true,"scope":"left"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, guest.do(http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusOK, owner.do(http.MethodGet, base, nil).Code)
}

func TestAccessErrors(t *testing.T) {
	e := newTestServer(t)
	anon := &client{t: t, e: e}
	user := register(t, e, "tester")

	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/magazines", nil).Code)
	bad := &client{t: t, e: e, token: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, bad.do(http.MethodGet, "/api/magazines", nil).Code)

	assert.Equal(t, http.StatusNotFound, user.do(http.MethodGet, "/api/magazines/"+uuid.NewString()+"/products", nil).Code)
	assert.Equal(t, http.StatusNotFound, user.do(http.MethodGet, "/api/magazines/garbage/products", nil).Code)

	rec := user.do(http.MethodPost, "/api/magazines", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = user.do(http.MethodPost, "/api/magazines", map[string]string{"name": " ", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductListing(t *testing.T) {
	e := newTestServer(t)
	user := register(t, e, "tester")
	rec := user.do(http.MethodPost, "/api/magazines", map[string]string{"name": "W", "password": "p"})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/magazines/" + decode[warehouseBody](t, rec).ID + "/products"

	names := []string{"Delta", "alpha", "Charlie", "bravo", "Echo"}
	for i, name := range names {
		body := map[string]any{"name": name, "brand": []string{"Acme", "Zeta"}[i%2], "price": 10 + i}
		require.Equal(t, http.StatusCreated, user.do(http.MethodPost, base, body).Code)
	}

	rec = user.do(http.MethodGet, base+"?sort=name_asc&pageSize=2&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pageBody](t, rec)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Charlie", page.Items[0].Name)
	assert.Equal(t, "Delta", page.Items[1].Name)
	assert.Equal(t, []string{"Acme", "Zeta"}, page.Filters.Brand)

	rec = user.do(http.MethodGet, base+"?brand=Zeta&sort=price_desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[pageBody](t, rec)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "bravo", page.Items[0].Name)

	rec = user.do(http.MethodGet, base+"?search=ALP&pageSize=1000", nil)
	page = decode[pageBody](t, rec)
	assert.Equal(t, 100, page.PageSize)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "alpha", page.Items[0].Name)

	rec = user.do(http.MethodGet, base+"/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingPinger struct{ err error }

func (f failingPinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	e := newTestServer(t)
	rec := (&client{t: t, e: e}).do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := echo.New()
	down.GET("/healthz", NewHealthHandler(failingPinger{errors.New("connection refused")}).Check)
	rec = (&client{t: t, e: down}).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

// downStore answers product writes and logins as if the database stopped
// responding, everything else goes to the wrapped file store.
type downStore struct {
	*memstore.Store
}

var errTimeout = fmt.Errorf("%w: dial tcp 10.0.0.5:5432: i/o timeout", store.ErrUnavailable)

func (downStore) FindUserByUsername(context.Context, string) (*model.User, error) {
	return nil, errTimeout
}

func (downStore) ListProducts(context.Context, string, query.Params) (*query.Page, error) {
	return nil, errTimeout
}

func (downStore) CreateProduct(context.Context, *model.Product) error {
	return errTimeout
}

func (downStore) UpdateProduct(context.Context, string, string, store.ProductMutator) (*model.Product, error) {
	return nil, errTimeout
}

func (downStore) DeleteProduct(context.Context, string, string) error {
	return errTimeout
}

func TestStorageOutageAnswersGenericError(t *testing.T) {
	e := newTestServerWith(t, downStore{openMemstore(t)})
	user := register(t, e, "tester")

	rec := user.do(http.MethodPost, "/api/magazines", map[string]string{"name": "W", "password": "p"})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/magazines/" + decode[warehouseBody](t, rec).ID + "/products"
	item := base + "/" + uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create product", http.MethodPost, base, map[string]string{"name": "Kurtka"}},
		{"update product", http.MethodPut, item, map[string]string{"name": "Nowa"}},
		{"delete product", http.MethodDelete, item, nil},
		{"list products", http.MethodGet, base, nil},
		{"login", http.MethodPost, "/api/auth/login", map[string]string{"username": "tester", "password": "pw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := user.do(tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
		})
	}
}
