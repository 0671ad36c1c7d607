package pgstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/store"
	"magazyn/internal/store/storetest"
)

var epochUTC = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s := openUnmigrated(t)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func openUnmigrated(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)

	s := New(db, 5*time.Second)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openSQLite(t)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestLowerIndexRejectsCaseVariants(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&model.User{ID: uuid.NewString(), Username: "Tester", PasswordHash: "h", Role: "user"}).Error)
	err := s.db.Create(&model.User{ID: uuid.NewString(), Username: "TESTER", PasswordHash: "h", Role: "user"}).Error
	require.Error(t, err, "index enforces uniqueness even without the pre-check")
	assert.ErrorIs(t, translate(err), store.ErrConflict)

	require.NoError(t, s.Ping(ctx))
}

func TestTranslate_Unreachable(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	for _, err := range []error{context.DeadlineExceeded, driver.ErrBadConn, fmt.Errorf("query: %w", dial)} {
		got := translate(err)
		assert.ErrorIs(t, got, store.ErrUnavailable)
		assert.ErrorIs(t, got, err)
	}
	assert.NotErrorIs(t, translate(errors.New("syntax error")), store.ErrUnavailable)

	s := openSQLite(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := s.ListProducts(ctx, uuid.NewString(), query.Params{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestImport_ReplacesEverything(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	stale := &model.User{ID: uuid.NewString(), Username: "stale", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, stale))

	u := model.User{ID: uuid.NewString(), Username: "tester", PasswordHash: "legacy", Role: "user"}
	wh := model.Warehouse{ID: uuid.NewString(), Name: "Test Magazyn", PasswordHash: "legacy", OwnerID: u.ID}
	p := model.Product{
		ID: uuid.NewString(), WarehouseID: wh.ID, Name: "Bluza", CreatedAt: time.UnixMilli(1700000000000).UTC(),
		Images: []model.Image{{ID: uuid.NewString(), URL: "http://img/b"}, {ID: uuid.NewString(), URL: "http://img/a"}},
	}
	ds := &store.Dataset{
		Users:       []model.User{u},
		Warehouses:  []model.Warehouse{wh},
		Memberships: []model.Membership{{UserID: u.ID, WarehouseID: wh.ID}, {UserID: u.ID, WarehouseID: wh.ID}},
		Products:    []model.Product{p},
	}
	require.NoError(t, s.Import(ctx, ds))

	_, err := s.GetUser(ctx, stale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	member, err := s.IsMember(ctx, u.ID, wh.ID)
	require.NoError(t, err)
	assert.True(t, member)

	page, err := s.ListProducts(ctx, wh.ID, query.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Images, 2)
	assert.Equal(t, "http://img/b", page.Items[0].Images[0].URL)
	assert.True(t, page.Items[0].CreatedAt.Equal(p.CreatedAt))
}

func TestImport_SharedImageIDs(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	u := model.User{ID: uuid.NewString(), Username: "tester", PasswordHash: "h", Role: "user"}
	wh := model.Warehouse{ID: uuid.NewString(), Name: "Copies", PasswordHash: "h", OwnerID: u.ID}
	shared := uuid.NewString()
	product := func(name string) model.Product {
		return model.Product{
			ID: uuid.NewString(), WarehouseID: wh.ID, Name: name, CreatedAt: time.UnixMilli(1700000000000).UTC(),
			Images: []model.Image{{ID: shared, URL: "http://img/" + name}},
		}
	}
	ds := &store.Dataset{
		Users:      []model.User{u},
		Warehouses: []model.Warehouse{wh},
		Products:   []model.Product{product("a"), product("b")},
	}
	require.NoError(t, s.Import(ctx, ds))

	page, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: query.SortNameAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, p := range page.Items {
		require.Len(t, p.Images, 1)
		assert.Equal(t, shared, p.Images[0].ID)
		assert.Equal(t, "http://img/"+p.Name, p.Images[0].URL)
	}
}

func TestImport_RollsBackOnFailure(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	keep := &model.User{ID: uuid.NewString(), Username: "keep", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, keep))

	dup := uuid.NewString()
	ds := &store.Dataset{
		Users: []model.User{
			{ID: dup, Username: "a", PasswordHash: "h", Role: "user"},
			{ID: dup, Username: "b", PasswordHash: "h", Role: "user"},
		},
	}
	require.Error(t, s.Import(ctx, ds))

	_, err := s.GetUser(ctx, keep.ID)
	assert.NoError(t, err, "existing rows survive a failed import")
}

func TestOrderClauseRunsOnSQL(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	owner := &model.User{ID: uuid.NewString(), Username: "owner", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, owner))
	wh := &model.Warehouse{ID: uuid.NewString(), Name: "Sorts", PasswordHash: "h", OwnerID: owner.ID}
	require.NoError(t, s.CreateWarehouse(ctx, wh))

	for _, order := range []string{
		query.SortPriceAsc, query.SortPriceDesc, query.SortNameAsc,
		query.SortNameDesc, query.SortCreatedAsc, query.SortCreatedDesc,
	} {
		_, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: order})
		assert.NoError(t, err, order)
	}
}

func TestMigrate_WidensSingleColumnImageKey(t *testing.T) {
	s := openUnmigrated(t)
	ctx := context.Background()

	// schema as created before image ids were scoped by product
	require.NoError(t, s.db.AutoMigrate(&model.User{}, &model.Warehouse{}, &model.Membership{}, &model.Product{}))
	require.NoError(t, s.db.Exec(`CREATE TABLE product_images (
		id uuid, product_id uuid, url text NOT NULL, position integer NOT NULL, PRIMARY KEY (id))`).Error)

	owner := &model.User{ID: uuid.NewString(), Username: "owner", PasswordHash: "h", Role: "user"}
	wh := &model.Warehouse{ID: uuid.NewString(), Name: "Legacy", PasswordHash: "h", OwnerID: owner.ID}
	first := &model.Product{ID: uuid.NewString(), WarehouseID: wh.ID, Name: "first", CreatedAt: epochUTC}
	shared := uuid.NewString()
	require.NoError(t, s.db.Create(owner).Error)
	require.NoError(t, s.db.Create(wh).Error)
	require.NoError(t, s.db.Create(&model.Membership{UserID: owner.ID, WarehouseID: wh.ID}).Error)
	require.NoError(t, s.db.Omit("Images").Create(first).Error)
	require.NoError(t, s.db.Exec("INSERT INTO product_images (id, product_id, url, position) VALUES (?, ?, ?, 0)",
		shared, first.ID, "http://img/legacy").Error)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "upgrade runs once")

	var keyColumns int64
	require.NoError(t, s.db.Raw(`SELECT COUNT(*) FROM pragma_table_info('product_images') WHERE pk > 0`).Scan(&keyColumns).Error)
	assert.EqualValues(t, 2, keyColumns)

	got, err := s.GetProduct(ctx, wh.ID, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 1)
	assert.Equal(t, shared, got.Images[0].ID)
	assert.Equal(t, "http://img/legacy", got.Images[0].URL)

	second := &model.Product{
		ID: uuid.NewString(), WarehouseID: wh.ID, Name: "second", CreatedAt: epochUTC,
		Images: []model.Image{{ID: shared, URL: "http://img/copy"}},
	}
	require.NoError(t, s.CreateProduct(ctx, second), "image id shared with another product")
}
