// Package storetest is a behavioural suite every store.Store must pass
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/store"
)

// Factory returns a fresh, empty store for one test
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// Run executes the whole suite
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(*testing.T, store.Store){
		"UserUniqueCaseInsensitive":   testUserUnique,
		"UserPasswordUpdate":          testUserPasswordUpdate,
		"WarehouseOwnerMembership":    testWarehouseOwnerMembership,
		"WarehouseNameConflict":       testWarehouseConflict,
		"MembershipIdempotent":        testMembershipIdempotent,
		"WarehouseDeleteCascades":     testWarehouseDeleteCascades,
		"ListWithoutFilters":          testListAll,
		"ListFiltersSoundAndComplete": testListFilters,
		"ListFacetsIgnoreSelection":   testFacets,
		"ListPriceNullsLast":          testPriceNullsLast,
		"ListPagination":              testPagination,
		"ImagesRoundTrip":             testImagesRoundTrip,
		"UpdateKeepsAbsentImages":     testUpdateKeepsImages,
		"UpdateMutatorErrorAborts":    testUpdateAbort,
		"DeleteMissingProduct":        testDeleteMissing,
		"ProductsScopedByWarehouse":   testScoping,
		"ListFiltersByOfferedValues":  testFilterByOfferedValues,
		"ListNameSortByteOrder":       testNameSortByteOrder,
		"ImageIDsScopedByProduct":     testImageIDsPerProduct,
	}
	for name, fn := range tests {
		fn := fn
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func newUser(t *testing.T, s store.Store, username string) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.NewString(), Username: username, PasswordHash: "hash-" + username}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newWarehouse(t *testing.T, s store.Store, owner *model.User, name string) *model.Warehouse {
	t.Helper()
	wh := &model.Warehouse{ID: uuid.NewString(), Name: name, PasswordHash: "hash", OwnerID: owner.ID}
	require.NoError(t, s.CreateWarehouse(context.Background(), wh))
	return wh
}

func newProduct(t *testing.T, s store.Store, wh *model.Warehouse, mutate func(*model.Product)) *model.Product {
	t.Helper()
	p := &model.Product{ID: uuid.NewString(), WarehouseID: wh.ID, Name: "product", CreatedAt: epoch}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func ids(items []model.Product) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}

func testUserUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "Tester")

	err := s.CreateUser(ctx, &model.User{ID: uuid.NewString(), Username: "tester", PasswordHash: "x"})
	assert.ErrorIs(t, err, store.ErrConflict)

	found, err := s.FindUserByUsername(ctx, "TESTER")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Equal(t, "Tester", found.Username)

	_, err = s.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUserPasswordUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "tester")

	require.NoError(t, s.UpdateUserPassword(ctx, u.ID, "new-hash"))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, s.UpdateUserPassword(ctx, uuid.NewString(), "x"), store.ErrNotFound)
}

func testWarehouseOwnerMembership(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Test Magazyn")

	member, err := s.IsMember(ctx, owner.ID, wh.ID)
	require.NoError(t, err)
	assert.True(t, member)

	list, err := s.ListWarehousesForUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, wh.ID, list[0].ID)
	assert.Equal(t, owner.ID, list[0].OwnerID)

	found, err := s.FindWarehouseByName(ctx, "test magazyn")
	require.NoError(t, err)
	assert.Equal(t, wh.ID, found.ID)

	require.NoError(t, s.UpdateWarehousePassword(ctx, wh.ID, "new"))
	got, err := s.GetWarehouse(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
}

func testWarehouseConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	newWarehouse(t, s, owner, "Magazyn")

	err := s.CreateWarehouse(ctx, &model.Warehouse{ID: uuid.NewString(), Name: "MAGAZYN", PasswordHash: "x", OwnerID: owner.ID})
	assert.ErrorIs(t, err, store.ErrConflict)

	list, err := s.ListWarehousesForUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1, "failed creation leaves no membership behind")
}

func testMembershipIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	guest := newUser(t, s, "guest")
	wh := newWarehouse(t, s, owner, "Shared")

	require.NoError(t, s.AddMember(ctx, guest.ID, wh.ID))
	require.NoError(t, s.AddMember(ctx, guest.ID, wh.ID))

	list, err := s.ListWarehousesForUser(ctx, guest.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.AddMember(ctx, guest.ID, uuid.NewString()), store.ErrNotFound)

	require.NoError(t, s.RemoveMember(ctx, guest.ID, wh.ID))
	member, err := s.IsMember(ctx, guest.ID, wh.ID)
	require.NoError(t, err)
	assert.False(t, member)
	assert.ErrorIs(t, s.RemoveMember(ctx, guest.ID, wh.ID), store.ErrNotFound)

	_, err = s.GetWarehouse(ctx, wh.ID)
	assert.NoError(t, err, "leaving keeps the warehouse")
}

func testWarehouseDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	guest := newUser(t, s, "guest")
	wh := newWarehouse(t, s, owner, "Doomed")
	other := newWarehouse(t, s, owner, "Survivor")
	require.NoError(t, s.AddMember(ctx, guest.ID, wh.ID))

	p := newProduct(t, s, wh, func(p *model.Product) {
		p.Images = []model.Image{{ID: uuid.NewString(), URL: "http://img/1"}}
	})
	kept := newProduct(t, s, other, nil)

	require.NoError(t, s.DeleteWarehouse(ctx, wh.ID))

	_, err := s.GetWarehouse(ctx, wh.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	member, err := s.IsMember(ctx, guest.ID, wh.ID)
	require.NoError(t, err)
	assert.False(t, member)
	_, err = s.GetProduct(ctx, wh.ID, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetProduct(ctx, other.ID, kept.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteWarehouse(ctx, wh.ID), store.ErrNotFound)
}

func testListAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "A")
	other := newWarehouse(t, s, owner, "B")

	var want []string
	for i := 0; i < 5; i++ {
		p := newProduct(t, s, wh, func(p *model.Product) {
			p.CreatedAt = epoch.Add(time.Duration(i) * time.Hour)
		})
		want = append([]string{p.ID}, want...)
	}
	newProduct(t, s, other, nil)

	page, err := s.ListProducts(ctx, wh.ID, query.Params{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, want, ids(page.Items), "newest first")
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, query.DefaultPageSize, page.PageSize)
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Filters")

	type row struct{ name, code, brand, size, condition, drop string }
	rows := []row{
		{"Bluza Stussy", "SKU-1", "Stussy", "M", "new", "spring"},
		{"Koszulka Nike", "SKU-2", "Nike", "L", "used", "spring"},
		{"Bluza Nike", "X-3", "Nike", "M", "new", "summer"},
		{"Spodnie 100% cotton", "sku_4", "Levis", "XL", "used", ""},
		{"Czapka", "HAT-5", "Nike", "", "new", "summer"},
	}
	for i, r := range rows {
		r := r
		newProduct(t, s, wh, func(p *model.Product) {
			p.Name, p.Code, p.Brand, p.Size, p.Condition, p.Drop = r.name, r.code, r.brand, r.size, r.condition, r.drop
			p.CreatedAt = epoch.Add(time.Duration(i) * time.Minute)
		})
	}

	all, err := s.ListProducts(ctx, wh.ID, query.Params{PageSize: 100})
	require.NoError(t, err)

	cases := []query.Params{
		{Search: "bluza"},
		{Search: "NIKE", Size: []string{"M"}},
		{Code: "sku"},
		{Code: "sku_"},
		{Search: "100%"},
		{Brand: []string{"Nike", "Stussy"}, Condition: []string{"new"}},
		{Drop: []string{"summer"}, Brand: []string{"Nike"}, Size: []string{"M", "L"}},
		{Brand: []string{"Adidas"}},
	}
	for i, params := range cases {
		params.PageSize = 100
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			page, err := s.ListProducts(ctx, wh.ID, params)
			require.NoError(t, err)

			var want []string
			norm := query.Normalize(params)
			for j := range all.Items {
				if query.Matches(&all.Items[j], norm) {
					want = append(want, all.Items[j].ID)
				}
			}
			assert.ElementsMatch(t, want, ids(page.Items))
			assert.EqualValues(t, len(want), page.Total)
		})
	}

	page, err := s.ListProducts(ctx, wh.ID, query.Params{Code: "sku_"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "underscore is literal")
	assert.Equal(t, "sku_4", page.Items[0].Code)
}

func testFacets(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Facets")
	other := newWarehouse(t, s, owner, "Other")

	newProduct(t, s, wh, func(p *model.Product) { p.Brand, p.Size, p.Drop = "Nike", "M", "d1" })
	newProduct(t, s, wh, func(p *model.Product) { p.Brand, p.Size, p.Condition = "Adidas", "L", "new" })
	newProduct(t, s, wh, func(p *model.Product) { p.Brand = "Nike" })
	newProduct(t, s, other, func(p *model.Product) { p.Brand = "Puma" })

	page, err := s.ListProducts(ctx, wh.ID, query.Params{Brand: []string{"Adidas"}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, []string{"Adidas", "Nike"}, page.Filters.Brand)
	assert.Equal(t, []string{"L", "M"}, page.Filters.Size)
	assert.Equal(t, []string{"new"}, page.Filters.Condition)
	assert.Equal(t, []string{"d1"}, page.Filters.Drop)
}

func testPriceNullsLast(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Prices")

	prices := []string{"", "30", "10.5", "", "20"}
	for i, pr := range prices {
		pr := pr
		newProduct(t, s, wh, func(p *model.Product) {
			p.Name = fmt.Sprintf("item-%d", i)
			p.CreatedAt = epoch.Add(time.Duration(i) * time.Minute)
			if pr != "" {
				p.Price = price(pr)
			}
		})
	}

	for _, sortOrder := range []string{query.SortPriceAsc, query.SortPriceDesc} {
		page, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: sortOrder})
		require.NoError(t, err)
		require.Len(t, page.Items, 5)

		var got []string
		for _, p := range page.Items {
			if p.Price.Valid {
				got = append(got, p.Price.Decimal.String())
			} else {
				got = append(got, "null")
			}
		}
		if sortOrder == query.SortPriceAsc {
			assert.Equal(t, []string{"10.5", "20", "30", "null", "null"}, got)
		} else {
			assert.Equal(t, []string{"30", "20", "10.5", "null", "null"}, got)
		}
		// nulls tie-break newest first
		assert.Equal(t, "item-3", page.Items[3].Name)
		assert.Equal(t, "item-0", page.Items[4].Name)
	}

	page, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: query.SortNameDesc})
	require.NoError(t, err)
	assert.Equal(t, "item-4", page.Items[0].Name)
}

func testPagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Pages")

	for i := 0; i < 25; i++ {
		newProduct(t, s, wh, func(p *model.Product) {
			p.Name = fmt.Sprintf("n%02d", i)
			p.CreatedAt = epoch.Add(time.Duration(i) * time.Second)
		})
	}

	page, err := s.ListProducts(ctx, wh.ID, query.Params{Page: 2, PageSize: 10, Sort: query.SortNameAsc})
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.Total)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "n10", page.Items[0].Name)
	assert.Equal(t, "n19", page.Items[9].Name)

	page, err = s.ListProducts(ctx, wh.ID, query.Params{Page: 9, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 9, page.Page)
}

func testImagesRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Images")

	imgs := []model.Image{
		{ID: uuid.NewString(), URL: "http://img/a", Position: 7},
		{ID: uuid.NewString(), URL: "http://img/b", Position: 7},
		{ID: uuid.NewString(), URL: "http://img/c"},
	}
	mainID := imgs[1].ID
	p := newProduct(t, s, wh, func(p *model.Product) {
		p.Images = imgs
		p.MainImageID = &mainID
		p.Price = price("55.5")
	})

	got, err := s.GetProduct(ctx, wh.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 3)
	for i, img := range got.Images {
		assert.Equal(t, imgs[i].ID, img.ID)
		assert.Equal(t, i, img.Position)
	}
	require.NotNil(t, got.MainImageID)
	assert.Equal(t, mainID, *got.MainImageID)
	assert.Equal(t, "55.5", got.Price.Decimal.String())
	assert.True(t, got.CreatedAt.Equal(epoch))

	reordered := []model.Image{got.Images[2], got.Images[0]}
	updated, err := s.UpdateProduct(ctx, wh.ID, p.ID, func(p *model.Product) error {
		p.Images = reordered
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, updated.MainImageID, "main image dropped with its image")

	got, err = s.GetProduct(ctx, wh.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	assert.Equal(t, imgs[2].ID, got.Images[0].ID)
	assert.Equal(t, imgs[0].ID, got.Images[1].ID)
	assert.Equal(t, 1, got.Images[1].Position)
	assert.Nil(t, got.MainImageID)
	assert.Equal(t, imgs[2].ID, got.MainImage().ID)
}

func testUpdateKeepsImages(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Keep")

	a := 4
	p := newProduct(t, s, wh, func(p *model.Product) {
		p.Name = "Nowy produkt"
		p.Brand = "Stussy"
		p.A = &a
		p.Images = []model.Image{{ID: uuid.NewString(), URL: "http://img/1"}}
	})

	updated, err := s.UpdateProduct(ctx, wh.ID, p.ID, func(p *model.Product) error {
		p.Name = "Zaktualizowany"
		p.A = nil
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Zaktualizowany", updated.Name)

	got, err := s.GetProduct(ctx, wh.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zaktualizowany", got.Name)
	assert.Equal(t, "Stussy", got.Brand)
	assert.Nil(t, got.A)
	assert.Len(t, got.Images, 1)
	assert.True(t, got.CreatedAt.Equal(epoch), "creation time is immutable")

	_, err = s.UpdateProduct(ctx, wh.ID, uuid.NewString(), func(*model.Product) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Abort")
	p := newProduct(t, s, wh, func(p *model.Product) { p.Name = "before" })

	boom := errors.New("rejected")
	_, err := s.UpdateProduct(ctx, wh.ID, p.ID, func(p *model.Product) error {
		p.Name = "after"
		p.Images = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, wh.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)
}

func testDeleteMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Delete")
	p := newProduct(t, s, wh, func(p *model.Product) {
		p.Images = []model.Image{{ID: uuid.NewString(), URL: "http://img/1"}}
	})

	assert.ErrorIs(t, s.DeleteProduct(ctx, wh.ID, uuid.NewString()), store.ErrNotFound)
	require.NoError(t, s.DeleteProduct(ctx, wh.ID, p.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, wh.ID, p.ID), store.ErrNotFound)

	page, err := s.ListProducts(ctx, wh.ID, query.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func testScoping(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	mine := newWarehouse(t, s, owner, "Mine")
	theirs := newWarehouse(t, s, owner, "Theirs")
	p := newProduct(t, s, theirs, func(p *model.Product) { p.Name = "theirs" })

	_, err := s.GetProduct(ctx, mine.ID, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateProduct(ctx, mine.ID, p.ID, func(p *model.Product) error {
		p.Name = "hijacked"
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteProduct(ctx, mine.ID, p.ID), store.ErrNotFound)

	got, err := s.GetProduct(ctx, theirs.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "theirs", got.Name)

	page, err := s.ListProducts(ctx, mine.ID, query.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Filters.Brand)
}

func testFilterByOfferedValues(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Padded")

	newProduct(t, s, wh, func(p *model.Product) {
		p.Brand, p.Size, p.Condition, p.Drop = " Nike", "42 ", " new ", "spring"
	})
	p := newProduct(t, s, wh, func(p *model.Product) {
		p.Brand, p.Size, p.Condition, p.Drop = "Adidas", "M", "used", "\tfall"
	})
	_, err := s.UpdateProduct(ctx, wh.ID, p.ID, func(p *model.Product) error {
		p.Brand = "Nike  "
		return nil
	})
	require.NoError(t, err)

	page, err := s.ListProducts(ctx, wh.ID, query.Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Nike"}, page.Filters.Brand)
	assert.Equal(t, []string{"42", "M"}, page.Filters.Size)
	assert.Equal(t, []string{"new", "used"}, page.Filters.Condition)
	assert.Equal(t, []string{"fall", "spring"}, page.Filters.Drop)

	offered := map[string][]string{
		model.FacetBrand:     page.Filters.Brand,
		model.FacetSize:      page.Filters.Size,
		model.FacetCondition: page.Filters.Condition,
		model.FacetDrop:      page.Filters.Drop,
	}
	for facet, values := range offered {
		for _, v := range values {
			var params query.Params
			switch facet {
			case model.FacetBrand:
				params.Brand = []string{v}
			case model.FacetSize:
				params.Size = []string{v}
			case model.FacetCondition:
				params.Condition = []string{v}
			case model.FacetDrop:
				params.Drop = []string{v}
			}
			filtered, err := s.ListProducts(ctx, wh.ID, params)
			require.NoError(t, err)
			assert.NotZero(t, filtered.Total, "%s=%q matches nothing", facet, v)
		}
	}
}

// Names keep non-ASCII letters lowercase: case folding of those differs
// between SQL engines, byte order must not.
func testNameSortByteOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	wh := newWarehouse(t, s, owner, "Sorted")

	want := []string{"a-c", "a_z", "Ab", "ab b", "Zebra", "éclair", "ąbc"}
	for _, i := range []int{4, 6, 1, 3, 0, 5, 2} {
		name := want[i]
		newProduct(t, s, wh, func(p *model.Product) { p.Name = name })
	}

	names := func(items []model.Product) []string {
		out := make([]string, len(items))
		for i := range items {
			out[i] = items[i].Name
		}
		return out
	}

	asc, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: query.SortNameAsc})
	require.NoError(t, err)
	assert.Equal(t, want, names(asc.Items))

	desc, err := s.ListProducts(ctx, wh.ID, query.Params{Sort: query.SortNameDesc})
	require.NoError(t, err)
	reversed := make([]string, len(want))
	for i, n := range want {
		reversed[len(want)-1-i] = n
	}
	assert.Equal(t, reversed, names(desc.Items))
}

func testImageIDsPerProduct(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	first := newWarehouse(t, s, owner, "First")
	second := newWarehouse(t, s, owner, "Second")

	shared := uuid.NewString()
	gallery := func(p *model.Product) {
		p.Images = []model.Image{{ID: shared, URL: "http://img/shared"}}
	}
	a := newProduct(t, s, first, gallery)
	b := newProduct(t, s, first, gallery)
	c := newProduct(t, s, second, gallery)

	other := newProduct(t, s, first, nil)
	_, err := s.UpdateProduct(ctx, first.ID, other.ID, func(p *model.Product) error {
		p.Images = []model.Image{{ID: shared, URL: "http://img/copy"}, {ID: shared, URL: "http://img/again"}}
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, first.ID, other.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	assert.Equal(t, shared, got.Images[0].ID)
	assert.NotEqual(t, shared, got.Images[1].ID, "repeated id inside one product is replaced")

	require.NoError(t, s.DeleteProduct(ctx, first.ID, a.ID))
	for _, p := range []*model.Product{b, c} {
		got, err := s.GetProduct(ctx, p.WarehouseID, p.ID)
		require.NoError(t, err)
		require.Len(t, got.Images, 1)
		assert.Equal(t, shared, got.Images[0].ID)
		assert.Equal(t, "http://img/shared", got.Images[0].URL)
	}
}
