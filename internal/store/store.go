// Package store defines the persistence contract shared by the file and
// relational backends.
package store

import (
	"context"
	"errors"

	"magazyn/internal/model"
	"magazyn/internal/query"
)

var (
	// ErrNotFound is returned when a scoped record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on a case-insensitive unique key collision
	ErrConflict = errors.New("record already exists")

	// ErrUnavailable wraps failures to reach the backend in time
	ErrUnavailable = errors.New("storage unavailable")
)

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// WarehouseStore persists warehouses and their memberships
type WarehouseStore interface {
	// CreateWarehouse stores the warehouse and the owner membership together
	CreateWarehouse(ctx context.Context, wh *model.Warehouse) error
	FindWarehouseByName(ctx context.Context, name string) (*model.Warehouse, error)
	GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error)
	UpdateWarehousePassword(ctx context.Context, id, passwordHash string) error
	ListWarehousesForUser(ctx context.Context, userID string) ([]model.Warehouse, error)
	// DeleteWarehouse removes the warehouse with its memberships, products and images
	DeleteWarehouse(ctx context.Context, id string) error

	// AddMember is idempotent
	AddMember(ctx context.Context, userID, warehouseID string) error
	IsMember(ctx context.Context, userID, warehouseID string) (bool, error)
	RemoveMember(ctx context.Context, userID, warehouseID string) error
}

// ProductMutator changes a loaded product before it is saved. Returning
// an error aborts the update without persisting anything.
type ProductMutator func(p *model.Product) error

// ProductStore persists products scoped by warehouse
type ProductStore interface {
	ListProducts(ctx context.Context, warehouseID string, params query.Params) (*query.Page, error)
	GetProduct(ctx context.Context, warehouseID, productID string) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	// UpdateProduct loads, mutates and saves the product atomically and
	// returns the saved state.
	UpdateProduct(ctx context.Context, warehouseID, productID string, mutate ProductMutator) (*model.Product, error)
	DeleteProduct(ctx context.Context, warehouseID, productID string) error
}

// Store is a complete backend
type Store interface {
	UserStore
	WarehouseStore
	ProductStore

	Ping(ctx context.Context) error
	Close() error
}

// Dataset is a full copy of a backend's records
type Dataset struct {
	Users       []model.User
	Warehouses  []model.Warehouse
	Memberships []model.Membership
	Products    []model.Product
}

// Exporter can dump every record
type Exporter interface {
	Export(ctx context.Context) (*Dataset, error)
}

// Importer replaces every record with the given dataset in one step
type Importer interface {
	Import(ctx context.Context, ds *Dataset) error
}
