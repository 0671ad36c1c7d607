// Package memstore keeps the whole dataset in memory and persists it to a
// single JSON file after every mutation.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/store"
)

// Store is a file backed store.Store
type Store struct {
	mu    sync.RWMutex
	path  string
	state *snapshot
	log   *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open loads the data file, creating an empty one when it does not exist.
// A file that cannot be parsed is reported instead of being overwritten.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, log: log}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.state = emptySnapshot()
		if err := s.persist(s.state); err != nil {
			return nil, err
		}
		log.Info("Created empty data file", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	default:
		state, err := decodeDocument(data)
		if err != nil {
			return nil, fmt.Errorf("parse data file %s: %w", path, err)
		}
		s.state = state
		log.Info("Loaded data file",
			zap.String("path", path),
			zap.Int("users", len(state.users)),
			zap.Int("warehouses", len(state.warehouses)))
	}
	return s, nil
}

// Ping verifies the data directory is still writable
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

func (s *Store) Close() error { return nil }

// view runs fn under the read lock
func (s *Store) view(ctx context.Context, fn func(*snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// update applies fn to a copy of the state and swaps it in only after the
// copy has been written to disk.
func (s *Store) update(ctx context.Context, fn func(*snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) persist(state *snapshot) error {
	data, err := encodeDocument(state)
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".db-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return s.update(ctx, func(st *snapshot) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Username, user.Username) {
				return store.ErrConflict
			}
		}
		if user.Role == "" {
			user.Role = "user"
		}
		st.users = append(st.users, *user)
		return nil
	})
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var found *model.User
	err := s.view(ctx, func(st *snapshot) error {
		for i := range st.users {
			if strings.EqualFold(st.users[i].Username, username) {
				u := st.users[i]
				found = &u
				return nil
			}
		}
		return store.ErrNotFound
	})
	return found, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var found *model.User
	err := s.view(ctx, func(st *snapshot) error {
		if i := st.userIndex(id); i >= 0 {
			u := st.users[i]
			found = &u
			return nil
		}
		return store.ErrNotFound
	})
	return found, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.update(ctx, func(st *snapshot) error {
		i := st.userIndex(id)
		if i < 0 {
			return store.ErrNotFound
		}
		st.users[i].PasswordHash = passwordHash
		return nil
	})
}

// Warehouses

func (s *Store) CreateWarehouse(ctx context.Context, wh *model.Warehouse) error {
	return s.update(ctx, func(st *snapshot) error {
		for _, w := range st.warehouses {
			if strings.EqualFold(w.Name, wh.Name) {
				return store.ErrConflict
			}
		}
		st.warehouses = append(st.warehouses, *wh)
		st.addMember(wh.OwnerID, wh.ID)
		st.products[wh.ID] = []model.Product{}
		return nil
	})
}

func (s *Store) FindWarehouseByName(ctx context.Context, name string) (*model.Warehouse, error) {
	var found *model.Warehouse
	err := s.view(ctx, func(st *snapshot) error {
		for i := range st.warehouses {
			if strings.EqualFold(st.warehouses[i].Name, name) {
				w := st.warehouses[i]
				found = &w
				return nil
			}
		}
		return store.ErrNotFound
	})
	return found, err
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	var found *model.Warehouse
	err := s.view(ctx, func(st *snapshot) error {
		if i := st.warehouseIndex(id); i >= 0 {
			w := st.warehouses[i]
			found = &w
			return nil
		}
		return store.ErrNotFound
	})
	return found, err
}

func (s *Store) UpdateWarehousePassword(ctx context.Context, id, passwordHash string) error {
	return s.update(ctx, func(st *snapshot) error {
		i := st.warehouseIndex(id)
		if i < 0 {
			return store.ErrNotFound
		}
		st.warehouses[i].PasswordHash = passwordHash
		return nil
	})
}

// ListWarehousesForUser returns the user's warehouses ordered by name
func (s *Store) ListWarehousesForUser(ctx context.Context, userID string) ([]model.Warehouse, error) {
	out := []model.Warehouse{}
	err := s.view(ctx, func(st *snapshot) error {
		for _, id := range st.memberships[userID] {
			if i := st.warehouseIndex(id); i >= 0 {
				out = append(out, st.warehouses[i])
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
		return nil
	})
	return out, err
}

func (s *Store) DeleteWarehouse(ctx context.Context, id string) error {
	return s.update(ctx, func(st *snapshot) error {
		i := st.warehouseIndex(id)
		if i < 0 {
			return store.ErrNotFound
		}
		st.warehouses = append(st.warehouses[:i], st.warehouses[i+1:]...)
		for userID, ids := range st.memberships {
			st.memberships[userID] = without(ids, id)
		}
		delete(st.products, id)
		return nil
	})
}

func (s *Store) AddMember(ctx context.Context, userID, warehouseID string) error {
	return s.update(ctx, func(st *snapshot) error {
		if st.warehouseIndex(warehouseID) < 0 {
			return store.ErrNotFound
		}
		st.addMember(userID, warehouseID)
		return nil
	})
}

func (s *Store) IsMember(ctx context.Context, userID, warehouseID string) (bool, error) {
	var member bool
	err := s.view(ctx, func(st *snapshot) error {
		member = st.isMember(userID, warehouseID)
		return nil
	})
	return member, err
}

func (s *Store) RemoveMember(ctx context.Context, userID, warehouseID string) error {
	return s.update(ctx, func(st *snapshot) error {
		if !st.isMember(userID, warehouseID) {
			return store.ErrNotFound
		}
		st.memberships[userID] = without(st.memberships[userID], warehouseID)
		return nil
	})
}

// Products

func (s *Store) ListProducts(ctx context.Context, warehouseID string, params query.Params) (*query.Page, error) {
	var page query.Page
	err := s.view(ctx, func(st *snapshot) error {
		page = query.Apply(st.products[warehouseID], params)
		for i := range page.Items {
			page.Items[i] = *page.Items[i].Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Store) GetProduct(ctx context.Context, warehouseID, productID string) (*model.Product, error) {
	var found *model.Product
	err := s.view(ctx, func(st *snapshot) error {
		i := st.productIndex(warehouseID, productID)
		if i < 0 {
			return store.ErrNotFound
		}
		found = st.products[warehouseID][i].Clone()
		return nil
	})
	return found, err
}

// CreateProduct prepends the product, keeping the newest first in the file
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)
	p.Normalize()
	return s.update(ctx, func(st *snapshot) error {
		if st.warehouseIndex(p.WarehouseID) < 0 {
			return store.ErrNotFound
		}
		for _, items := range st.products {
			for i := range items {
				if items[i].ID == p.ID {
					return store.ErrConflict
				}
			}
		}
		st.products[p.WarehouseID] = append([]model.Product{*p.Clone()}, st.products[p.WarehouseID]...)
		return nil
	})
}

func (s *Store) UpdateProduct(ctx context.Context, warehouseID, productID string, mutate store.ProductMutator) (*model.Product, error) {
	var saved *model.Product
	err := s.update(ctx, func(st *snapshot) error {
		i := st.productIndex(warehouseID, productID)
		if i < 0 {
			return store.ErrNotFound
		}
		p := st.products[warehouseID][i].Clone()
		if err := mutate(p); err != nil {
			return err
		}
		p.ID = productID
		p.WarehouseID = warehouseID
		p.Normalize()
		st.products[warehouseID][i] = *p
		saved = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) DeleteProduct(ctx context.Context, warehouseID, productID string) error {
	return s.update(ctx, func(st *snapshot) error {
		i := st.productIndex(warehouseID, productID)
		if i < 0 {
			return store.ErrNotFound
		}
		items := st.products[warehouseID]
		st.products[warehouseID] = append(items[:i], items[i+1:]...)
		return nil
	})
}

// Export returns a deep copy of the dataset, used by the migrate command
func (s *Store) Export(ctx context.Context) (*store.Dataset, error) {
	ds := &store.Dataset{}
	err := s.view(ctx, func(st *snapshot) error {
		cp := st.clone()
		ds.Users = cp.users
		ds.Warehouses = cp.warehouses
		for userID, ids := range cp.memberships {
			for _, whID := range ids {
				ds.Memberships = append(ds.Memberships, model.Membership{UserID: userID, WarehouseID: whID})
			}
		}
		for _, items := range cp.products {
			ds.Products = append(ds.Products, items...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (st *snapshot) userIndex(id string) int {
	for i := range st.users {
		if st.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *snapshot) warehouseIndex(id string) int {
	for i := range st.warehouses {
		if st.warehouses[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *snapshot) productIndex(warehouseID, productID string) int {
	items := st.products[warehouseID]
	for i := range items {
		if items[i].ID == productID {
			return i
		}
	}
	return -1
}

func (st *snapshot) isMember(userID, warehouseID string) bool {
	for _, id := range st.memberships[userID] {
		if id == warehouseID {
			return true
		}
	}
	return false
}

func (st *snapshot) addMember(userID, warehouseID string) {
	if !st.isMember(userID, warehouseID) {
		st.memberships[userID] = append(st.memberships[userID], warehouseID)
	}
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
