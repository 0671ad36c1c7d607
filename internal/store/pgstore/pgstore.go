// Package pgstore implements store.Store on gorm. It targets Postgres and
// keeps its SQL portable enough to run against SQLite in tests.
package pgstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/store"
	"magazyn/pkg/database"
	"magazyn/prometheus"
)

// Store is a gorm backed store.Store
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Importer = (*Store)(nil)
)

// New wraps an open connection. timeout bounds every operation, zero
// disables the bound.
func New(db *gorm.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

var lowerIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_login_lower ON users (LOWER(login))",
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_warehouses_name_lower ON warehouses (LOWER(name))",
}

// Migrate creates or updates the schema
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&model.User{}, &model.Warehouse{}, &model.Membership{}, &model.Product{}, &model.Image{}); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	for _, stmt := range lowerIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := upgradeImageKey(db); err != nil {
		return fmt.Errorf("upgrade product_images key: %w", err)
	}
	return nil
}

// upgradeImageKey widens a product_images primary key created on id alone
// to (id, product_id). AutoMigrate never alters an existing primary key.
func upgradeImageKey(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		var key struct {
			Name       string
			KeyColumns int64
		}
		err := db.Raw(`SELECT tc.constraint_name AS name, COUNT(*) AS key_columns
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
				AND kcu.table_name = tc.table_name
			WHERE tc.table_schema = current_schema()
				AND tc.table_name = 'product_images'
				AND tc.constraint_type = 'PRIMARY KEY'
			GROUP BY tc.constraint_name`).Scan(&key).Error
		if err != nil || key.KeyColumns != 1 {
			return err
		}
		return db.Transaction(func(tx *gorm.DB) error {
			// rows without a product cannot join the new key
			if err := tx.Exec("DELETE FROM product_images WHERE product_id IS NULL").Error; err != nil {
				return err
			}
			return tx.Exec(fmt.Sprintf(
				`ALTER TABLE product_images DROP CONSTRAINT %q, ADD PRIMARY KEY (id, product_id)`, key.Name)).Error
		})
	}

	// SQLite cannot alter a primary key, the table is rebuilt instead
	var keyColumns int64
	err := db.Raw(`SELECT COUNT(*) FROM pragma_table_info('product_images') WHERE pk > 0`).Scan(&keyColumns).Error
	if err != nil || keyColumns != 1 {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		stmts := []string{
			"ALTER TABLE product_images RENAME TO product_images_legacy",
			"DROP INDEX IF EXISTS idx_product_images_product_id",
		}
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		if err := tx.Migrator().CreateTable(&model.Image{}); err != nil {
			return err
		}
		copyRows := `INSERT INTO product_images (id, product_id, url, position)
			SELECT id, product_id, url, position FROM product_images_legacy WHERE product_id IS NOT NULL`
		if err := tx.Exec(copyRows).Error; err != nil {
			return err
		}
		return tx.Exec("DROP TABLE product_images_legacy").Error
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return database.Ping(ctx, s.db)
}

func (s *Store) Close() error {
	return database.Close(s.db)
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrConflict
	case unreachable(err):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	default:
		return err
	}
}

func unreachable(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.As(err, &netErr)
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	defer prometheus.TrackDBOperation("user.insert")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	if user.Role == "" {
		user.Role = "user"
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("LOWER(login) = LOWER(?)", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrConflict
		}
		return tx.Create(user).Error
	})
	return translate(err)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	defer prometheus.TrackDBOperation("user.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var user model.User
	if err := db.Where("LOWER(login) = LOWER(?)", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer prometheus.TrackDBOperation("user.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var user model.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	defer prometheus.TrackDBOperation("user.update")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	result := db.Model(&model.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Warehouses

func (s *Store) CreateWarehouse(ctx context.Context, wh *model.Warehouse) error {
	defer prometheus.TrackDBOperation("warehouse.insert")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Warehouse{}).Where("LOWER(name) = LOWER(?)", wh.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrConflict
		}
		if err := tx.Create(wh).Error; err != nil {
			return err
		}
		return tx.Create(&model.Membership{UserID: wh.OwnerID, WarehouseID: wh.ID}).Error
	})
	return translate(err)
}

func (s *Store) FindWarehouseByName(ctx context.Context, name string) (*model.Warehouse, error) {
	defer prometheus.TrackDBOperation("warehouse.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var wh model.Warehouse
	if err := db.Where("LOWER(name) = LOWER(?)", name).First(&wh).Error; err != nil {
		return nil, translate(err)
	}
	return &wh, nil
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	defer prometheus.TrackDBOperation("warehouse.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var wh model.Warehouse
	if err := db.Where("id = ?", id).First(&wh).Error; err != nil {
		return nil, translate(err)
	}
	return &wh, nil
}

func (s *Store) UpdateWarehousePassword(ctx context.Context, id, passwordHash string) error {
	defer prometheus.TrackDBOperation("warehouse.update")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	result := db.Model(&model.Warehouse{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListWarehousesForUser(ctx context.Context, userID string) ([]model.Warehouse, error) {
	defer prometheus.TrackDBOperation("warehouse.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	warehouses := []model.Warehouse{}
	err := db.Model(&model.Warehouse{}).
		Joins("JOIN warehouse_memberships m ON m.warehouse_id = warehouses.id").
		Where("m.user_id = ?", userID).
		Order("LOWER(warehouses.name) ASC").
		Find(&warehouses).Error
	if err != nil {
		return nil, translate(err)
	}
	return warehouses, nil
}

// DeleteWarehouse removes dependents explicitly so the cascade does not
// depend on foreign keys being enforced by the database.
func (s *Store) DeleteWarehouse(ctx context.Context, id string) error {
	defer prometheus.TrackDBOperation("warehouse.delete")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		productIDs := tx.Model(&model.Product{}).Select("id").Where("warehouse_id = ?", id)
		if err := tx.Where("product_id IN (?)", productIDs).Delete(&model.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("warehouse_id = ?", id).Delete(&model.Product{}).Error; err != nil {
			return err
		}
		if err := tx.Where("warehouse_id = ?", id).Delete(&model.Membership{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Warehouse{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	return translate(err)
}

func (s *Store) AddMember(ctx context.Context, userID, warehouseID string) error {
	defer prometheus.TrackDBOperation("membership.insert")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Warehouse{}).Where("id = ?", warehouseID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Membership{UserID: userID, WarehouseID: warehouseID}).Error
	})
	return translate(err)
}

func (s *Store) IsMember(ctx context.Context, userID, warehouseID string) (bool, error) {
	defer prometheus.TrackDBOperation("membership.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var count int64
	err := db.Model(&model.Membership{}).
		Where("user_id = ? AND warehouse_id = ?", userID, warehouseID).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (s *Store) RemoveMember(ctx context.Context, userID, warehouseID string) error {
	defer prometheus.TrackDBOperation("membership.delete")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	result := db.Where("user_id = ? AND warehouse_id = ?", userID, warehouseID).Delete(&model.Membership{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Products

func preloadImages(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *Store) ListProducts(ctx context.Context, warehouseID string, params query.Params) (*query.Page, error) {
	defer prometheus.TrackDBOperation("product.list")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	params = query.Normalize(params)
	page := &query.Page{Items: []model.Product{}, Page: params.Page, PageSize: params.PageSize}

	filtered := db.Model(&model.Product{}).Where("warehouse_id = ?", warehouseID).Scopes(query.Scope(params))
	if err := filtered.Count(&page.Total).Error; err != nil {
		return nil, translate(fmt.Errorf("count products: %w", err))
	}

	if int64(params.Offset()) < page.Total {
		err := db.Where("warehouse_id = ?", warehouseID).
			Scopes(query.Scope(params), query.Paginate(params)).
			Order(query.OrderClause(params.Sort, db.Dialector.Name())).
			Preload("Images", preloadImages).
			Find(&page.Items).Error
		if err != nil {
			return nil, translate(fmt.Errorf("list products: %w", err))
		}
	}
	for i := range page.Items {
		normalizeLoaded(&page.Items[i])
	}

	filters, err := s.facetValues(db, warehouseID)
	if err != nil {
		return nil, translate(err)
	}
	page.Filters = filters
	return page, nil
}

// facetValues reads the distinct values per facet. Values are sorted in Go
// so the order does not depend on the database collation.
func (s *Store) facetValues(db *gorm.DB, warehouseID string) (query.Filters, error) {
	values := make(map[string][]string, len(model.Facets))
	for _, facet := range model.Facets {
		col := model.FacetColumns[facet]
		var found []string
		present := fmt.Sprintf("%s IS NOT NULL AND %s <> ''", col, col)
		err := db.Model(&model.Product{}).
			Where("warehouse_id = ?", warehouseID).
			Where(present).
			Distinct(col).
			Pluck(col, &found).Error
		if err != nil {
			return query.Filters{}, fmt.Errorf("facet %s: %w", facet, err)
		}
		sort.Strings(found)
		if found == nil {
			found = []string{}
		}
		values[facet] = found
	}
	return query.Filters{
		Brand:     values[model.FacetBrand],
		Size:      values[model.FacetSize],
		Condition: values[model.FacetCondition],
		Drop:      values[model.FacetDrop],
	}, nil
}

func (s *Store) GetProduct(ctx context.Context, warehouseID, productID string) (*model.Product, error) {
	defer prometheus.TrackDBOperation("product.query")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	return loadProduct(db, warehouseID, productID)
}

func loadProduct(db *gorm.DB, warehouseID, productID string) (*model.Product, error) {
	var p model.Product
	err := db.Where("id = ? AND warehouse_id = ?", productID, warehouseID).
		Preload("Images", preloadImages).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	normalizeLoaded(&p)
	return &p, nil
}

func normalizeLoaded(p *model.Product) {
	p.CreatedAt = p.CreatedAt.UTC()
	if p.Images == nil {
		p.Images = []model.Image{}
	}
}

func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	defer prometheus.TrackDBOperation("product.insert")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)
	p.Normalize()

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Warehouse{}).Where("id = ?", p.WarehouseID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}
		return insertImages(tx, p.Images)
	})
	return translate(err)
}

func insertImages(tx *gorm.DB, images []model.Image) error {
	if len(images) == 0 {
		return nil
	}
	return tx.Create(&images).Error
}

func (s *Store) UpdateProduct(ctx context.Context, warehouseID, productID string, mutate store.ProductMutator) (*model.Product, error) {
	defer prometheus.TrackDBOperation("product.update")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	var saved *model.Product
	err := db.Transaction(func(tx *gorm.DB) error {
		current, err := loadProduct(tx.Clauses(lockingClause(tx)...), warehouseID, productID)
		if err != nil {
			return err
		}
		p := current.Clone()
		if err := mutate(p); err != nil {
			return err
		}
		p.ID = productID
		p.WarehouseID = warehouseID
		p.CreatedAt = current.CreatedAt
		p.Normalize()

		err = tx.Model(&model.Product{}).
			Where("id = ? AND warehouse_id = ?", productID, warehouseID).
			Select("*").Omit("id", "warehouse_id", "created_at", clause.Associations).
			Updates(p).Error
		if err != nil {
			return err
		}

		if imagesChanged(current.Images, p.Images) {
			if err := tx.Where("product_id = ?", productID).Delete(&model.Image{}).Error; err != nil {
				return err
			}
			if err := insertImages(tx, p.Images); err != nil {
				return err
			}
		}
		saved = p
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return saved, nil
}

// lockingClause takes a row lock on Postgres, SQLite serialises writers itself
func lockingClause(tx *gorm.DB) []clause.Expression {
	if tx.Dialector.Name() == "postgres" {
		return []clause.Expression{clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "products"}}}
	}
	return nil
}

func imagesChanged(before, after []model.Image) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].URL != after[i].URL || before[i].Position != after[i].Position {
			return true
		}
	}
	return false
}

func (s *Store) DeleteProduct(ctx context.Context, warehouseID, productID string) error {
	defer prometheus.TrackDBOperation("product.delete")(time.Now())
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND warehouse_id = ?", productID, warehouseID).Delete(&model.Product{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return tx.Where("product_id = ?", productID).Delete(&model.Image{}).Error
	})
	return translate(err)
}

// Import replaces every table with the dataset inside one transaction
func (s *Store) Import(ctx context.Context, ds *store.Dataset) error {
	defer prometheus.TrackDBOperation("import")(time.Now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&model.Image{}, &model.Product{}, &model.Membership{}, &model.Warehouse{}, &model.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("clear table: %w", err)
			}
		}
		if len(ds.Users) > 0 {
			if err := tx.CreateInBatches(&ds.Users, 200).Error; err != nil {
				return fmt.Errorf("insert users: %w", err)
			}
		}
		if len(ds.Warehouses) > 0 {
			if err := tx.CreateInBatches(&ds.Warehouses, 200).Error; err != nil {
				return fmt.Errorf("insert warehouses: %w", err)
			}
		}
		if len(ds.Memberships) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&ds.Memberships, 500).Error; err != nil {
				return fmt.Errorf("insert memberships: %w", err)
			}
		}
		for i := range ds.Products {
			p := ds.Products[i].Clone()
			p.Normalize()
			if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
				return fmt.Errorf("insert product %s: %w", p.ID, err)
			}
			if err := insertImages(tx, p.Images); err != nil {
				return fmt.Errorf("insert images of %s: %w", p.ID, err)
			}
		}
		return nil
	})
	return translate(err)
}
