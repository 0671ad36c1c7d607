package model

// Warehouse (magazyn) is the password gated tenant owning a product catalog
type Warehouse struct {
	ID           string `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string `json:"name" gorm:"type:text;not null"`
	PasswordHash string `json:"-" gorm:"column:password_hash;type:text;not null"`
	OwnerID      string `json:"ownerId" gorm:"type:uuid;index;not null"`
}

func (Warehouse) TableName() string { return "warehouses" }

// Membership grants a user access to a warehouse
type Membership struct {
	UserID      string `json:"userId" gorm:"type:uuid;primaryKey"`
	WarehouseID string `json:"warehouseId" gorm:"type:uuid;primaryKey;index"`
}

func (Membership) TableName() string { return "warehouse_memberships" }

// Removal scopes returned by leave-or-delete
const (
	ScopeDeleted = "deleted"
	ScopeLeft    = "left"
)
