package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// prices travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a catalog entry owned by a warehouse
type Product struct {
	ID          string              `json:"id" gorm:"type:uuid;primaryKey"`
	WarehouseID string              `json:"warehouseId" gorm:"type:uuid;index;not null"`
	Name        string              `json:"name" gorm:"type:text;not null"`
	Brand       string              `json:"brand" gorm:"type:text"`
	Size        string              `json:"size" gorm:"type:text"`
	Condition   string              `json:"condition" gorm:"type:text"`
	Drop        string              `json:"drop" gorm:"column:drop_tag;type:text"`
	Price       decimal.NullDecimal `json:"price" gorm:"type:numeric"`
	Code        string              `json:"code" gorm:"type:text"`
	A           *int                `json:"a" gorm:"column:a"`
	B           *int                `json:"b" gorm:"column:b"`
	C           *int                `json:"c" gorm:"column:c"`
	MainImageID *string             `json:"mainImageId" gorm:"type:uuid"`
	CreatedAt   time.Time           `json:"createdAt" gorm:"autoCreateTime:false;index"`
	Images      []Image             `json:"images" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (Product) TableName() string { return "products" }

// Image is one gallery entry, ordered by Position
type Image struct {
	ID        string `json:"id" gorm:"type:uuid;primaryKey"`
	ProductID string `json:"-" gorm:"type:uuid;primaryKey;index"`
	URL       string `json:"url" gorm:"type:text;not null"`
	Position  int    `json:"position" gorm:"not null"`
}

func (Image) TableName() string { return "product_images" }

// MainImage returns the designated main image, falling back to the first one
func (p *Product) MainImage() *Image {
	if len(p.Images) == 0 {
		return nil
	}
	if p.MainImageID != nil {
		for i := range p.Images {
			if p.Images[i].ID == *p.MainImageID {
				return &p.Images[i]
			}
		}
	}
	return &p.Images[0]
}

// Normalize trims the text fields and normalizes the images. Facet values
// are stored trimmed because filters compare them exactly.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Size = strings.TrimSpace(p.Size)
	p.Condition = strings.TrimSpace(p.Condition)
	p.Drop = strings.TrimSpace(p.Drop)
	p.Code = strings.TrimSpace(p.Code)
	p.NormalizeImages()
}

// NormalizeImages rewrites positions from slice order, gives empty or
// repeated ids a fresh one and drops a main image reference that does not
// point at one of the product's images.
func (p *Product) NormalizeImages() {
	if p.Images == nil {
		p.Images = []Image{}
	}
	seen := make(map[string]struct{}, len(p.Images))
	for i := range p.Images {
		if _, dup := seen[p.Images[i].ID]; dup || p.Images[i].ID == "" {
			p.Images[i].ID = uuid.NewString()
		}
		seen[p.Images[i].ID] = struct{}{}
		p.Images[i].Position = i
		p.Images[i].ProductID = p.ID
	}
	if p.MainImageID == nil {
		return
	}
	for _, img := range p.Images {
		if img.ID == *p.MainImageID {
			return
		}
	}
	p.MainImageID = nil
}

// Clone returns a deep copy
func (p *Product) Clone() *Product {
	cp := *p
	cp.A = cloneInt(p.A)
	cp.B = cloneInt(p.B)
	cp.C = cloneInt(p.C)
	if p.MainImageID != nil {
		id := *p.MainImageID
		cp.MainImageID = &id
	}
	if p.Images != nil {
		cp.Images = make([]Image, len(p.Images))
		copy(cp.Images, p.Images)
	}
	return &cp
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// FacetValue returns the value of a facet field by facet name
func (p *Product) FacetValue(facet string) string {
	switch facet {
	case FacetBrand:
		return p.Brand
	case FacetSize:
		return p.Size
	case FacetCondition:
		return p.Condition
	case FacetDrop:
		return p.Drop
	default:
		return ""
	}
}

// Facet names, shared by filters and available-value computation
const (
	FacetBrand     = "brand"
	FacetSize      = "size"
	FacetCondition = "condition"
	FacetDrop      = "drop"
)

// Facets lists every facet in response order
var Facets = []string{FacetBrand, FacetSize, FacetCondition, FacetDrop}

// FacetColumns maps facet names to product columns
var FacetColumns = map[string]string{
	FacetBrand:     "brand",
	FacetSize:      "size",
	FacetCondition: "condition",
	FacetDrop:      "drop_tag",
}
