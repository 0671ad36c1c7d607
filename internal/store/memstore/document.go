package memstore

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"magazyn/internal/model"
)

// document is the on-disk layout of db.json
type document struct {
	Users       []fileUser               `json:"users"`
	Magazines   []fileWarehouse          `json:"magazines"`
	Memberships map[string][]string      `json:"memberships"`
	Products    map[string][]fileProduct `json:"products"`
}

type fileUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type fileWarehouse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
	OwnerID  string `json:"ownerId"`
}

type fileImage struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// fileProduct tolerates the loosely typed values older clients wrote:
// prices and metrics may be numbers, numeric strings or empty strings.
type fileProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand,omitempty"`
	Size        string          `json:"size,omitempty"`
	Condition   string          `json:"condition,omitempty"`
	Drop        string          `json:"drop,omitempty"`
	Price       json.RawMessage `json:"price,omitempty"`
	Code        string          `json:"code,omitempty"`
	A           json.RawMessage `json:"a,omitempty"`
	B           json.RawMessage `json:"b,omitempty"`
	C           json.RawMessage `json:"c,omitempty"`
	MainImageID string          `json:"mainImageId,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	Images      []fileImage     `json:"images"`
}

// snapshot is the typed in-memory state
type snapshot struct {
	users       []model.User
	warehouses  []model.Warehouse
	memberships map[string][]string
	products    map[string][]model.Product
}

func emptySnapshot() *snapshot {
	return &snapshot{
		users:       []model.User{},
		warehouses:  []model.Warehouse{},
		memberships: map[string][]string{},
		products:    map[string][]model.Product{},
	}
}

func (s *snapshot) clone() *snapshot {
	cp := &snapshot{
		users:       append([]model.User(nil), s.users...),
		warehouses:  append([]model.Warehouse(nil), s.warehouses...),
		memberships: make(map[string][]string, len(s.memberships)),
		products:    make(map[string][]model.Product, len(s.products)),
	}
	for userID, ids := range s.memberships {
		cp.memberships[userID] = append([]string(nil), ids...)
	}
	for whID, items := range s.products {
		list := make([]model.Product, len(items))
		for i := range items {
			list[i] = *items[i].Clone()
		}
		cp.products[whID] = list
	}
	return cp
}

func decodeDocument(data []byte) (*snapshot, error) {
	var doc document
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	s := emptySnapshot()
	for _, u := range doc.Users {
		s.users = append(s.users, model.User{ID: u.ID, Username: u.Username, PasswordHash: u.Password, Role: "user"})
	}
	for _, w := range doc.Magazines {
		s.warehouses = append(s.warehouses, model.Warehouse{ID: w.ID, Name: w.Name, PasswordHash: w.Password, OwnerID: w.OwnerID})
	}
	for userID, ids := range doc.Memberships {
		s.memberships[userID] = append([]string(nil), ids...)
	}
	for whID, items := range doc.Products {
		list := make([]model.Product, 0, len(items))
		for _, fp := range items {
			list = append(list, fp.toModel(whID))
		}
		s.products[whID] = list
	}
	return s, nil
}

func encodeDocument(s *snapshot) ([]byte, error) {
	doc := document{
		Users:       make([]fileUser, 0, len(s.users)),
		Magazines:   make([]fileWarehouse, 0, len(s.warehouses)),
		Memberships: s.memberships,
		Products:    make(map[string][]fileProduct, len(s.products)),
	}
	for _, u := range s.users {
		doc.Users = append(doc.Users, fileUser{ID: u.ID, Username: u.Username, Password: u.PasswordHash})
	}
	for _, w := range s.warehouses {
		doc.Magazines = append(doc.Magazines, fileWarehouse{ID: w.ID, Name: w.Name, Password: w.PasswordHash, OwnerID: w.OwnerID})
	}
	for whID, items := range s.products {
		list := make([]fileProduct, 0, len(items))
		for i := range items {
			list = append(list, fromModel(&items[i]))
		}
		doc.Products[whID] = list
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (fp fileProduct) toModel(warehouseID string) model.Product {
	p := model.Product{
		ID:          fp.ID,
		WarehouseID: warehouseID,
		Name:        fp.Name,
		Brand:       fp.Brand,
		Size:        fp.Size,
		Condition:   fp.Condition,
		Drop:        fp.Drop,
		Price:       looseDecimal(fp.Price),
		Code:        fp.Code,
		A:           looseInt(fp.A),
		B:           looseInt(fp.B),
		C:           looseInt(fp.C),
		CreatedAt:   time.UnixMilli(fp.CreatedAt).UTC(),
		Images:      make([]model.Image, 0, len(fp.Images)),
	}
	if fp.MainImageID != "" {
		id := fp.MainImageID
		p.MainImageID = &id
	}
	for _, img := range fp.Images {
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		p.Images = append(p.Images, model.Image{ID: img.ID, URL: img.URL})
	}
	p.Normalize()
	return p
}

func fromModel(p *model.Product) fileProduct {
	fp := fileProduct{
		ID:        p.ID,
		Name:      p.Name,
		Brand:     p.Brand,
		Size:      p.Size,
		Condition: p.Condition,
		Drop:      p.Drop,
		Code:      p.Code,
		A:         intJSON(p.A),
		B:         intJSON(p.B),
		C:         intJSON(p.C),
		CreatedAt: p.CreatedAt.UnixMilli(),
		Images:    make([]fileImage, 0, len(p.Images)),
	}
	if p.Price.Valid {
		fp.Price = json.RawMessage(p.Price.Decimal.String())
	}
	if p.MainImageID != nil {
		fp.MainImageID = *p.MainImageID
	}
	for _, img := range p.Images {
		fp.Images = append(fp.Images, fileImage{ID: img.ID, URL: img.URL, Position: img.Position})
	}
	return fp
}

func looseDecimal(raw json.RawMessage) decimal.NullDecimal {
	s := unquote(raw)
	if s == "" || s == "null" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func looseInt(raw json.RawMessage) *int {
	s := unquote(raw)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

func intJSON(v *int) json.RawMessage {
	if v == nil {
		return nil
	}
	return json.RawMessage(strconv.Itoa(*v))
}

func unquote(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' {
		var out string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return s
}
