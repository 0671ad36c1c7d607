package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Optional distinguishes an absent JSON key from an explicit null
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a set, non-null optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a set optional holding JSON null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Null = true
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// FlexibleTime accepts RFC 3339 strings or epoch milliseconds
type FlexibleTime struct {
	time.Time
}

func (t *FlexibleTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// ImageInput is an image as sent by clients. Position is ignored and
// derived from the slice order. URL may be a data URL.
type ImageInput struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProductDraft is the create payload
type ProductDraft struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Brand       string              `json:"brand"`
	Size        string              `json:"size"`
	Condition   string              `json:"condition"`
	Drop        string              `json:"drop"`
	Price       decimal.NullDecimal `json:"price"`
	Code        string              `json:"code"`
	A           *int                `json:"a"`
	B           *int                `json:"b"`
	C           *int                `json:"c"`
	MainImageID *string             `json:"mainImageId"`
	CreatedAt   *FlexibleTime       `json:"createdAt"`
	Images      []ImageInput        `json:"images"`
}

// ProductPatch is the update payload, only keys present in the JSON apply
type ProductPatch struct {
	Name        Optional[string]          `json:"name"`
	Brand       Optional[string]          `json:"brand"`
	Size        Optional[string]          `json:"size"`
	Condition   Optional[string]          `json:"condition"`
	Drop        Optional[string]          `json:"drop"`
	Price       Optional[decimal.Decimal] `json:"price"`
	Code        Optional[string]          `json:"code"`
	A           Optional[int]             `json:"a"`
	B           Optional[int]             `json:"b"`
	C           Optional[int]             `json:"c"`
	MainImageID Optional[string]          `json:"mainImageId"`
	Images      Optional[[]ImageInput]    `json:"images"`
}

// Apply merges the patch onto p. Images present in the patch replace the
// whole set; the caller resolves image ids and URLs beforehand.
func (pt *ProductPatch) Apply(p *Product, images []Image) {
	applyString(pt.Name, &p.Name)
	applyString(pt.Brand, &p.Brand)
	applyString(pt.Size, &p.Size)
	applyString(pt.Condition, &p.Condition)
	applyString(pt.Drop, &p.Drop)
	applyString(pt.Code, &p.Code)
	applyInt(pt.A, &p.A)
	applyInt(pt.B, &p.B)
	applyInt(pt.C, &p.C)

	if pt.Price.Set {
		if pt.Price.Null {
			p.Price = decimal.NullDecimal{}
		} else {
			p.Price = decimal.NewNullDecimal(pt.Price.Value)
		}
	}

	if pt.Images.Set {
		p.Images = images
	}

	if pt.MainImageID.Set {
		if pt.MainImageID.Null || pt.MainImageID.Value == "" {
			p.MainImageID = nil
		} else {
			id := pt.MainImageID.Value
			p.MainImageID = &id
		}
	}

	p.Normalize()
}

func applyString(o Optional[string], dst *string) {
	if o.Set {
		*dst = o.Value
	}
}

func applyInt(o Optional[int], dst **int) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}
