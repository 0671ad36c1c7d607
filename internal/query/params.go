// Package query holds the product listing semantics: parameter
// normalisation, an in-memory evaluator and the equivalent gorm scopes.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"magazyn/internal/model"
)

// Sort orders accepted by the listing
const (
	SortPriceAsc    = "price_asc"
	SortPriceDesc   = "price_desc"
	SortNameAsc     = "name_asc"
	SortNameDesc    = "name_desc"
	SortCreatedAsc  = "created_asc"
	SortCreatedDesc = "created_desc"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params is a normalised listing request
type Params struct {
	Search    string
	Code      string
	Brand     []string
	Size      []string
	Condition []string
	Drop      []string
	Sort      string
	Page      int
	PageSize  int
}

// Filters holds the distinct values of every facet in a warehouse
type Filters struct {
	Brand     []string `json:"brand"`
	Size      []string `json:"size"`
	Condition []string `json:"condition"`
	Drop      []string `json:"drop"`
}

// Page is one listing result
type Page struct {
	Items    []model.Product `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Filters  Filters         `json:"filters"`
}

// FacetValues returns the selected values of a facet
func (p Params) FacetValues(facet string) []string {
	switch facet {
	case model.FacetBrand:
		return p.Brand
	case model.FacetSize:
		return p.Size
	case model.FacetCondition:
		return p.Condition
	case model.FacetDrop:
		return p.Drop
	}
	return nil
}

// Offset is the number of filtered items skipped before the page
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Normalize trims text inputs, drops empty facet values and coerces the
// sort and pagination fields into their valid ranges.
func Normalize(p Params) Params {
	p.Search = strings.TrimSpace(p.Search)
	p.Code = strings.TrimSpace(p.Code)
	p.Brand = cleanValues(p.Brand)
	p.Size = cleanValues(p.Size)
	p.Condition = cleanValues(p.Condition)
	p.Drop = cleanValues(p.Drop)
	p.Sort = normalizeSort(p.Sort)

	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize == 0:
		p.PageSize = DefaultPageSize
	case p.PageSize < 1:
		p.PageSize = 1
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// ParseValues builds normalised params from a query string. Facets accept
// repeated keys as well as comma joined values.
func ParseValues(v url.Values) Params {
	return Normalize(Params{
		Search:    v.Get("search"),
		Code:      v.Get("code"),
		Brand:     splitValues(v["brand"]),
		Size:      splitValues(v["size"]),
		Condition: splitValues(v["condition"]),
		Drop:      splitValues(v["drop"]),
		Sort:      v.Get("sort"),
		Page:      parseInt(v.Get("page"), DefaultPage),
		PageSize:  parseInt(v.Get("pageSize"), DefaultPageSize),
	})
}

func normalizeSort(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc, SortCreatedAsc, SortCreatedDesc:
		return s
	default:
		return SortCreatedDesc
	}
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// "2.7" style input truncates like a numeric coercion would
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
			return fallback
		}
		return int(f)
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return n
}

func splitValues(raw []string) []string {
	var out []string
	for _, r := range raw {
		out = append(out, strings.Split(r, ",")...)
	}
	return out
}

func cleanValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
