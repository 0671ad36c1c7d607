package query

import (
	"sort"
	"strings"

	"magazyn/internal/model"
)

// Apply evaluates params over the full product set of one warehouse. The
// input slice is not modified.
func Apply(products []model.Product, p Params) Page {
	p = Normalize(p)

	matched := make([]model.Product, 0, len(products))
	for i := range products {
		if Matches(&products[i], p) {
			matched = append(matched, products[i])
		}
	}
	SortProducts(matched, p.Sort)

	page := Page{
		Items:    []model.Product{},
		Total:    int64(len(matched)),
		Page:     p.Page,
		PageSize: p.PageSize,
		Filters:  CollectFilters(products),
	}
	start := p.Offset()
	if start < len(matched) {
		end := start + p.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[start:end]
	}
	return page
}

// Matches reports whether a product satisfies every predicate in p
func Matches(prod *model.Product, p Params) bool {
	if p.Search != "" && !containsFold(prod.Name, p.Search) {
		return false
	}
	if p.Code != "" && !containsFold(prod.Code, p.Code) {
		return false
	}
	for _, facet := range model.Facets {
		selected := p.FacetValues(facet)
		if len(selected) == 0 {
			continue
		}
		if !contains(selected, prod.FacetValue(facet)) {
			return false
		}
	}
	return true
}

// SortProducts orders products in place
func SortProducts(products []model.Product, order string) {
	less := lessFunc(normalizeSort(order))
	sort.SliceStable(products, func(i, j int) bool {
		return less(&products[i], &products[j])
	})
}

// CollectFilters returns the sorted distinct non-empty facet values
func CollectFilters(products []model.Product) Filters {
	sets := make(map[string]map[string]struct{}, len(model.Facets))
	for _, facet := range model.Facets {
		sets[facet] = map[string]struct{}{}
	}
	for i := range products {
		for _, facet := range model.Facets {
			if v := products[i].FacetValue(facet); v != "" {
				sets[facet][v] = struct{}{}
			}
		}
	}
	return Filters{
		Brand:     sortedKeys(sets[model.FacetBrand]),
		Size:      sortedKeys(sets[model.FacetSize]),
		Condition: sortedKeys(sets[model.FacetCondition]),
		Drop:      sortedKeys(sets[model.FacetDrop]),
	}
}

func lessFunc(order string) func(a, b *model.Product) bool {
	var primary func(a, b *model.Product) int
	switch order {
	case SortPriceAsc:
		primary = func(a, b *model.Product) int {
			return comparePrice(a, b, false)
		}
	case SortPriceDesc:
		primary = func(a, b *model.Product) int {
			return comparePrice(a, b, true)
		}
	case SortNameAsc:
		primary = compareName
	case SortNameDesc:
		primary = func(a, b *model.Product) int {
			return compareName(b, a)
		}
	case SortCreatedAsc:
		primary = func(a, b *model.Product) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	default:
		primary = func(*model.Product, *model.Product) int {
			return 0
		}
	}

	return func(a, b *model.Product) bool {
		if c := primary(a, b); c != 0 {
			return c < 0
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	}
}

// compareName orders by lowercased name, comparing bytes
func compareName(a, b *model.Product) int {
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// comparePrice keeps null prices after every priced product in both directions
func comparePrice(a, b *model.Product, desc bool) int {
	switch {
	case !a.Price.Valid && !b.Price.Valid:
		return 0
	case !a.Price.Valid:
		return 1
	case !b.Price.Valid:
		return -1
	}
	c := a.Price.Decimal.Cmp(b.Price.Decimal)
	if desc {
		return -c
	}
	return c
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
