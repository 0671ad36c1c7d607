package query

import (
	"strings"

	"gorm.io/gorm"

	"magazyn/internal/model"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'
func LikePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Scope restricts a products query to the predicates of p. It does not
// scope by warehouse; callers add that condition themselves.
func Scope(p Params) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Search != "" {
			db = db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, LikePattern(p.Search))
		}
		if p.Code != "" {
			db = db.Where(`LOWER(code) LIKE ? ESCAPE '\'`, LikePattern(p.Code))
		}
		for _, facet := range model.Facets {
			if values := p.FacetValues(facet); len(values) > 0 {
				db = db.Where(model.FacetColumns[facet]+" IN ?", values)
			}
		}
		return db
	}
}

// Paginate applies offset and limit
func Paginate(p Params) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// OrderClause returns the ORDER BY expression matching SortProducts for the
// named gorm dialect. Postgres compares the lowered name under the "C"
// collation so name sorts follow byte order like the in-memory sort.
func OrderClause(order, dialect string) string {
	const ties = "created_at DESC, id ASC"
	name := "LOWER(name)"
	if dialect == "postgres" {
		name += ` COLLATE "C"`
	}
	switch normalizeSort(order) {
	case SortPriceAsc:
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price ASC, " + ties
	case SortPriceDesc:
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price DESC, " + ties
	case SortNameAsc:
		return name + " ASC, " + ties
	case SortNameDesc:
		return name + " DESC, " + ties
	case SortCreatedAsc:
		return "created_at ASC, id ASC"
	default:
		return ties
	}
}
