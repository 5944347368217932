package option

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/farmerpower/platform/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// Operator is a comparison operator usable in a Condition.
type Operator string

const (
	GTE Operator = ">="
	LTE Operator = "<="
	GT  Operator = ">"
	LT  Operator = "<"
)

// Condition expresses a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ApplyOperator adds a comparison condition to the query.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		switch cond.Operator {
		case GTE, LTE, GT, LT:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		default:
			return db
		}
	})
}

// QuerySortBy carries a sort request with an allow list of sortable columns.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithQuerySortBy builds a QuerySortBy from raw request values.
func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{
		SortBy:  strings.TrimSpace(sortBy),
		OrderBy: strings.TrimSpace(orderBy),
		Allow:   allow,
	}
}

// WithSortBy orders the query by an allowed column, defaulting to created_at desc.
func WithSortBy(q QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.ToLower(q.SortBy)
		if column == "" || !q.Allow[column] {
			column = "created_at"
		}
		direction := strings.ToLower(q.OrderBy)
		if direction != "asc" {
			direction = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
	})
}

// ApplyPagination applies cursor pagination. Results are expected to be
// ordered by created_at desc, id desc; the option fetches one extra row so
// callers can detect a next page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}
		if size > 250 {
			size = 250
		}

		token := strings.TrimSpace(page.PageToken)
		if token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil {
				db = applyCursor(db, cursor)
			}
		}

		return db.Limit(size + 1)
	})
}

func applyCursor(db *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	id := cursorID(cursor.ID)
	switch {
	case cursor.CreatedAt != "" && cursor.ID != "":
		return db.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, id)
	case cursor.CreatedAt != "":
		return db.Where("created_at < ?", cursor.CreatedAt)
	case cursor.ID != "":
		return db.Where("id < ?", id)
	default:
		return db
	}
}

// cursorID normalizes snowflake ids so numeric columns compare correctly.
func cursorID(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
