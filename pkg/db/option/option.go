package option

import (
	"github.com/smallbiznis/storeledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it runs.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type QueryOptionFunc func(*gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination translates a page request into LIMIT/OFFSET.
func ApplyPagination(page pagination.Page) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if page.Size <= 0 {
			return db
		}
		return db.Limit(page.Size).Offset(page.Offset())
	})
}

func OrderBy(expr string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(expr)
	})
}

func Where(query any, args ...any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

func Limit(n int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	})
}
