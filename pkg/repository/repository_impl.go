package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/storeledger/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, err
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(query).Where(query).Count(&count).Error
	return count, err
}

func (r *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Create(resources).Error
}

func (r *store[T]) UpsertNewer(ctx context.Context, resource *T) (bool, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(resource); err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).Clauses(newerOnConflict(r.db, stmt.Schema)).Create(resource)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func newerOnConflict(db *gorm.DB, s *schema.Schema) clause.OnConflict {
	// mysql renders ON DUPLICATE KEY UPDATE and drops the WHERE guard
	if db.Dialector.Name() == "mysql" {
		return clause.OnConflict{DoUpdates: newerAssignments(s)}
	}
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "? < excluded.version", Vars: []any{clause.Column{Table: s.Table, Name: "version"}}},
		}},
	}
}

// newerAssignments keeps every column unless the incoming version is higher.
// version goes last since mysql applies assignments left to right.
func newerAssignments(s *schema.Schema) []clause.Assignment {
	version := clause.Column{Name: "version"}
	guarded := func(col clause.Column) clause.Assignment {
		return clause.Assignment{Column: col, Value: clause.Expr{
			SQL:  "IF(VALUES(?) > ?, VALUES(?), ?)",
			Vars: []any{version, version, col, col},
		}}
	}

	out := make([]clause.Assignment, 0, len(s.DBNames))
	for _, name := range s.DBNames {
		if field := s.LookUpField(name); field != nil && field.PrimaryKey {
			continue
		}
		if name == version.Name {
			continue
		}
		out = append(out, guarded(clause.Column{Name: name}))
	}
	return append(out, guarded(version))
}

func (s *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx)
	if filter != nil {
		db = db.Where(filter)
	}

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
