package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Scope narrows a query. It is gorm's scope signature.
type Scope = func(*gorm.DB) *gorm.DB

// Repo is a thin typed wrapper over one model's table.
type Repo[T any] struct {
	db *gorm.DB
}

func NewRepo[T any](db *gorm.DB) *Repo[T] { return &Repo[T]{db: db} }

func (r *Repo[T]) model(ctx context.Context, scopes []Scope) *gorm.DB {
	var zero T
	return r.db.WithContext(ctx).Model(&zero).Scopes(scopes...)
}

func (r *Repo[T]) List(ctx context.Context, scopes ...Scope) ([]T, error) {
	var out []T
	if err := r.model(ctx, scopes).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list %T: %w", out, err)
	}
	return out, nil
}

// Get loads the row with integer primary key id.
func (r *Repo[T]) Get(ctx context.Context, id int64, scopes ...Scope) (*T, error) {
	var v T
	err := r.model(ctx, scopes).First(&v, id).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("get %T %d", v, id))
	}
	return &v, nil
}

// First loads the first row matching scopes in primary key order.
func (r *Repo[T]) First(ctx context.Context, scopes ...Scope) (*T, error) {
	var v T
	if err := r.model(ctx, scopes).First(&v).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("first %T", v))
	}
	return &v, nil
}

func (r *Repo[T]) Create(ctx context.Context, v *T) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("create %T: %w", v, err)
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func where(query string, args ...any) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}

func orderBy(col string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Order(col) }
}

func preload(assoc string, scopes ...Scope) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if len(scopes) == 0 {
			return db.Preload(assoc)
		}
		return db.Preload(assoc, func(q *gorm.DB) *gorm.DB { return q.Scopes(scopes...) })
	}
}
