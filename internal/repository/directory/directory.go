// Package directory resolves display data for users and categories. Accounts
// and categories are managed elsewhere; this package only reads them.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/entity"
)

var tracer = otel.Tracer("github.com/Additional-Code/auctioneer/repository/directory")

// ErrNotFound is returned for unknown users or categories.
var ErrNotFound = errors.New("directory entry not found")

// Directory looks up users and categories by id.
type Directory interface {
	User(ctx context.Context, id string) (*entity.User, error)
	Category(ctx context.Context, id string) (*entity.Category, error)
	Categories(ctx context.Context) ([]entity.Category, error)
}

// Repository reads the directory tables from the read replica.
type Repository struct {
	reader *bun.DB
}

// NewRepository builds a SQL-backed directory.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// User loads one account; ErrNotFound when missing.
func (r *Repository) User(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "Directory.User")
	defer span.End()

	user := new(entity.User)
	err := r.reader.NewSelect().Model(user).Where("u.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return user, nil
}

// Category loads one category; ErrNotFound when missing.
func (r *Repository) Category(ctx context.Context, id string) (*entity.Category, error) {
	ctx, span := tracer.Start(ctx, "Directory.Category")
	defer span.End()

	category := new(entity.Category)
	err := r.reader.NewSelect().Model(category).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return category, nil
}

// Categories lists every category by name.
func (r *Repository) Categories(ctx context.Context) ([]entity.Category, error) {
	ctx, span := tracer.Start(ctx, "Directory.Categories")
	defer span.End()

	var categories []entity.Category
	if err := r.reader.NewSelect().Model(&categories).OrderExpr("c.name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return categories, nil
}

// Static is an in-process directory used with the memory driver.
type Static struct {
	mu         sync.RWMutex
	users      map[string]entity.User
	categories map[string]entity.Category
}

// NewStatic returns an empty in-process directory.
func NewStatic() *Static {
	return &Static{
		users:      make(map[string]entity.User),
		categories: make(map[string]entity.Category),
	}
}

// PutUser registers or replaces a user.
func (s *Static) PutUser(u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutCategory registers or replaces a category.
func (s *Static) PutCategory(c entity.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

// User returns a registered user.
func (s *Static) User(_ context.Context, id string) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// Category returns a registered category.
func (s *Static) Category(_ context.Context, id string) (*entity.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// Categories returns every registered category.
func (s *Static) Categories(_ context.Context) ([]entity.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out, nil
}
