package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// CategoryCatalog answers "what kind and segment is category N" for an
// owner. Lists are cached per owner; the shared defaults only change
// through migrations.
type CategoryCatalog struct {
	queries *storage.Queries
	cache   *cache.LRUCache[[]core.Category]
}

func NewCategoryCatalog(queries *storage.Queries, size int, ttl time.Duration) *CategoryCatalog {
	return &CategoryCatalog{
		queries: queries,
		cache:   cache.NewLRUCache[[]core.Category](size, ttl),
	}
}

// Cache exposes the underlying cache for registration with a cache.Manager.
func (c *CategoryCatalog) Cache() *cache.LRUCache[[]core.Category] { return c.cache }

// List returns the categories available to owner.
func (c *CategoryCatalog) List(ctx context.Context, owner string) ([]core.Category, error) {
	return c.cache.GetOrLoad(owner, func() ([]core.Category, error) {
		return c.queries.ListCategories(ctx, owner)
	})
}

// Lookup resolves a category id visible to owner.
func (c *CategoryCatalog) Lookup(ctx context.Context, owner string, id int64) (core.Category, error) {
	cats, err := c.List(ctx, owner)
	if err != nil {
		return core.Category{}, err
	}
	for _, cat := range cats {
		if cat.ID == id {
			return cat, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: id %d", core.ErrCategoryNotFound, id)
}

// Create adds an owner-specific category and drops the owner's cached list.
func (c *CategoryCatalog) Create(ctx context.Context, owner, name string, kind core.Kind, segment string) (core.Category, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Category{}, err
	}
	kind, err := core.ParseKind(string(kind))
	if err != nil {
		return core.Category{}, err
	}
	if utf8.RuneCountInString(segment) > 100 {
		return core.Category{}, fmt.Errorf("segment: %w", core.ErrNameTooLong)
	}
	cat, err := c.queries.CreateCategory(ctx, core.Category{Owner: owner, Name: name, Kind: kind, Segment: segment})
	if err != nil {
		return cat, err
	}
	c.cache.Delete(owner)
	return cat, nil
}
