package services

import (
	"context"
	"log/slog"
	"sync"

	"finsync/internal/core"
	"finsync/internal/gateway"
	applog "finsync/internal/log"
	"finsync/internal/storage"
)

// CategoryService serves category reference data. Categories carry no
// client-originated mutations, so every successful remote fetch replaces
// the local cache wholesale.
type CategoryService struct {
	mu     sync.Mutex
	store  *storage.Repository
	remote gateway.CategoryGateway
	cached map[int64]core.Category
}

func NewCategoryService(store *storage.Repository, remote gateway.CategoryGateway) *CategoryService {
	return &CategoryService{
		store:  store,
		remote: remote,
	}
}

// Categories lists all categories, remote-first with local fallback.
func (s *CategoryService) Categories(ctx context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories, remoteErr := s.remote.ListCategories(ctx)
	if remoteErr == nil {
		if err := s.store.ReplaceCategories(ctx, categories); err != nil {
			slog.WarnContext(ctx, "Failed to persist fetched categories", applog.FieldError, err)
		}
		s.cacheLocked(categories)
		return categories, nil
	}

	slog.WarnContext(ctx, "Remote category fetch failed, serving local cache", applog.FieldError, remoteErr)

	if stored, err := s.store.ListCategories(ctx); err == nil && len(stored) > 0 {
		s.cacheLocked(stored)
		return stored, nil
	}
	if len(s.cached) > 0 {
		return s.cachedListLocked(), nil
	}
	return nil, remoteErr
}

// CategoriesByDirection lists categories of one direction. The remote
// endpoint is preferred; on failure the full local set is filtered.
func (s *CategoryService) CategoriesByDirection(ctx context.Context, direction core.Direction) ([]core.Category, error) {
	s.mu.Lock()
	filtered, remoteErr := s.remote.ListCategoriesByDirection(ctx, direction)
	if remoteErr == nil {
		s.mu.Unlock()
		return filtered, nil
	}
	s.mu.Unlock()

	all, err := s.Categories(ctx)
	if err != nil {
		return nil, remoteErr
	}
	var out []core.Category
	for _, c := range all {
		if c.Direction == direction {
			out = append(out, c)
		}
	}
	return out, nil
}

// CategoryMap returns categories keyed by id for balance recomputation,
// loading the local cache if nothing is in memory yet. Never fails: an
// empty map just means no reference data is known.
func (s *CategoryService) CategoryMap(ctx context.Context) map[int64]core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cached) == 0 {
		if stored, err := s.store.ListCategories(ctx); err == nil {
			s.cacheLocked(stored)
		}
	}

	out := make(map[int64]core.Category, len(s.cached))
	for id, c := range s.cached {
		out[id] = c
	}
	return out
}

func (s *CategoryService) cacheLocked(categories []core.Category) {
	s.cached = make(map[int64]core.Category, len(categories))
	for _, c := range categories {
		s.cached[c.ID] = c
	}
}

func (s *CategoryService) cachedListLocked() []core.Category {
	out := make([]core.Category, 0, len(s.cached))
	for _, c := range s.cached {
		out = append(out, c)
	}
	return out
}
