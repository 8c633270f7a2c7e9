package memory

import (
	"context"
	"sort"

	"github.com/Spok95/placesdir/internal/domain/catalog"
)

type Catalog struct{ db *DB }

func (s *Catalog) GetPackage(_ context.Context, id string) (*catalog.Package, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.packages[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Catalog) ListPackages(_ context.Context, onlyActive bool) ([]catalog.Package, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []catalog.Package
	for _, p := range s.db.packages {
		if p.DeletedAt != nil || (onlyActive && p.Status != catalog.StatusActive) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Catalog) CreatePackage(_ context.Context, p *catalog.Package) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.db.packages[p.ID] = *p
	return nil
}

// PutCategory добавляет категорию (справочник ведётся вне сервиса).
func (s *Catalog) PutCategory(c catalog.Category) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.categories[c.ID] = c
}

func (s *Catalog) CategoriesByIDs(_ context.Context, ids []string) ([]catalog.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []catalog.Category
	for _, id := range ids {
		if c, ok := s.db.categories[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}
