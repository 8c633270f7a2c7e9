package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
)

type UserPackages struct{ db *DB }

func (s *UserPackages) Get(_ context.Context, id string) (*userpackages.UserPackage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.userPackages[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	u = cloneUserPackage(u)
	return &u, nil
}

func (s *UserPackages) CountActive(_ context.Context, userID, packageID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.countActive(userID, packageID), nil
}

func (db *DB) countActive(userID, packageID string) int {
	n := 0
	for _, u := range db.userPackages {
		if u.UserID == userID && u.PackageID() == packageID && u.DeletedAt == nil {
			n++
		}
	}
	return n
}

// Create повторяет частичный уникальный индекс: эксклюзивный пакет
// покупается пользователем не более одного раза.
func (s *UserPackages) Create(_ context.Context, u *userpackages.UserPackage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u.Exclusive() {
		for _, cur := range s.db.userPackages {
			if cur.Exclusive() && cur.UserID == u.UserID && cur.PackageID() == u.PackageID() && cur.DeletedAt == nil {
				return apperr.DuplicatePurchase()
			}
		}
	}
	now := s.db.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.db.userPackages[u.ID] = cloneUserPackage(*u)
	return nil
}

// Consume — атомарное списание; nil, nil, если покупка не оплачена
// или лимит исчерпан.
func (s *UserPackages) Consume(_ context.Context, id string) (*userpackages.UserPackage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.userPackages[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	if err := u.Consume(s.db.now()); err != nil {
		return nil, nil
	}
	s.db.userPackages[id] = u
	u = cloneUserPackage(u)
	return &u, nil
}

func (s *UserPackages) Release(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.userPackages[id]
	if !ok || u.DeletedAt != nil || u.Usage == 0 {
		return nil
	}
	u.Release(s.db.now())
	s.db.userPackages[id] = u
	return nil
}

func (s *UserPackages) Cancel(_ context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.userPackages[id]
	if !ok || u.DeletedAt != nil {
		return nil
	}
	u.DeletedAt = &at
	u.UpdatedAt = s.db.now()
	s.db.userPackages[id] = u
	return nil
}

func (s *UserPackages) List(_ context.Context, f userpackages.Filter) ([]userpackages.UserPackage, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var out []userpackages.UserPackage
	for _, u := range s.db.userPackages {
		if u.DeletedAt != nil ||
			(f.UserID != "" && u.UserID != f.UserID) ||
			(f.Status != "" && u.Status != f.Status) {
			continue
		}
		out = append(out, cloneUserPackage(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Offset, f.Limit), len(out), nil
}
