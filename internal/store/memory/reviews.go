package memory

import (
	"context"
	"sort"

	"github.com/Spok95/placesdir/internal/domain/reviews"
)

type Reviews struct{ db *DB }

func (db *DB) adjustRating(placeID string, dc, dt int) {
	p, ok := db.places[placeID]
	if !ok || (dc == 0 && dt == 0) {
		return
	}
	p.AdjustRating(dc, dt)
	p.UpdatedAt = db.now()
	db.places[placeID] = p
}

func (s *Reviews) Get(_ context.Context, id string) (*reviews.Review, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rv, ok := s.db.reviews[id]
	if !ok {
		return nil, nil
	}
	return &rv, nil
}

func (s *Reviews) Create(_ context.Context, rv *reviews.Review, dc, dt int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	rv.CreatedAt, rv.UpdatedAt = now, now
	s.db.reviews[rv.ID] = *rv
	s.db.adjustRating(rv.PlaceID, dc, dt)
	return nil
}

func (s *Reviews) Transition(_ context.Context, rv *reviews.Review, to reviews.Status, dc, dt int) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.reviews[rv.ID]
	if !ok || cur.Status != rv.Status {
		return false, nil
	}
	cur.Status = to
	cur.UpdatedAt = s.db.now()
	s.db.reviews[rv.ID] = cur
	s.db.adjustRating(cur.PlaceID, dc, dt)
	return true, nil
}

func (s *Reviews) Delete(_ context.Context, rv *reviews.Review, dc, dt int) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.reviews[rv.ID]
	if !ok || cur.Status != rv.Status {
		return false, nil
	}
	delete(s.db.reviews, rv.ID)
	s.db.adjustRating(cur.PlaceID, dc, dt)
	return true, nil
}

func (s *Reviews) DeleteByPlace(_ context.Context, placeID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, rv := range s.db.reviews {
		if rv.PlaceID == placeID {
			delete(s.db.reviews, id)
			n++
		}
	}
	return n, nil
}

func (s *Reviews) CountByUserPlace(_ context.Context, userID, placeID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, rv := range s.db.reviews {
		if rv.UserID == userID && rv.PlaceID == placeID {
			n++
		}
	}
	return n, nil
}

func (s *Reviews) ListByPlace(_ context.Context, placeID string, onlyPublished bool) ([]reviews.Review, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []reviews.Review
	for _, rv := range s.db.reviews {
		if rv.PlaceID != placeID || (onlyPublished && rv.Status != reviews.StatusPublished) {
			continue
		}
		out = append(out, rv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
