package memory

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/geo"
)

type Places struct{ db *DB }

func (s *Places) Get(_ context.Context, id string) (*places.Place, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.places[id]
	if !ok || p.DeletedAt != nil {
		return nil, nil
	}
	p = clonePlace(p)
	return &p, nil
}

func (s *Places) Create(_ context.Context, p *places.Place) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.places[p.ID]; ok {
		return fmt.Errorf("memory: place %s already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.db.now()
	}
	p.UpdatedAt = p.CreatedAt
	s.db.places[p.ID] = clonePlace(*p)
	return nil
}

// Update сохраняет содержимое и статус; счётчики, рейтинг и сроки не меняются.
func (s *Places) Update(_ context.Context, p *places.Place) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.places[p.ID]
	if !ok || cur.DeletedAt != nil {
		return apperr.NotFound("place")
	}
	next := clonePlace(*p)
	next.RatingCount, next.RatingTotal, next.RatingAvg = cur.RatingCount, cur.RatingTotal, cur.RatingAvg
	next.ViewCount, next.CallCount, next.LikeCount = cur.ViewCount, cur.CallCount, cur.LikeCount
	next.IsFeatured, next.ExpiresAt, next.FeaturedExpiresAt = cur.IsFeatured, cur.ExpiresAt, cur.FeaturedExpiresAt
	next.UserPackageID = cur.UserPackageID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.db.now()
	s.db.places[p.ID] = next
	p.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *Places) SetStatus(_ context.Context, id string, st places.Status) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.places[id]
	if !ok || p.DeletedAt != nil {
		return apperr.NotFound("place")
	}
	p.Status = st
	p.UpdatedAt = s.db.now()
	s.db.places[id] = p
	return nil
}

func (s *Places) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.places[id]
	if !ok || p.DeletedAt != nil {
		return nil
	}
	p.DeletedAt = &at
	s.db.places[id] = p
	return nil
}

func (s *Places) ToggleLike(_ context.Context, placeID, userID string) (bool, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.places[placeID]
	if !ok {
		return false, 0, apperr.NotFound("place")
	}
	k := likeKey{placeID: placeID, userID: userID}
	liked := !s.db.likes[k]
	if liked {
		s.db.likes[k] = true
		p.LikeCount++
		s.db.events = append(s.db.events, appEvent{kind: places.EventLike, placeID: placeID, userID: userID, at: s.db.now()})
	} else {
		delete(s.db.likes, k)
		p.LikeCount = max(p.LikeCount-1, 0)
	}
	s.db.places[placeID] = p
	return liked, p.LikeCount, nil
}

func (s *Places) Track(_ context.Context, placeID, userID string, kind places.EventKind) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.places[placeID]
	if !ok || p.DeletedAt != nil {
		return nil
	}
	switch kind {
	case places.EventView:
		p.ViewCount++
	case places.EventCall:
		p.CallCount++
	default:
		return fmt.Errorf("places: unsupported event %q", kind)
	}
	s.db.places[placeID] = p
	s.db.events = append(s.db.events, appEvent{kind: kind, placeID: placeID, userID: userID, at: s.db.now()})
	return nil
}

func (s *Places) Statistics(_ context.Context, placeID string, from, to *time.Time) (places.Stats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var st places.Stats
	if from == nil && to == nil {
		p := s.db.places[placeID]
		return places.Stats{Views: p.ViewCount, Calls: p.CallCount, Likes: p.LikeCount}, nil
	}
	for _, e := range s.db.events {
		if e.placeID != placeID ||
			(from != nil && e.at.Before(*from)) ||
			(to != nil && e.at.After(*to)) {
			continue
		}
		switch e.kind {
		case places.EventView:
			st.Views++
		case places.EventCall:
			st.Calls++
		case places.EventLike:
			st.Likes++
		}
	}
	return st, nil
}

func (s *Places) ListForAdmin(ctx context.Context, f places.AdminFilter) ([]places.Place, int, error) {
	c := places.Criteria{UserID: f.UserID, Limit: f.Limit, Offset: f.Offset, Sort: []places.Sort{{Field: "createdAt", Desc: true}}}
	if f.Status != "" {
		c.Statuses = []places.Status{f.Status}
	}
	total, err := s.Count(ctx, c)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.Search(ctx, c)
	return out, total, err
}

/* Поиск */

// match применяет условия c; второй результат — удалённость, если
// в условиях задана точка.
func match(p places.Place, c places.Criteria) (bool, *float64) {
	if p.DeletedAt != nil {
		return false, nil
	}
	if len(c.IDs) > 0 && !slices.Contains(c.IDs, p.ID) {
		return false, nil
	}
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, p.Status) {
		return false, nil
	}
	if c.UserID != "" && p.UserID != c.UserID {
		return false, nil
	}
	if len(c.Categories) > 0 && !slices.ContainsFunc(p.CategoryIDs, func(id string) bool {
		return slices.Contains(c.Categories, id)
	}) {
		return false, nil
	}
	if c.Tag != "" && !strings.Contains(p.Canonical, c.Tag) && !slices.Contains(p.Tags, c.Tag) {
		return false, nil
	}
	if c.RatingMin != nil && p.RatingAvg < *c.RatingMin {
		return false, nil
	}
	if c.RatingMax != nil && p.RatingAvg > *c.RatingMax {
		return false, nil
	}
	if c.Featured != nil && p.IsFeatured != *c.Featured {
		return false, nil
	}

	switch c.Geo.Mode {
	case places.GeoBox:
		return c.Geo.Box.Contains(p.Location), nil
	case places.GeoRadius, places.GeoNear:
		d := geo.Distance(c.Geo.Center, p.Location, c.Geo.Unit)
		if c.Geo.Mode == places.GeoRadius && d > c.Geo.Radius {
			return false, nil
		}
		return true, &d
	}
	return true, nil
}

func compareField(a, b places.Place, field string) int {
	switch field {
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "title":
		return cmp.Compare(a.Title, b.Title)
	case "ratingAvg":
		return cmp.Compare(a.RatingAvg, b.RatingAvg)
	case "ratingCount":
		return cmp.Compare(a.RatingCount, b.RatingCount)
	case "viewCount":
		return cmp.Compare(a.ViewCount, b.ViewCount)
	case "likeCount":
		return cmp.Compare(a.LikeCount, b.LikeCount)
	}
	return 0
}

func (db *DB) selectPlaces(c places.Criteria) []places.Place {
	var out []places.Place
	for _, p := range db.places {
		ok, d := match(p, c)
		if !ok {
			continue
		}
		p = clonePlace(p)
		p.Distance = d
		out = append(out, p)
	}
	byDistance := c.Geo.Sorted && (c.Geo.Mode == places.GeoRadius || c.Geo.Mode == places.GeoNear)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if byDistance {
			if r := cmp.Compare(*a.Distance, *b.Distance); r != 0 {
				return r < 0
			}
		}
		for _, s := range c.Sort {
			r := compareField(a, b, s.Field)
			if s.Desc {
				r = -r
			}
			if r != 0 {
				return r < 0
			}
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Places) Search(_ context.Context, c places.Criteria) ([]places.Place, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return page(s.db.selectPlaces(c), c.Offset, c.Limit), nil
}

func (s *Places) Count(_ context.Context, c places.Criteria) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.selectPlaces(c)), nil
}

func (s *Places) Sample(_ context.Context, c places.Criteria, n int) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	all := s.db.selectPlaces(c)
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	all = page(all, 0, n)
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	return ids, nil
}

/* Истечение сроков */

func (s *Places) ExpireDue(_ context.Context, now time.Time, batch int) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, p := range s.db.places {
		if batch > 0 && n >= int64(batch) {
			break
		}
		if !p.ShouldExpire(now) {
			continue
		}
		p.Status = places.StatusExpired
		p.UpdatedAt = now
		s.db.places[id] = p
		n++
	}
	return n, nil
}

func (s *Places) UnfeatureDue(_ context.Context, now time.Time, batch int) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, p := range s.db.places {
		if batch > 0 && n >= int64(batch) {
			break
		}
		if !p.ShouldUnfeature(now) {
			continue
		}
		p.IsFeatured = false
		p.UpdatedAt = now
		s.db.places[id] = p
		n++
	}
	return n, nil
}
