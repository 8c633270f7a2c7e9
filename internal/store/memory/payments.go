package memory

import (
	"context"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/payments"
)

type Payments struct{ db *DB }

// Apply работает с копиями и записывает их только при успехе fn,
// как транзакция в Postgres.
func (s *Payments) Apply(
	_ context.Context,
	provider, eventID, _, userPackageID, placeID string,
	fn payments.ApplyFunc,
) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := provider + ":" + eventID
	if eventID != "" && s.db.webhooks[key] {
		return payments.ErrDuplicateEvent
	}

	cur, ok := s.db.userPackages[userPackageID]
	if !ok || cur.DeletedAt != nil {
		return apperr.NotFound("user package")
	}
	up := cloneUserPackage(cur)
	wasPaid := cur.Status != userpackages.StatusUnpaid

	var p *places.Place
	if placeID != "" {
		pl, ok := s.db.places[placeID]
		if !ok {
			return apperr.NotFound("place")
		}
		pl = clonePlace(pl)
		p = &pl
	}

	if err := fn(&up, p); err != nil {
		return err
	}
	if wasPaid {
		return apperr.PaymentStateConflict("user package already paid")
	}

	s.db.userPackages[up.ID] = up
	if p != nil && p.DeletedAt == nil {
		stored := s.db.places[p.ID]
		stored.Status = p.Status
		stored.IsFeatured = p.IsFeatured
		stored.ExpiresAt = p.ExpiresAt
		stored.FeaturedExpiresAt = p.FeaturedExpiresAt
		stored.UpdatedAt = s.db.now()
		s.db.places[p.ID] = stored
	}
	if eventID != "" {
		s.db.webhooks[key] = true
	}
	return nil
}
