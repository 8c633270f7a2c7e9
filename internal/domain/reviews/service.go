package reviews

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/validation"
)

type Store interface {
	Get(ctx context.Context, id string) (*Review, error)
	Create(ctx context.Context, rv *Review, dc, dt int) error
	Transition(ctx context.Context, rv *Review, to Status, dc, dt int) (bool, error)
	Delete(ctx context.Context, rv *Review, dc, dt int) (bool, error)
	DeleteByPlace(ctx context.Context, placeID string) (int64, error)
	CountByUserPlace(ctx context.Context, userID, placeID string) (int, error)
	ListByPlace(ctx context.Context, placeID string, onlyPublished bool) ([]Review, error)
}

type Places interface {
	Get(ctx context.Context, id string) (*places.Place, error)
}

type Policy interface {
	Get(ctx context.Context) (appconfig.AppConfig, error)
}

// попытки при конкурентной смене статуса
const maxAttempts = 3

type Service struct {
	store    Store
	places   Places
	policy   Policy
	authz    *authz.Authorizer
	notifier notify.Dispatcher
	log      *slog.Logger
}

func NewService(store Store, pl Places, policy Policy, az *authz.Authorizer, notifier notify.Dispatcher, log *slog.Logger) *Service {
	return &Service{store: store, places: pl, policy: policy, authz: az, notifier: notifier, log: log}
}

func (s *Service) Create(ctx context.Context, sub authz.Subject, in Input) (*Review, error) {
	if err := s.authz.Require(sub, authz.ObjReview, authz.ActCreate); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	cfg, err := s.policy.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Reviews.Disabled {
		return nil, apperr.Validation("review", "reviews are disabled")
	}

	p, err := s.places.Get(ctx, in.PlaceID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("place")
	}

	if !cfg.Reviews.MultiplePerUser {
		n, err := s.store.CountByUserPlace(ctx, sub.UserID, in.PlaceID)
		if err != nil {
			return nil, fmt.Errorf("reviews: count: %w", err)
		}
		if n > 0 {
			return nil, apperr.Validation("placeId", "you have already reviewed this place")
		}
	}

	rv := &Review{
		ID:      uuid.NewString(),
		PlaceID: in.PlaceID,
		UserID:  sub.UserID,
		Rating:  in.Rating,
		Comment: in.Comment,
		Status:  StatusPending,
	}
	if cfg.Reviews.AutoApprove {
		rv.Status = StatusPublished
	}
	dc, dt := RatingDelta("", rv.Status, rv.Rating)
	if err := s.store.Create(ctx, rv, dc, dt); err != nil {
		return nil, fmt.Errorf("reviews: create: %w", err)
	}

	kind := notify.ReviewPending
	if rv.Status == StatusPublished {
		kind = notify.ReviewPublished
	}
	notify.Send(ctx, s.notifier, s.log, notify.Event{Kind: kind, ReviewID: rv.ID, PlaceID: rv.PlaceID, PlaceTitle: p.Title, UserID: rv.UserID})
	return rv, nil
}

// SetStatus — модерация отзыва; агрегаты объявления пересчитываются
// при публикации и снятии с публикации.
func (s *Service) SetStatus(ctx context.Context, sub authz.Subject, id string, to Status) (*Review, error) {
	if err := s.authz.Require(sub, authz.ObjReview, authz.ActModerate); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, apperr.Validation("status", "unknown status")
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		rv, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rv.Status == to {
			return rv, nil
		}
		dc, dt := RatingDelta(rv.Status, to, rv.Rating)
		ok, err := s.store.Transition(ctx, rv, to, dc, dt)
		if err != nil {
			return nil, fmt.Errorf("reviews: set status: %w", err)
		}
		if ok {
			rv.Status = to
			if to == StatusPublished {
				notify.Send(ctx, s.notifier, s.log, notify.Event{Kind: notify.ReviewPublished, ReviewID: rv.ID, PlaceID: rv.PlaceID, UserID: rv.UserID})
			}
			return rv, nil
		}
	}
	return nil, fmt.Errorf("reviews: status of %s keeps changing", id)
}

func (s *Service) Delete(ctx context.Context, sub authz.Subject, id string) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rv, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.RequireOwner(sub, rv.UserID, authz.ObjReview, authz.ActDelete); err != nil {
			return err
		}
		dc, dt := RatingDelta(rv.Status, "", rv.Rating)
		ok, err := s.store.Delete(ctx, rv, dc, dt)
		if err != nil {
			return fmt.Errorf("reviews: delete: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("reviews: status of %s keeps changing", id)
}

// DeleteByPlace — каскад при удалении объявления.
func (s *Service) DeleteByPlace(ctx context.Context, placeID string) error {
	n, err := s.store.DeleteByPlace(ctx, placeID)
	if err != nil {
		return err
	}
	s.log.Info("place reviews deleted", "place_id", placeID, "count", n)
	return nil
}

func (s *Service) ListByPlace(ctx context.Context, placeID string) ([]Review, error) {
	return s.store.ListByPlace(ctx, placeID, true)
}

func (s *Service) get(ctx context.Context, id string) (*Review, error) {
	rv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reviews: get: %w", err)
	}
	if rv == nil {
		return nil, apperr.NotFound("review")
	}
	return rv, nil
}
