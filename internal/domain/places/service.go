package places

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/metrics"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/validation"
)

type Store interface {
	Get(ctx context.Context, id string) (*Place, error)
	Create(ctx context.Context, p *Place) error
	Update(ctx context.Context, p *Place) error
	SetStatus(ctx context.Context, id string, s Status) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ToggleLike(ctx context.Context, placeID, userID string) (bool, int, error)
	Track(ctx context.Context, placeID, userID string, kind EventKind) error
	Statistics(ctx context.Context, placeID string, from, to *time.Time) (Stats, error)
	ListForAdmin(ctx context.Context, f AdminFilter) ([]Place, int, error)
}

type Ledger interface {
	Reserve(ctx context.Context, userID, id string) (*userpackages.UserPackage, userpackages.Undo, error)
}

type Policy interface {
	Get(ctx context.Context) (appconfig.AppConfig, error)
}

// ReviewCascade удаляет отзывы удалённого объявления.
type ReviewCascade interface {
	DeleteByPlace(ctx context.Context, placeID string) error
}

// Lifecycle — создание, редактирование, модерация и удаление объявлений.
type Lifecycle struct {
	store    Store
	ledger   Ledger
	policy   Policy
	reviews  ReviewCascade
	authz    *authz.Authorizer
	notifier notify.Dispatcher
	log      *slog.Logger
	now      func() time.Time
}

func NewLifecycle(
	store Store,
	ledger Ledger,
	policy Policy,
	reviews ReviewCascade,
	az *authz.Authorizer,
	notifier notify.Dispatcher,
	log *slog.Logger,
) *Lifecycle {
	return &Lifecycle{
		store:    store,
		ledger:   ledger,
		policy:   policy,
		reviews:  reviews,
		authz:    az,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Create создаёт объявление. При включённых платных размещениях
// in.PackageID обязателен: покупается тариф или списывается
// использование уже купленного.
func (l *Lifecycle) Create(ctx context.Context, sub authz.Subject, in Input) (*Place, *userpackages.UserPackage, error) {
	if err := l.authz.Require(sub, authz.ObjPlace, authz.ActCreate); err != nil {
		return nil, nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	cfg, err := l.policy.Get(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		up   *userpackages.UserPackage
		undo userpackages.Undo
	)
	if cfg.Places.EnablePaidListings {
		if in.PackageID == "" {
			return nil, nil, apperr.Validation("packageId", "is required")
		}
		up, undo, err = l.ledger.Reserve(ctx, sub.UserID, in.PackageID)
		if err != nil {
			return nil, nil, err
		}
	}

	now := l.now()
	p := &Place{
		ID:        uuid.NewString(),
		UserID:    sub.UserID,
		Status:    InitialStatus(cfg.Places),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.applyTo(p)

	if up != nil {
		p.UserPackageID = &up.ID
		if up.Status == userpackages.StatusPaid {
			p.ApplyEntitlement(up.Package, now)
		}
	}

	if err := l.store.Create(ctx, p); err != nil {
		if undo != nil {
			if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
				l.log.Error("failed to revert package after place create failure",
					"user_package_id", up.ID,
					"user_id", sub.UserID,
					"err", uerr,
				)
			}
		}
		return nil, nil, fmt.Errorf("places: create: %w", err)
	}
	metrics.ListingTransitions.WithLabelValues(string(p.Status)).Inc()
	l.log.Info("place created",
		"place_id", p.ID,
		"user_id", p.UserID,
		"status", p.Status,
		"featured", p.IsFeatured,
	)

	if p.Status != StatusApproved {
		notify.Send(ctx, l.notifier, l.log, notify.Event{
			Kind:       notify.PlacePending,
			PlaceID:    p.ID,
			PlaceTitle: p.Title,
			UserID:     p.UserID,
		})
	}
	return p, up, nil
}

// Update меняет содержимое объявления; после правки оно снова
// проходит модерацию (или сразу одобряется при autoApprove).
func (l *Lifecycle) Update(ctx context.Context, sub authz.Subject, id string, in Input) (*Place, error) {
	p, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.authz.RequireOwner(sub, p.UserID, authz.ObjPlace, authz.ActUpdate); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	cfg, err := l.policy.Get(ctx)
	if err != nil {
		return nil, err
	}

	in.applyTo(p)
	p.MarkEdited(cfg.Places)
	if err := l.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("places: update: %w", err)
	}
	metrics.ListingTransitions.WithLabelValues(string(p.Status)).Inc()

	if p.Status != StatusApproved {
		notify.Send(ctx, l.notifier, l.log, notify.Event{
			Kind:       notify.PlacePending,
			PlaceID:    p.ID,
			PlaceTitle: p.Title,
			UserID:     p.UserID,
		})
	}
	return p, nil
}

// Moderate — смена статуса администратором.
func (l *Lifecycle) Moderate(ctx context.Context, sub authz.Subject, id string, status Status) (*Place, error) {
	if err := l.authz.Require(sub, authz.ObjPlace, authz.ActModerate); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Validation("status", "unknown status")
	}
	p, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.store.SetStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("places: set status: %w", err)
	}
	p.Status = status
	metrics.ListingTransitions.WithLabelValues(string(status)).Inc()

	switch status {
	case StatusApproved:
		notify.Send(ctx, l.notifier, l.log, notify.Event{Kind: notify.PlaceApproved, PlaceID: p.ID, PlaceTitle: p.Title, UserID: p.UserID})
	case StatusRejected:
		notify.Send(ctx, l.notifier, l.log, notify.Event{Kind: notify.PlaceRejected, PlaceID: p.ID, PlaceTitle: p.Title, UserID: p.UserID})
	}
	return p, nil
}

// Delete помечает объявление удалённым и удаляет его отзывы.
// Ошибка каскада только логируется.
func (l *Lifecycle) Delete(ctx context.Context, sub authz.Subject, id string) error {
	p, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.authz.RequireOwner(sub, p.UserID, authz.ObjPlace, authz.ActDelete); err != nil {
		return err
	}
	if err := l.store.SoftDelete(ctx, id, l.now()); err != nil {
		return fmt.Errorf("places: delete: %w", err)
	}
	l.log.Info("place deleted", "place_id", id, "by", sub.UserID)

	if l.reviews != nil {
		if err := l.reviews.DeleteByPlace(ctx, id); err != nil {
			l.log.Error("failed to delete place reviews",
				"place_id", id,
				"err", err,
			)
		}
	}
	return nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*Place, error) {
	p, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("places: get: %w", err)
	}
	if p == nil {
		return nil, apperr.NotFound("place")
	}
	return p, nil
}

// ToggleLike ставит или снимает лайк; возвращает новое состояние и счётчик.
func (l *Lifecycle) ToggleLike(ctx context.Context, sub authz.Subject, id string) (bool, int, error) {
	if err := l.authz.Require(sub, authz.ObjPlace, authz.ActLike); err != nil {
		return false, 0, err
	}
	if _, err := l.Get(ctx, id); err != nil {
		return false, 0, err
	}
	return l.store.ToggleLike(ctx, id, sub.UserID)
}

// Track учитывает просмотр или звонок. Пользователь может быть анонимным.
func (l *Lifecycle) Track(ctx context.Context, userID, id string, kind EventKind) error {
	if kind != EventView && kind != EventCall {
		return apperr.Validation("type", "must be view or call")
	}
	if _, err := l.Get(ctx, id); err != nil {
		return err
	}
	return l.store.Track(ctx, id, userID, kind)
}

// Statistics доступна владельцу и администраторам.
func (l *Lifecycle) Statistics(ctx context.Context, sub authz.Subject, id string, from, to *time.Time) (Stats, error) {
	p, err := l.Get(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	if err := l.authz.RequireOwner(sub, p.UserID, authz.ObjPlace, authz.ActStats); err != nil {
		return Stats{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return Stats{}, apperr.Validation("from", "must not be after to")
	}
	return l.store.Statistics(ctx, id, from, to)
}

func (l *Lifecycle) ListForAdmin(ctx context.Context, sub authz.Subject, f AdminFilter) ([]Place, int, error) {
	if err := l.authz.Require(sub, authz.ObjPlace, authz.ActList); err != nil {
		return nil, 0, err
	}
	return l.store.ListForAdmin(ctx, f)
}
