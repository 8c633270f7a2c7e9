// Package notify — контракт уведомлений о событиях объявлений и отзывов.
// Доставка best-effort: ошибки логируются и не влияют на операцию.
package notify

import (
	"context"
	"log/slog"

	"github.com/Spok95/placesdir/internal/infra/metrics"
)

type Kind string

const (
	PlacePending     Kind = "place_pending"     // новое или изменённое объявление ждёт модерации
	PlaceApproved    Kind = "place_approved"    // объявление одобрено
	PlaceRejected    Kind = "place_rejected"    // объявление отклонено
	PaymentConfirmed Kind = "payment_confirmed" // шлюз подтвердил оплату
	ReviewPending    Kind = "review_pending"
	ReviewPublished  Kind = "review_published"
)

type Event struct {
	Kind          Kind
	PlaceID       string
	PlaceTitle    string
	UserID        string
	ReviewID      string
	UserPackageID string
}

type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Noop ничего не отправляет.
type Noop struct{}

func (Noop) Dispatch(context.Context, Event) error { return nil }

// Send отправляет событие и только логирует ошибку.
func Send(ctx context.Context, d Dispatcher, log *slog.Logger, e Event) {
	if d == nil {
		return
	}
	err := d.Dispatch(ctx, e)
	metrics.Notifications.WithLabelValues(string(e.Kind), metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn("notification failed",
			"kind", e.Kind,
			"place_id", e.PlaceID,
			"err", err,
		)
	}
}
