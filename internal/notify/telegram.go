package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"
)

// Sender — часть tgbotapi.BotAPI, нужная для отправки.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram пишет события в админский чат. Отправка идёт через
// circuit breaker, чтобы недоступный Telegram не тормозил запросы.
type Telegram struct {
	api    Sender
	chatID int64
	cb     *gobreaker.CircuitBreaker[tgbotapi.Message]
}

func NewTelegram(api Sender, chatID int64, log *slog.Logger) *Telegram {
	cb := gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &Telegram{api: api, chatID: chatID, cb: cb}
}

func (t *Telegram) Dispatch(_ context.Context, e Event) error {
	msg := tgbotapi.NewMessage(t.chatID, Text(e))
	_, err := t.cb.Execute(func() (tgbotapi.Message, error) {
		return t.api.Send(msg)
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Text — текст уведомления для администратора.
func Text(e Event) string {
	switch e.Kind {
	case PlacePending:
		return fmt.Sprintf("Объявление «%s» ждёт модерации (id %s)", e.PlaceTitle, e.PlaceID)
	case PlaceApproved:
		return fmt.Sprintf("Объявление «%s» одобрено", e.PlaceTitle)
	case PlaceRejected:
		return fmt.Sprintf("Объявление «%s» отклонено", e.PlaceTitle)
	case PaymentConfirmed:
		return fmt.Sprintf("Оплата подтверждена: пакет %s, объявление %s", e.UserPackageID, e.PlaceID)
	case ReviewPending:
		return fmt.Sprintf("Новый отзыв %s ждёт модерации (объявление %s)", e.ReviewID, e.PlaceID)
	case ReviewPublished:
		return fmt.Sprintf("Отзыв %s опубликован (объявление %s)", e.ReviewID, e.PlaceID)
	default:
		return fmt.Sprintf("Событие %s", e.Kind)
	}
}
