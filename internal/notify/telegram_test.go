package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Spok95/placesdir/internal/infra/metrics"
)

type fakeSender struct {
	calls int
	err   error
	last  string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.last = m.Text
	}
	return tgbotapi.Message{}, f.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTelegramDispatch(t *testing.T) {
	s := &fakeSender{}
	tg := NewTelegram(s, 42, discard())

	err := tg.Dispatch(context.Background(), Event{Kind: PlacePending, PlaceID: "p1", PlaceTitle: "Café"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(s.last, "Café") {
		t.Errorf("text: got %q", s.last)
	}
}

func TestTelegramBreakerOpens(t *testing.T) {
	s := &fakeSender{err: errors.New("telegram down")}
	tg := NewTelegram(s, 42, discard())

	for i := 0; i < 5; i++ {
		_ = tg.Dispatch(context.Background(), Event{Kind: PlaceApproved})
	}
	if s.calls != 3 {
		t.Errorf("calls: got %d, want 3 before breaker opens", s.calls)
	}
}

func TestSendLogsAndCounts(t *testing.T) {
	s := &fakeSender{err: errors.New("boom")}
	tg := NewTelegram(s, 1, discard())

	before := testutil.ToFloat64(metrics.Notifications.WithLabelValues(string(ReviewPending), "internal"))
	Send(context.Background(), tg, discard(), Event{Kind: ReviewPending})
	after := testutil.ToFloat64(metrics.Notifications.WithLabelValues(string(ReviewPending), "internal"))
	if after-before != 1 {
		t.Errorf("failed notifications: got %v, want 1", after-before)
	}

	Send(context.Background(), nil, discard(), Event{Kind: ReviewPending})
	Send(context.Background(), Noop{}, discard(), Event{Kind: ReviewPending})
}
