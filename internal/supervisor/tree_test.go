package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingService struct {
	name   string
	starts atomic.Int32
	done   chan struct{}
}

func (s *countingService) String() string { return s.name }

func (s *countingService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 {
		// первый запуск падает, супервизор должен перезапустить
		return errors.New("boom")
	}
	close(s.done)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRestartsFailedService(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tree := New(log, Config{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})

	svc := &countingService{name: "flaky", done: make(chan struct{})}
	tree.AddJob(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	select {
	case <-svc.done:
	case <-time.After(5 * time.Second):
		t.Fatal("service was not restarted")
	}
	cancel()

	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
	if got := svc.starts.Load(); got < 2 {
		t.Errorf("starts: got %d, want >= 2", got)
	}
}
