// Package scheduler — периодическое истечение сроков объявлений.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Spok95/placesdir/internal/infra/lock"
	"github.com/Spok95/placesdir/internal/infra/metrics"
)

const (
	lockKey = "placesdir:scheduler:expiration"

	DefaultInterval  = time.Hour
	DefaultBatchSize = 500
	DefaultLockTTL   = 10 * time.Minute
)

type Store interface {
	ExpireDue(ctx context.Context, now time.Time, batch int) (int64, error)
	UnfeatureDue(ctx context.Context, now time.Time, batch int) (int64, error)
}

type Admins interface {
	ExistsSuperAdmin(ctx context.Context) (bool, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// Report — итог одного прогона.
type Report struct {
	Expired    int64
	Unfeatured int64
	// Skipped — причина пропуска прогона, пусто если прогон был
	Skipped string
}

type Scheduler struct {
	store   Store
	admins  Admins
	locker  lock.Locker
	cfg     Config
	log     *slog.Logger
	running atomic.Bool
	now     func() time.Time
}

func New(store Store, admins Admins, locker lock.Locker, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	return &Scheduler{store: store, admins: admins, locker: locker, cfg: cfg, log: log, now: time.Now}
}

func (s *Scheduler) String() string { return "expiration-scheduler" }

// Serve — сервис suture: прогон по тикеру до отмены ctx.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.cfg.Interval)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.RunOnce(ctx, s.now()); err != nil {
				s.log.Error("expiration run failed", "err", err)
			}
		}
	}
}

// RunOnce выполняет обе выборки. Прогон пропускается, если предыдущий
// ещё идёт, если нет super_admin или если блокировку держит другой
// экземпляр. Ошибка одной выборки не отменяет другую.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("expiration run skipped: previous run still active")
		return Report{Skipped: "running"}, nil
	}
	defer s.running.Store(false)

	ok, err := s.admins.ExistsSuperAdmin(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: check super admin: %w", err)
	}
	if !ok {
		s.log.Debug("expiration run skipped: no super admin")
		return Report{Skipped: "no_super_admin"}, nil
	}

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return Report{}, fmt.Errorf("scheduler: lock: %w", err)
		}
		if !ok {
			s.log.Info("expiration run skipped: locked by another instance")
			return Report{Skipped: "locked"}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release scheduler lock", "err", err)
			}
		}()
	}

	var r Report
	var errExpire, errUnfeature error
	r.Expired, errExpire = s.sweep(ctx, "expire", now, s.store.ExpireDue)
	r.Unfeatured, errUnfeature = s.sweep(ctx, "unfeature", now, s.store.UnfeatureDue)

	s.log.Info("expiration run finished",
		"expired", r.Expired,
		"unfeatured", r.Unfeatured,
	)
	return r, errors.Join(errExpire, errUnfeature)
}

type sweepFunc func(ctx context.Context, now time.Time, batch int) (int64, error)

// sweep повторяет пакетную выборку, пока пакет заполняется целиком.
func (s *Scheduler) sweep(ctx context.Context, name string, now time.Time, fn sweepFunc) (int64, error) {
	var total int64
	for {
		n, err := fn(ctx, now, s.cfg.BatchSize)
		total += n
		if err != nil {
			metrics.SchedulerSweeps.WithLabelValues(name, "error").Inc()
			metrics.SchedulerRows.WithLabelValues(name).Add(float64(total))
			s.log.Error("expiration sweep failed", "sweep", name, "err", err)
			return total, fmt.Errorf("scheduler: %s: %w", name, err)
		}
		if n < int64(s.cfg.BatchSize) || ctx.Err() != nil {
			break
		}
	}
	metrics.SchedulerSweeps.WithLabelValues(name, "ok").Inc()
	metrics.SchedulerRows.WithLabelValues(name).Add(float64(total))
	return total, nil
}
