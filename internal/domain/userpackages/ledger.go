package userpackages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/infra/metrics"
)

type Store interface {
	Get(ctx context.Context, id string) (*UserPackage, error)
	CountActive(ctx context.Context, userID, packageID string) (int, error)
	Create(ctx context.Context, u *UserPackage) error
	Consume(ctx context.Context, id string) (*UserPackage, error)
	Release(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, f Filter) ([]UserPackage, int, error)
}

type Packages interface {
	Lookup(ctx context.Context, id string) (*catalog.Package, error)
	GetActive(ctx context.Context, id string) (*catalog.Package, error)
}

// Ledger ведёт покупки тарифов и списание использований.
type Ledger struct {
	packages Packages
	store    Store
	log      *slog.Logger
	now      func() time.Time
}

func NewLedger(packages Packages, store Store, log *slog.Logger) *Ledger {
	return &Ledger{packages: packages, store: store, log: log, now: time.Now}
}

// WithClock подменяет источник времени (для тестов).
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Purchase принимает id тарифа или id уже купленного UserPackage.
// Сначала ищется тариф, затем покупка.
func (l *Ledger) Purchase(ctx context.Context, userID, id string) (*UserPackage, error) {
	up, _, err := l.Reserve(ctx, userID, id)
	return up, err
}

// Undo отменяет результат Reserve.
type Undo func(ctx context.Context) error

// Reserve — Purchase с отменой на случай, если объявление так и не
// сохранилось: новая покупка удаляется, списанное использование возвращается.
func (l *Ledger) Reserve(ctx context.Context, userID, id string) (*UserPackage, Undo, error) {
	pkg, err := l.packages.Lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pkg != nil {
		up, err := l.buy(ctx, userID, *pkg)
		if err != nil {
			return nil, nil, err
		}
		return up, func(ctx context.Context) error { return l.cancel(ctx, up.ID) }, nil
	}
	up, err := l.ConsumeEntitlement(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	return up, func(ctx context.Context) error { return l.release(ctx, up.ID) }, nil
}

func (l *Ledger) cancel(ctx context.Context, id string) (err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("cancel", metrics.Outcome(err)).Inc() }()

	if err := l.store.Cancel(ctx, id, l.now()); err != nil {
		return fmt.Errorf("ledger: cancel: %w", err)
	}
	l.log.Info("purchase cancelled", "user_package_id", id)
	return nil
}

func (l *Ledger) release(ctx context.Context, id string) (err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("release", metrics.Outcome(err)).Inc() }()

	if err := l.store.Release(ctx, id); err != nil {
		return fmt.Errorf("ledger: release: %w", err)
	}
	l.log.Info("entitlement usage released", "user_package_id", id)
	return nil
}

func (l *Ledger) BuyPackage(ctx context.Context, userID, packageID string) (*UserPackage, error) {
	pkg, err := l.packages.GetActive(ctx, packageID)
	if err != nil {
		return nil, err
	}
	return l.buy(ctx, userID, *pkg)
}

func (l *Ledger) buy(ctx context.Context, userID string, pkg catalog.Package) (up *UserPackage, err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("buy", metrics.Outcome(err)).Inc() }()

	if pkg.DisableMultiplePurchases {
		n, err := l.store.CountActive(ctx, userID, pkg.ID)
		if err != nil {
			return nil, fmt.Errorf("ledger: count purchases: %w", err)
		}
		if n > 0 {
			return nil, apperr.DuplicatePurchase()
		}
	}

	u := New(uuid.NewString(), userID, pkg, l.now())
	if err := l.store.Create(ctx, &u); err != nil {
		return nil, fmt.Errorf("ledger: create: %w", err)
	}
	l.log.Info("package purchased",
		"user_package_id", u.ID,
		"package_id", pkg.ID,
		"user_id", userID,
		"status", u.Status,
	)
	return &u, nil
}

// ConsumeEntitlement списывает одно использование купленного тарифа.
func (l *Ledger) ConsumeEntitlement(ctx context.Context, userID, id string) (up *UserPackage, err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("consume", metrics.Outcome(err)).Inc() }()

	cur, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: get: %w", err)
	}
	if cur == nil {
		return nil, apperr.NotFound("package")
	}
	if cur.UserID != userID {
		return nil, apperr.Authorization("package belongs to another user")
	}
	if err := cur.CheckConsumable(); err != nil {
		return nil, err
	}

	up, err = l.store.Consume(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: consume: %w", err)
	}
	if up != nil {
		return up, nil
	}

	// условие UPDATE не выполнилось: состояние изменилось конкурентно
	cur, err = l.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: get: %w", err)
	}
	if cur == nil {
		return nil, apperr.NotFound("package")
	}
	if err := cur.CheckConsumable(); err != nil {
		return nil, err
	}
	return nil, apperr.UsageLimitReached()
}

func (l *Ledger) Get(ctx context.Context, id string) (*UserPackage, error) {
	up, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, apperr.NotFound("user package")
	}
	return up, nil
}

func (l *Ledger) List(ctx context.Context, f Filter) ([]UserPackage, int, error) {
	return l.store.List(ctx, f)
}
