//go:build integration

package db_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/db"
	"github.com/Spok95/placesdir/internal/infra/payments"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/testinfra"
)

type env struct {
	catalog *catalog.Catalog
	ledger  *userpackages.Ledger
	places  *places.Repo
	pay     *payments.Service
}

func setup(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dsn := testinfra.Postgres(t)

	if err := db.Migrate(dsn, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	az, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	cat := catalog.New(catalog.NewRepo(pool))
	ups := userpackages.NewRepo(pool)
	pl := places.NewRepo(pool)
	ledger := userpackages.NewLedger(cat, ups, log)
	pay := payments.NewService(payments.NewRepo(pool, ups, pl), ledger, nil, az, notify.Noop{}, "usd", log)
	return env{catalog: cat, ledger: ledger, places: pl, pay: pay}
}

func TestPostgres_ExclusivePurchase(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	pkg, err := e.catalog.Create(ctx, catalog.Package{Name: "Solo", Price: decimal.NewFromInt(5), DisableMultiplePurchases: true})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.BuyPackage(ctx, "u1", pkg.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrDuplicatePurchase):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 4 {
		t.Errorf("purchases: got %d ok %d duplicate, want 1 and 4", ok, dup)
	}
}

func TestPostgres_ConsumeGuard(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	limit := 3
	pkg, err := e.catalog.Create(ctx, catalog.Package{Name: "Free", Price: decimal.Zero, ListingLimit: &limit})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	up, err := e.ledger.BuyPackage(ctx, "u1", pkg.ID)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.ConsumeEntitlement(ctx, "u1", up.ID)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrUsageLimitReached) {
				t.Errorf("consume: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := e.ledger.Get(ctx, up.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok != 2 || got.Usage != 3 || !got.IsLimitReached {
		t.Errorf("got %d consumptions usage=%d limit=%v, want 2, 3, true", ok, got.Usage, got.IsLimitReached)
	}
}

func TestPostgres_PaymentAndSweeps(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	days := 30
	pkg, err := e.catalog.Create(ctx, catalog.Package{
		Name:               "Gold",
		Price:              decimal.RequireFromString("19.90"),
		ListingDuration:    &days,
		AutoApproveListing: true,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	up, err := e.ledger.BuyPackage(ctx, "owner", pkg.ID)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	now := time.Now().UTC()
	p := &places.Place{
		ID:            "place-1",
		UserID:        "owner",
		Title:         "Bakery",
		Canonical:     "bakery",
		Status:        places.StatusPending,
		UserPackageID: &up.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.places.Create(ctx, p); err != nil {
		t.Fatalf("create place: %v", err)
	}

	c := payments.Confirmation{
		EventID:       "evt_pg",
		EventType:     payments.EventPaymentIntentSucceeded,
		UserPackageID: up.ID,
		PlaceID:       p.ID,
		Charge:        userpackages.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 1990, Currency: "usd", PaidAt: now},
	}
	for _, want := range []payments.Outcome{payments.OutcomeApplied, payments.OutcomeDuplicate} {
		out, err := e.pay.Confirm(ctx, c)
		if err != nil || out != want {
			t.Fatalf("confirm: got %s, %v, want %s", out, err, want)
		}
	}

	got, err := e.places.Get(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("get place: %v", err)
	}
	if got.Status != places.StatusApproved || got.ExpiresAt == nil {
		t.Fatalf("after payment: status=%s expires=%v", got.Status, got.ExpiresAt)
	}

	n, err := e.places.ExpireDue(ctx, now, 100)
	if err != nil || n != 0 {
		t.Errorf("early sweep: got %d, %v, want 0", n, err)
	}
	n, err = e.places.ExpireDue(ctx, got.ExpiresAt.Add(time.Second), 100)
	if err != nil || n != 1 {
		t.Errorf("due sweep: got %d, %v, want 1", n, err)
	}
	if got, _ := e.places.Get(ctx, p.ID); got.Status != places.StatusExpired {
		t.Errorf("status: got %s, want Expired", got.Status)
	}
}

func TestPostgres_PaymentForDeletedPlace(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	pkg, err := e.catalog.Create(ctx, catalog.Package{Name: "Silver", Price: decimal.NewFromInt(9)})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	up, err := e.ledger.BuyPackage(ctx, "owner", pkg.ID)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	now := time.Now().UTC()
	p := &places.Place{ID: "gone", UserID: "owner", Title: "Gone", Status: places.StatusPending, UserPackageID: &up.ID, CreatedAt: now, UpdatedAt: now}
	if err := e.places.Create(ctx, p); err != nil {
		t.Fatalf("create place: %v", err)
	}
	if err := e.places.SoftDelete(ctx, p.ID, now); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	out, err := e.pay.Confirm(ctx, payments.Confirmation{
		EventID:       "evt_gone",
		EventType:     payments.EventPaymentIntentSucceeded,
		UserPackageID: up.ID,
		PlaceID:       p.ID,
		Charge:        userpackages.Charge{ID: "ch_gone", Amount: 900, Currency: "usd", PaidAt: now},
	})
	if err != nil || out != payments.OutcomeApplied {
		t.Fatalf("confirm: got %q, %v, want applied", out, err)
	}
	got, err := e.ledger.Get(ctx, up.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != userpackages.StatusPaid || got.Charge == nil || got.Charge.ID != "ch_gone" {
		t.Errorf("user package: got status=%s charge=%+v, want paid ch_gone", got.Status, got.Charge)
	}
}

func TestPostgres_ReserveUndo(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	limit := 2
	pkg, err := e.catalog.Create(ctx, catalog.Package{Name: "Duo", Price: decimal.Zero, ListingLimit: &limit})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	bought, undoBuy, err := e.ledger.Reserve(ctx, "u1", pkg.ID)
	if err != nil {
		t.Fatalf("reserve package: %v", err)
	}
	_, undoUse, err := e.ledger.Reserve(ctx, "u1", bought.ID)
	if err != nil {
		t.Fatalf("reserve entitlement: %v", err)
	}
	if err := undoUse(ctx); err != nil {
		t.Fatalf("undo use: %v", err)
	}
	got, err := e.ledger.Get(ctx, bought.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Usage != 1 || got.IsLimitReached {
		t.Errorf("after release: usage=%d limit=%v, want 1 false", got.Usage, got.IsLimitReached)
	}
	if err := undoBuy(ctx); err != nil {
		t.Fatalf("undo buy: %v", err)
	}
	if _, err := e.ledger.Get(ctx, bought.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cancelled purchase: got %v, want NotFound", err)
	}
}
