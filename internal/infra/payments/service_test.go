package payments_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/domain/users"
	"github.com/Spok95/placesdir/internal/infra/payments"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/store/memory"
)

var (
	buyer = authz.Subject{UserID: "buyer", Role: users.RoleCustomer}
	other = authz.Subject{UserID: "other", Role: users.RoleCustomer}
	now   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	got payments.IntentRequest
	err error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, r payments.IntentRequest) (*payments.Intent, error) {
	g.got = r
	if g.err != nil {
		return nil, g.err
	}
	return &payments.Intent{ID: "pi_test", ClientSecret: "pi_test_secret", Amount: r.Amount, Currency: r.Currency}, nil
}

type fixture struct {
	db      *memory.DB
	ledger  *userpackages.Ledger
	svc     *payments.Service
	gateway *fakeGateway
	up      *userpackages.UserPackage
	placeID string
}

func newFixture(t *testing.T, pkg catalog.Package) fixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	az, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	db := memory.New().WithClock(func() time.Time { return now })
	cat := catalog.New(db.Catalog())
	created, err := cat.Create(ctx, pkg)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	ledger := userpackages.NewLedger(cat, db.UserPackages(), log)
	up, err := ledger.BuyPackage(ctx, buyer.UserID, created.ID)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	p := &places.Place{ID: "place-1", UserID: buyer.UserID, Title: "Studio", Status: places.StatusPending, UserPackageID: &up.ID}
	if err := db.Places().Create(ctx, p); err != nil {
		t.Fatalf("create place: %v", err)
	}

	gw := &fakeGateway{}
	svc := payments.NewService(db.Payments(), ledger, gw, az, notify.Noop{}, "USD", log).
		WithClock(func() time.Time { return now })
	return fixture{db: db, ledger: ledger, svc: svc, gateway: gw, up: up, placeID: p.ID}
}

func goldPackage() catalog.Package {
	days := 30
	return catalog.Package{
		Name:                  "Gold",
		Price:                 decimal.RequireFromString("49.99"),
		ListingDuration:       &days,
		AutoApproveListing:    true,
		MarkListingAsFeatured: true,
	}
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, goldPackage())

	c := payments.Confirmation{
		EventID:       "evt_1",
		EventType:     payments.EventPaymentIntentSucceeded,
		UserPackageID: f.up.ID,
		PlaceID:       f.placeID,
		Charge:        userpackages.Charge{ID: "ch_1", PaymentIntentID: "pi_1", Amount: 4999, Currency: "usd", PaidAt: now},
	}
	out, err := f.svc.Confirm(ctx, c)
	if err != nil || out != payments.OutcomeApplied {
		t.Fatalf("first confirm: got %s, %v, want applied", out, err)
	}

	up, err := f.ledger.Get(ctx, f.up.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if up.Status != userpackages.StatusPaid || up.Usage != 1 {
		t.Errorf("user package: got status=%s usage=%d, want paid 1", up.Status, up.Usage)
	}
	if up.Charge == nil || up.Charge.PaymentIntentID != "pi_1" {
		t.Errorf("charge: got %+v, want pi_1", up.Charge)
	}

	p, err := f.db.Places().Get(ctx, f.placeID)
	if err != nil || p == nil {
		t.Fatalf("get place: %v", err)
	}
	wantExpiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if p.Status != places.StatusApproved || !p.IsFeatured || p.ExpiresAt == nil || !p.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("place: got status=%s featured=%v expires=%v, want Approved featured %v",
			p.Status, p.IsFeatured, p.ExpiresAt, wantExpiry)
	}

	// повтор того же события
	out, err = f.svc.Confirm(ctx, c)
	if err != nil || out != payments.OutcomeDuplicate {
		t.Errorf("redelivery: got %s, %v, want duplicate", out, err)
	}

	// другое событие по уже оплаченной покупке
	c.EventID = "evt_2"
	out, err = f.svc.Confirm(ctx, c)
	if err != nil || out != payments.OutcomeConflict {
		t.Errorf("second payment: got %s, %v, want conflict", out, err)
	}

	up, _ = f.ledger.Get(ctx, f.up.ID)
	if up.Usage != 1 {
		t.Errorf("usage after repeats: got %d, want 1", up.Usage)
	}
}

func TestConfirmForDeletedPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, goldPackage())

	if err := f.db.Places().SoftDelete(ctx, f.placeID, now); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	c := payments.Confirmation{
		EventID:       "evt_deleted",
		EventType:     payments.EventPaymentIntentSucceeded,
		UserPackageID: f.up.ID,
		PlaceID:       f.placeID,
		Charge:        userpackages.Charge{ID: "ch_9", PaymentIntentID: "pi_9", Amount: 4999, Currency: "usd", PaidAt: now},
	}
	out, err := f.svc.Confirm(ctx, c)
	if err != nil || out != payments.OutcomeApplied {
		t.Fatalf("confirm: got %q, %v, want applied", out, err)
	}

	up, err := f.ledger.Get(ctx, f.up.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if up.Status != userpackages.StatusPaid || up.Usage != 1 {
		t.Errorf("user package: got status=%s usage=%d, want paid 1", up.Status, up.Usage)
	}
	if up.Charge == nil || up.Charge.ID != "ch_9" {
		t.Errorf("charge: got %+v, want ch_9", up.Charge)
	}

	// удалённое объявление не возвращается в выдачу
	if p, err := f.db.Places().Get(ctx, f.placeID); err != nil || p != nil {
		t.Errorf("deleted place: got %+v, %v, want nil", p, err)
	}

	out, err = f.svc.Confirm(ctx, c)
	if err != nil || out != payments.OutcomeDuplicate {
		t.Errorf("redelivery: got %q, %v, want duplicate", out, err)
	}
}

func TestConfirmErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, goldPackage())

	tests := []struct {
		name string
		c    payments.Confirmation
		want error
	}{
		{"missing user package id", payments.Confirmation{EventID: "e1"}, apperr.ErrValidation},
		{"unknown user package", payments.Confirmation{EventID: "e2", UserPackageID: "nope"}, apperr.ErrNotFound},
		{"unknown place", payments.Confirmation{EventID: "e3", UserPackageID: f.up.ID, PlaceID: "nope"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Confirm(ctx, tt.c)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	// неуспешные попытки не помечают событие обработанным
	out, err := f.svc.Confirm(ctx, payments.Confirmation{EventID: "e3", UserPackageID: f.up.ID})
	if err != nil || out != payments.OutcomeApplied {
		t.Errorf("retry after failure: got %s, %v, want applied", out, err)
	}
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, goldPackage())

	in, err := f.svc.CreateIntent(ctx, buyer, f.up.ID, f.placeID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if in.ClientSecret == "" {
		t.Errorf("client secret is empty")
	}
	got := f.gateway.got
	if got.Amount != 4999 || got.Currency != "usd" {
		t.Errorf("amount: got %d %s, want 4999 usd", got.Amount, got.Currency)
	}
	if got.Metadata["user_package_id"] != f.up.ID || got.Metadata["place_id"] != f.placeID {
		t.Errorf("metadata: got %v", got.Metadata)
	}
	if got.IdempotencyKey != "up-"+f.up.ID+"-"+f.placeID {
		t.Errorf("idempotency key: got %q", got.IdempotencyKey)
	}

	if _, err := f.svc.CreateIntent(ctx, other, f.up.ID, ""); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("foreign package: got %v, want Authorization", err)
	}
	if _, err := f.svc.CreateIntent(ctx, authz.Subject{}, f.up.ID, ""); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("anonymous: got %v, want Authorization", err)
	}

	if _, err := f.svc.Confirm(ctx, payments.Confirmation{EventID: "evt", UserPackageID: f.up.ID}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := f.svc.CreateIntent(ctx, buyer, f.up.ID, ""); !errors.Is(err, apperr.ErrPaymentStateConflict) {
		t.Errorf("paid package: got %v, want PaymentStateConflict", err)
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		price    string
		currency string
		want     int64
	}{
		{"49.99", "usd", 4999},
		{"10", "EUR", 1000},
		{"0.005", "usd", 1},
		{"1500", "jpy", 1500},
		{"0", "usd", 0},
	}
	for _, tt := range tests {
		got := payments.MinorUnits(decimal.RequireFromString(tt.price), tt.currency)
		if got != tt.want {
			t.Errorf("MinorUnits(%s %s): got %d, want %d", tt.price, tt.currency, got, tt.want)
		}
	}
}
