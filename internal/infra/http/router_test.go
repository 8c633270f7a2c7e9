package http_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/reviews"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/domain/users"
	httpx "github.com/Spok95/placesdir/internal/infra/http"
	"github.com/Spok95/placesdir/internal/infra/payments"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/search"
	"github.com/Spok95/placesdir/internal/store/memory"
)

const jwtSecret = "test-secret"

type server struct {
	t       *testing.T
	h       http.Handler
	auth    *httpx.Authenticator
	catalog *catalog.Catalog
}

func newServer(t *testing.T, policy appconfig.AppConfig) *server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	az, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	db := memory.New()
	cfg := appconfig.NewService(db.AppConfig(), policy)
	cat := catalog.New(db.Catalog())
	ledger := userpackages.NewLedger(cat, db.UserPackages(), log)
	rv := reviews.NewService(db.Reviews(), db.Places(), cfg, az, notify.Noop{}, log)
	lc := places.NewLifecycle(db.Places(), ledger, cfg, rv, az, notify.Noop{}, log)
	pay := payments.NewService(db.Payments(), ledger, nil, az, notify.Noop{}, "usd", log)
	auth := httpx.NewAuthenticator(jwtSecret, db.Users(), log)

	h := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Auth:     auth,
		Authz:    az,
		Policy:   cfg,
		Catalog:  cat,
		Ledger:   ledger,
		Places:   lc,
		Reviews:  rv,
		Search:   search.NewEngine(db.Places(), cat, cfg, log),
		Payments: pay,
		Webhook:  payments.NewHandler(log, payments.NewVerifier(""), pay),
	})
	return &server{t: t, h: h, auth: auth, catalog: cat}
}

func (s *server) token(userID string, role users.Role) string {
	s.t.Helper()
	tok, err := s.auth.Issue(userID, role, time.Hour)
	if err != nil {
		s.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAccessControl(t *testing.T) {
	s := newServer(t, appconfig.AppConfig{})
	customer := s.token("c1", users.RoleCustomer)
	admin := s.token("a1", users.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"public packages", http.MethodGet, "/api/v1/packages", "", http.StatusOK},
		{"public search", http.MethodGet, "/api/v1/places/search", "", http.StatusOK},
		{"anonymous create", http.MethodPost, "/api/v1/places", "", http.StatusUnauthorized},
		{"malformed token", http.MethodGet, "/api/v1/packages", "not-a-jwt", http.StatusUnauthorized},
		{"customer admin list", http.MethodGet, "/api/v1/admin/places", customer, http.StatusForbidden},
		{"customer app config", http.MethodGet, "/api/v1/admin/app-config", customer, http.StatusForbidden},
		{"admin list", http.MethodGet, "/api/v1/admin/places", admin, http.StatusOK},
		{"admin app config", http.MethodGet, "/api/v1/admin/app-config", admin, http.StatusOK},
		{"customer pending filter", http.MethodGet, "/api/v1/places/search?status=Pending", customer, http.StatusForbidden},
		{"admin pending filter", http.MethodGet, "/api/v1/places/search?status=Pending", admin, http.StatusOK},
		{"bad coordinates", http.MethodGet, "/api/v1/places/search?latitude=95&longitude=0", "", http.StatusBadRequest},
		{"missing place", http.MethodGet, "/api/v1/places/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %q)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListingFlow(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, appconfig.AppConfig{Places: appconfig.Places{EnablePaidListings: true, SearchRadius: 5000}})
	owner := s.token("owner", users.RoleCustomer)
	admin := s.token("admin", users.RoleAdmin)

	limit := 2
	pkg, err := s.catalog.Create(ctx, catalog.Package{Name: "Free", Price: decimal.Zero, ListingLimit: &limit, AutoApproveListing: true})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	body := map[string]any{
		"title":      "Corner Café",
		"categories": []string{"food"},
		"location":   map[string]float64{"lat": 52.52, "lng": 13.405},
		"packageId":  pkg.ID,
	}
	rec := s.do(http.MethodPost, "/api/v1/places", owner, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create place: got %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[struct {
		Place       places.Place             `json:"place"`
		UserPackage userpackages.UserPackage `json:"userPackage"`
	}](t, rec)
	if created.Place.Status != places.StatusApproved {
		t.Errorf("status: got %s, want Approved", created.Place.Status)
	}

	// второе объявление по той же покупке исчерпывает лимит
	body["packageId"] = created.UserPackage.ID
	if rec := s.do(http.MethodPost, "/api/v1/places", owner, body); rec.Code != http.StatusCreated {
		t.Fatalf("second place: got %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/api/v1/places", owner, body)
	if rec.Code != http.StatusPaymentRequired || !strings.Contains(rec.Body.String(), "usage_limit_reached") {
		t.Errorf("third place: got %d %s, want 402 usage_limit_reached", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/places/search?latitude=52.52&longitude=13.405&unit=km&tag=cafe", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: got %d %s", rec.Code, rec.Body.String())
	}
	if found := decodeBody[[]places.Place](t, rec); len(found) != 2 {
		t.Errorf("search results: got %d, want 2", len(found))
	}

	rec = s.do(http.MethodGet, "/api/v1/places/search?count=true", "", nil)
	if got := decodeBody[map[string]int](t, rec); got["count"] != 2 {
		t.Errorf("count: got %v, want 2", got)
	}

	id := created.Place.ID
	if rec := s.do(http.MethodPost, "/api/v1/places/"+id+"/view", "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("anonymous view: got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/api/v1/places/"+id+"/like", owner, nil)
	if got := decodeBody[map[string]any](t, rec); got["liked"] != true {
		t.Errorf("like: got %v", got)
	}
	rec = s.do(http.MethodGet, "/api/v1/places/"+id+"/statistics", owner, nil)
	if got := decodeBody[places.Stats](t, rec); got.Views != 1 || got.Likes != 1 {
		t.Errorf("stats: got %+v, want 1 view 1 like", got)
	}

	rec = s.do(http.MethodGet, "/api/v1/user-packages", owner, nil)
	if got := decodeBody[struct {
		Total int `json:"total"`
	}](t, rec); got.Total != 1 {
		t.Errorf("my packages: got %d, want 1", got.Total)
	}

	rec = s.do(http.MethodGet, "/api/v1/admin/user-packages/export", admin, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("export: got %d %q", rec.Code, rec.Header().Get("Content-Disposition"))
	}

	if rec := s.do(http.MethodDelete, "/api/v1/places/"+id, admin, nil); rec.Code != http.StatusNoContent {
		t.Errorf("admin delete: got %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/api/v1/places/"+id, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: got %d", rec.Code)
	}
}

func TestPurchaseAndPayment(t *testing.T) {
	ctx := context.Background()
	s := newServer(t, appconfig.AppConfig{})
	buyer := s.token("buyer", users.RoleCustomer)
	other := s.token("other", users.RoleCustomer)

	pkg, err := s.catalog.Create(ctx, catalog.Package{Name: "Gold", Price: decimal.NewFromInt(10), DisableMultiplePurchases: true})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	rec := s.do(http.MethodPost, "/api/v1/user-packages", buyer, map[string]string{"packageId": pkg.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("buy: got %d %s", rec.Code, rec.Body.String())
	}
	up := decodeBody[userpackages.UserPackage](t, rec)
	if up.Status != userpackages.StatusUnpaid {
		t.Errorf("status: got %s, want unpaid", up.Status)
	}

	rec = s.do(http.MethodPost, "/api/v1/user-packages", buyer, map[string]string{"packageId": pkg.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate purchase: got %d, want 409", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/user-packages/"+up.ID, other, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign package: got %d, want 403", rec.Code)
	}

	// шлюз не настроен
	rec = s.do(http.MethodPost, "/api/v1/user-packages/"+up.ID+"/payment-intent", buyer, map[string]string{})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("intent without gateway: got %d, want 500", rec.Code)
	}

	evt := map[string]any{
		"id":   "evt_1",
		"type": payments.EventPaymentIntentSucceeded,
		"data": map[string]any{"object": map[string]any{
			"id": "pi_1", "object": "payment_intent", "amount": 1000, "currency": "usd",
			"metadata": map[string]string{"user_package_id": up.ID},
		}},
	}
	if rec := s.do(http.MethodPost, "/stripe/webhook", "", evt); rec.Code != http.StatusOK {
		t.Fatalf("webhook: got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/user-packages/"+up.ID, buyer, nil)
	if got := decodeBody[userpackages.UserPackage](t, rec); got.Status != userpackages.StatusPaid || got.Usage != 1 {
		t.Errorf("after webhook: got %s usage %d, want paid 1", got.Status, got.Usage)
	}
}

func TestAppConfigRoundTrip(t *testing.T) {
	s := newServer(t, appconfig.AppConfig{})
	admin := s.token("root", users.RoleSuperAdmin)

	want := appconfig.AppConfig{
		Places:  appconfig.Places{EnablePaidListings: true, SearchRadius: 2500},
		Reviews: appconfig.Reviews{AutoApprove: true},
	}
	if rec := s.do(http.MethodPut, "/api/v1/admin/app-config", admin, want); rec.Code != http.StatusOK {
		t.Fatalf("save: got %d %s", rec.Code, rec.Body.String())
	}
	rec := s.do(http.MethodGet, "/api/v1/admin/app-config", admin, nil)
	if got := decodeBody[appconfig.AppConfig](t, rec); got != want {
		t.Errorf("config: got %+v, want %+v", got, want)
	}

	bad := appconfig.AppConfig{Places: appconfig.Places{SearchRadius: -1}}
	if rec := s.do(http.MethodPut, "/api/v1/admin/app-config", admin, bad); rec.Code != http.StatusBadRequest {
		t.Errorf("negative radius: got %d, want 400", rec.Code)
	}
}
