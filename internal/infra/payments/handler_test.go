package payments_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/payments"
)

const secret = "whsec_test"

func eventPayload(t *testing.T, id, typ string, metadata map[string]string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"created":     now.Unix(),
		"api_version": "2023-10-16",
		"data": map[string]any{
			"object": map[string]any{
				"id":              "pi_123",
				"object":          "payment_intent",
				"amount":          4999,
				"amount_received": 4999,
				"currency":        "usd",
				"latest_charge":   "ch_123",
				"metadata":        metadata,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func post(h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(t, goldPackage())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := payments.NewHandler(log, payments.NewVerifier(secret), f.svc)

	meta := map[string]string{"user_package_id": f.up.ID, "place_id": f.placeID}
	succeeded := eventPayload(t, "evt_ok", payments.EventPaymentIntentSucceeded, meta)

	tests := []struct {
		name       string
		payload    []byte
		signature  string
		wantStatus int
		wantBody   string
	}{
		{"bad signature", succeeded, "t=1,v1=deadbeef", http.StatusBadRequest, "Webhook Error:"},
		{"missing signature", succeeded, "", http.StatusBadRequest, "Webhook Error:"},
		{"ignored event type", eventPayload(t, "evt_other", "payment_intent.created", meta), "", http.StatusOK, `{"received":true}`},
		{"succeeded", succeeded, "", http.StatusOK, `{"received":true}`},
		{"redelivered", succeeded, "", http.StatusOK, `{"received":true}`},
		{"missing metadata", eventPayload(t, "evt_nometa", payments.EventPaymentIntentSucceeded, nil), "", http.StatusBadRequest, "Webhook Error:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.signature
			if sig == "" && tt.name != "missing signature" {
				sig = sign(tt.payload)
			}
			rec := post(h, tt.payload, sig)
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.HasPrefix(rec.Body.String(), tt.wantBody) {
				t.Errorf("body: got %q, want prefix %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	up, err := f.ledger.Get(context.Background(), f.up.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if up.Status != userpackages.StatusPaid || up.Usage != 1 {
		t.Errorf("user package: got status=%s usage=%d, want paid 1", up.Status, up.Usage)
	}
	if up.Charge == nil || up.Charge.ID != "ch_123" || up.Charge.Amount != 4999 {
		t.Errorf("charge: got %+v", up.Charge)
	}
}

func TestWebhookWithoutSecret(t *testing.T) {
	f := newFixture(t, goldPackage())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := payments.NewHandler(log, payments.NewVerifier(""), f.svc)

	payload := eventPayload(t, "evt_dev", payments.EventPaymentIntentSucceeded,
		map[string]string{"user_package_id": f.up.ID})
	if rec := post(h, payload, ""); rec.Code != http.StatusOK {
		t.Errorf("unsigned event: got %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if rec := post(h, []byte("{not json"), ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d, want 400", rec.Code)
	}
}
