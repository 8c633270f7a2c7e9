package payments

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/Spok95/placesdir/internal/infra/metrics"
)

const maxBodyBytes = 65536

type Handler struct {
	log      *slog.Logger
	verifier Verifier
	svc      *Service
}

func NewHandler(log *slog.Logger, verifier Verifier, svc *Service) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		svc:      svc,
	}
}

// ServeHTTP принимает вебхук платёжного шлюза:
// тело читается как есть (нужно для проверки подписи), обрабатывается
// payment_intent.succeeded, остальные события подтверждаются без действий.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, "read body", err)
		return
	}

	evt, err := h.verifier.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", metrics.Outcome(err)).Inc()
		h.fail(w, "verify event", err)
		return
	}
	eventType := string(evt.Type)

	outcome := OutcomeIgnored
	if eventType == EventPaymentIntentSucceeded {
		c, err := ConfirmationFromEvent(evt)
		if err == nil {
			outcome, err = h.svc.Confirm(ctx, c)
		}
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(eventType, metrics.Outcome(err)).Inc()
			h.log.Error("failed to process payment event",
				"event_id", evt.ID,
				"type", eventType,
				"err", err,
			)
			h.fail(w, "process event", err)
			return
		}
	} else {
		h.log.Debug("payment event ignored", "event_id", evt.ID, "type", eventType)
	}
	metrics.WebhookEvents.WithLabelValues(eventType, string(outcome)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (h *Handler) fail(w http.ResponseWriter, stage string, err error) {
	h.log.Warn("webhook rejected", "stage", stage, "err", err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("Webhook Error: " + err.Error()))
}
