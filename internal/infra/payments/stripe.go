package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
)

const EventPaymentIntentSucceeded = "payment_intent.succeeded"

// Verifier проверяет подпись вебхука. Без секрета тело принимается
// без проверки (локальная разработка).
type Verifier struct {
	secret string
}

func NewVerifier(secret string) Verifier { return Verifier{secret: secret} }

func (v Verifier) Parse(payload []byte, signature string) (stripe.Event, error) {
	if v.secret == "" {
		var evt stripe.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return stripe.Event{}, apperr.Validation("payload", "invalid event json")
		}
		return evt, nil
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, apperr.WebhookSignature(err)
	}
	return evt, nil
}

// ConfirmationFromEvent извлекает из payment_intent.succeeded ссылки
// на покупку и объявление (metadata) и данные платежа.
func ConfirmationFromEvent(evt stripe.Event) (Confirmation, error) {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return Confirmation{}, apperr.Validation("data", "event has no object")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return Confirmation{}, apperr.Validation("data", "invalid payment intent")
	}

	paidAt := time.Now()
	if evt.Created > 0 {
		paidAt = time.Unix(evt.Created, 0).UTC()
	}
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	charge := userpackages.Charge{
		PaymentIntentID: pi.ID,
		Amount:          amount,
		Currency:        string(pi.Currency),
		PaidAt:          paidAt,
	}
	if pi.LatestCharge != nil {
		charge.ID = pi.LatestCharge.ID
	}

	return Confirmation{
		EventID:       evt.ID,
		EventType:     string(evt.Type),
		UserPackageID: pi.Metadata["user_package_id"],
		PlaceID:       pi.Metadata["place_id"],
		Charge:        charge,
	}, nil
}

// StripeGateway создаёт PaymentIntent через API Stripe.
type StripeGateway struct {
	client *paymentintent.Client
}

func NewStripeGateway(key string) *StripeGateway {
	return &StripeGateway{client: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, r IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(r.Amount),
		Currency:    stripe.String(r.Currency),
		Description: stripe.String(r.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if r.IdempotencyKey != "" {
		params.SetIdempotencyKey(r.IdempotencyKey)
	}
	for k, v := range r.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
