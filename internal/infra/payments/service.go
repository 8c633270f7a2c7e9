package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/notify"
)

const ProviderStripe = "stripe"

// ErrDuplicateEvent — событие шлюза уже обработано.
var ErrDuplicateEvent = errors.New("payments: event already processed")

// Confirmation — подтверждение оплаты от шлюза.
type Confirmation struct {
	EventID       string
	EventType     string
	UserPackageID string
	PlaceID       string
	Charge        userpackages.Charge
}

// ApplyFunc меняет загруженные сущности; place может быть nil.
type ApplyFunc func(up *userpackages.UserPackage, place *places.Place) error

type Store interface {
	// Apply в одной транзакции фиксирует eventID (ErrDuplicateEvent, если
	// он уже был), блокирует покупку и объявление, вызывает fn и сохраняет
	// обе сущности. Удалённое объявление передаётся в fn, но не сохраняется.
	Apply(ctx context.Context, provider, eventID, eventType, userPackageID, placeID string, fn ApplyFunc) error
}

type UserPackages interface {
	Get(ctx context.Context, id string) (*userpackages.UserPackage, error)
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeConflict  Outcome = "conflict"
	OutcomeIgnored   Outcome = "ignored"
)

type Service struct {
	store    Store
	ledger   UserPackages
	gateway  Gateway
	authz    *authz.Authorizer
	notifier notify.Dispatcher
	currency string
	log      *slog.Logger
	now      func() time.Time
}

func NewService(
	store Store,
	ledger UserPackages,
	gateway Gateway,
	az *authz.Authorizer,
	notifier notify.Dispatcher,
	currency string,
	log *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		gateway:  gateway,
		authz:    az,
		notifier: notifier,
		currency: strings.ToLower(currency),
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Confirm применяет подтверждённую оплату: покупка становится paid
// (+1 использование), объявление получает эффекты тарифа.
// Повтор события и уже оплаченная покупка не применяются повторно.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (Outcome, error) {
	if c.UserPackageID == "" {
		return "", apperr.Validation("user_package_id", "missing in payment metadata")
	}
	now := s.now()
	placeDeleted := false
	err := s.store.Apply(ctx, ProviderStripe, c.EventID, c.EventType, c.UserPackageID, c.PlaceID,
		func(up *userpackages.UserPackage, p *places.Place) error {
			if err := up.MarkPaid(c.Charge, now); err != nil {
				return err
			}
			switch {
			case p == nil:
			case p.DeletedAt != nil:
				// объявление удалено до подтверждения: оплата фиксируется только в покупке
				placeDeleted = true
			default:
				p.ApplyPayment(up.Package, now)
			}
			return nil
		})

	switch {
	case err == nil:
		if placeDeleted {
			s.log.Warn("payment confirmed for deleted place, listing effects skipped",
				"event_id", c.EventID,
				"user_package_id", c.UserPackageID,
				"place_id", c.PlaceID,
			)
		}
		s.log.Info("payment applied",
			"event_id", c.EventID,
			"user_package_id", c.UserPackageID,
			"place_id", c.PlaceID,
		)
		notify.Send(ctx, s.notifier, s.log, notify.Event{
			Kind:          notify.PaymentConfirmed,
			UserPackageID: c.UserPackageID,
			PlaceID:       c.PlaceID,
		})
		return OutcomeApplied, nil
	case errors.Is(err, ErrDuplicateEvent):
		s.log.Info("payment event already processed", "event_id", c.EventID)
		return OutcomeDuplicate, nil
	case errors.Is(err, apperr.ErrPaymentStateConflict):
		s.log.Warn("payment for already paid package",
			"event_id", c.EventID,
			"user_package_id", c.UserPackageID,
		)
		return OutcomeConflict, nil
	default:
		return "", err
	}
}

// Intent — созданный в шлюзе платёж.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type IntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, r IntentRequest) (*Intent, error)
}

// CreateIntent создаёт платёж в шлюзе для неоплаченной покупки.
func (s *Service) CreateIntent(ctx context.Context, sub authz.Subject, userPackageID, placeID string) (*Intent, error) {
	if err := s.authz.Require(sub, authz.ObjUserPackage, authz.ActPay); err != nil {
		return nil, err
	}
	up, err := s.ledger.Get(ctx, userPackageID)
	if err != nil {
		return nil, err
	}
	if up.UserID != sub.UserID {
		return nil, apperr.Authorization("package belongs to another user")
	}
	if up.Status != userpackages.StatusUnpaid {
		return nil, apperr.PaymentStateConflict("user package is not awaiting payment")
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("payments: gateway is not configured")
	}

	req := IntentRequest{
		Amount:      MinorUnits(up.Package.FinalPrice, s.currency),
		Currency:    s.currency,
		Description: "Package " + up.Package.Name,
		Metadata: map[string]string{
			"user_package_id": up.ID,
			"place_id":        placeID,
			"user_id":         sub.UserID,
		},
		IdempotencyKey: "up-" + up.ID + "-" + placeID,
	}
	in, err := s.gateway.CreatePaymentIntent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("payments: create intent: %w", err)
	}
	return in, nil
}

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorUnits — сумма в минимальных единицах валюты (центах),
// для валют без дробной части — как есть.
func MinorUnits(price decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return price.Round(0).IntPart()
	}
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
