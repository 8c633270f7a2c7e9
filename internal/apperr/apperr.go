package apperr

import (
	"errors"
	"net/http"
)

// Виды доменных ошибок. Сравнивать через errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrAuthorization        = errors.New("not authorized")
	ErrDuplicatePurchase    = errors.New("duplicate purchase")
	ErrUsageLimitReached    = errors.New("usage limit reached")
	ErrUnpaidPackage        = errors.New("unpaid package")
	ErrValidation           = errors.New("validation failed")
	ErrWebhookSignature     = errors.New("webhook signature mismatch")
	ErrPaymentStateConflict = errors.New("payment state conflict")
)

// Стабильные коды, отдаются клиенту.
const (
	CodeNotFound             = "not_found"
	CodeAuthorization        = "not_authorized"
	CodeDuplicatePurchase    = "duplicate_purchase"
	CodeUsageLimitReached    = "usage_limit_reached"
	CodeUnpaidPackage        = "unpaid_package"
	CodeValidation           = "validation_failed"
	CodeWebhookSignature     = "webhook_signature"
	CodePaymentStateConflict = "payment_state_conflict"
	CodeInternal             = "internal"
)

type Error struct {
	Kind    error
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NotFound(entity string) *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: entity + " not found"}
}

func Authorization(msg string) *Error {
	if msg == "" {
		msg = "not authorized"
	}
	return &Error{Kind: ErrAuthorization, Code: CodeAuthorization, Message: msg}
}

func DuplicatePurchase() *Error {
	return &Error{Kind: ErrDuplicatePurchase, Code: CodeDuplicatePurchase, Message: "cannot purchase this package multiple times"}
}

func UsageLimitReached() *Error {
	return &Error{Kind: ErrUsageLimitReached, Code: CodeUsageLimitReached, Message: "usage limit reached"}
}

func UnpaidPackage() *Error {
	return &Error{Kind: ErrUnpaidPackage, Code: CodeUnpaidPackage, Message: "unpaid package"}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: ErrValidation, Code: CodeValidation, Message: msg, Field: field}
}

func WebhookSignature(err error) *Error {
	return &Error{Kind: ErrWebhookSignature, Code: CodeWebhookSignature, Message: "invalid webhook signature", Err: err}
}

func PaymentStateConflict(msg string) *Error {
	return &Error{Kind: ErrPaymentStateConflict, Code: CodePaymentStateConflict, Message: msg}
}

// Code возвращает стабильный код ошибки, для неизвестных ошибок internal.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus сопоставляет вид ошибки и HTTP-статус.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicatePurchase),
		errors.Is(err, ErrPaymentStateConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUsageLimitReached),
		errors.Is(err, ErrUnpaidPackage):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrWebhookSignature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Public возвращает сообщение, безопасное для клиента.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Field != "" {
			return e.Field + ": " + e.Message
		}
		return e.Message
	}
	return "internal error"
}
