package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
)

// Resource types carried by normalized webhook events.
const (
	ResourcePayments = "payments"
	ResourceMandates = "mandates"
	ResourceRefunds  = "refunds"
	ResourcePayouts  = "payouts"
)

// Event is a provider webhook event normalized to one shape. ProviderRef is
// the external id of the affected payment or mandate.
type Event struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	ResourceType string            `json:"resource_type"`
	Action       string            `json:"action"`
	ProviderRef  string            `json:"provider_ref"`
	Data         map[string]string `json:"data,omitempty"`
}

// Customer is the provider-side customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CustomerParams struct {
	Email string
	Name  string
}

// MandateRef is the provider-side view of a mandate.
type MandateRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type MandateParams struct {
	CustomerID string
	Scheme     string
}

// PaymentRef is the provider-side view of a payment.
type PaymentRef struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type PaymentParams struct {
	Amount      decimal.Decimal
	Currency    string
	MandateID   string
	CustomerID  string
	Description string
	Metadata    map[string]string
}

type RefundRef struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type RefundParams struct {
	PaymentID string
	Amount    decimal.Decimal
}

// Provider is the normalized payment-service-provider surface. Two
// implementations exist: the direct-debit provider and the card/SEPA
// provider. All remote calls carry the caller's context and the adapter's
// configured timeout; failures surface wrapped in domain.ErrUpstream.
type Provider interface {
	Name() string

	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	CreateMandate(ctx context.Context, params MandateParams) (*MandateRef, error)
	GetMandate(ctx context.Context, id string) (*MandateRef, error)
	CancelMandate(ctx context.Context, id string) error

	CreatePayment(ctx context.Context, params PaymentParams) (*PaymentRef, error)
	GetPayment(ctx context.Context, id string) (*PaymentRef, error)
	CancelPayment(ctx context.Context, id string) error

	CreateRefund(ctx context.Context, params RefundParams) (*RefundRef, error)

	// VerifyWebhookSignature reports whether the signature header matches
	// the payload under the shared secret. Constant-time comparison.
	VerifyWebhookSignature(payload []byte, signature, secret string) bool

	// ParseWebhookEvents decodes a raw webhook body into normalized events.
	ParseWebhookEvents(payload []byte) ([]Event, error)

	// MapPaymentStatus translates a provider payment status or webhook
	// action into the internal vocabulary. ok is false for statuses this
	// adapter does not recognize; callers decide what to do with those
	// instead of the adapter guessing a default.
	MapPaymentStatus(status string) (domain.PaymentStatus, bool)

	// MapMandateStatus is the mandate counterpart of MapPaymentStatus.
	MapMandateStatus(status string) (domain.MandateStatus, bool)
}
