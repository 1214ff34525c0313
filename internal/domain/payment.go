package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the internal settlement vocabulary. Provider-specific
// statuses are normalized into it by the provider adapters; "confirmed"
// from either provider lands on SETTLED.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSubmitted PaymentStatus = "SUBMITTED"
	PaymentSettled   PaymentStatus = "SETTLED"
	PaymentPaidOut   PaymentStatus = "PAID_OUT"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// PaymentMethod is how the money moved.
type PaymentMethod string

const (
	MethodDirectDebit  PaymentMethod = "DIRECT_DEBIT"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCash         PaymentMethod = "CASH"
)

// Payment is a single inbound money movement. ProviderRef is the global
// idempotency key: recording the same reference twice resolves to the
// existing row instead of creating a new one.
type Payment struct {
	ID          string          `json:"id" db:"id"`
	LandlordID  string          `json:"landlord_id" db:"landlord_id"`
	TenancyID   string          `json:"tenancy_id" db:"tenancy_id"`
	InvoiceID   string          `json:"invoice_id" db:"invoice_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Fee         decimal.Decimal `json:"fee" db:"fee"`
	FeeVAT      decimal.Decimal `json:"fee_vat" db:"fee_vat"`
	Method      PaymentMethod   `json:"method" db:"method"`
	Provider    string          `json:"provider" db:"provider"`
	ProviderRef string          `json:"provider_ref" db:"provider_ref"`
	Status      PaymentStatus   `json:"status" db:"status"`
	ReceivedAt  time.Time       `json:"received_at" db:"received_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`

	Allocations []PaymentAllocation `json:"allocations,omitempty"`

	// Derived on read.
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal `json:"unallocated_amount"`
}

// PaymentAllocation assigns part of a payment's amount to one invoice's
// balance. Rows are append-only; they are never mutated or deleted.
type PaymentAllocation struct {
	ID        string          `json:"id" db:"id"`
	PaymentID string          `json:"payment_id" db:"payment_id"`
	InvoiceID string          `json:"invoice_id" db:"invoice_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SumAllocations totals a set of allocation amounts.
func SumAllocations(allocations []PaymentAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	return total
}
