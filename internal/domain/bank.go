package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchType records how a reconciliation match was made.
type MatchType string

const (
	MatchAuto   MatchType = "AUTO"
	MatchManual MatchType = "MANUAL"
)

// BankTransaction is an externally imported bank movement. Credits carry a
// positive amount, debits a negative one. A transaction with no
// reconciliation rows is unmatched.
type BankTransaction struct {
	ID          string          `json:"id" db:"id"`
	LandlordID  string          `json:"landlord_id" db:"landlord_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PostedAt    time.Time       `json:"posted_at" db:"posted_at"`
	Description string          `json:"description" db:"description"`
	Source      string          `json:"source" db:"source"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Reconciliation links a bank transaction to an invoice or payment with a
// confidence score out of 100.
type Reconciliation struct {
	ID                string    `json:"id" db:"id"`
	BankTransactionID string    `json:"bank_transaction_id" db:"bank_transaction_id"`
	InvoiceID         *string   `json:"invoice_id,omitempty" db:"invoice_id"`
	PaymentID         *string   `json:"payment_id,omitempty" db:"payment_id"`
	MatchType         MatchType `json:"match_type" db:"match_type"`
	Confidence        int       `json:"confidence" db:"confidence"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// MatchCandidate is a proposed invoice match for a bank transaction.
type MatchCandidate struct {
	Invoice    Invoice `json:"invoice"`
	Confidence int     `json:"confidence"`
}
