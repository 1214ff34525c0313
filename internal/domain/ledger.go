package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryDirection is the double-entry side of a ledger record.
type EntryDirection string

const (
	Debit  EntryDirection = "DEBIT"
	Credit EntryDirection = "CREDIT"
)

// Reference types a ledger entry can point at.
const (
	RefInvoice = "invoice"
	RefPayment = "payment"
)

// LedgerEntry is an immutable double-entry record. Every invoice creation
// posts one debit for the grand total; every recorded payment posts one
// credit for the payment amount. Entries are append-only.
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	LandlordID string          `json:"landlord_id" db:"landlord_id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Direction  EntryDirection  `json:"direction" db:"direction"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	RefType    string          `json:"ref_type" db:"ref_type"`
	RefID      string          `json:"ref_id" db:"ref_id"`
	Memo       string          `json:"memo" db:"memo"`
	EventAt    time.Time       `json:"event_at" db:"event_at"`
	BookedAt   time.Time       `json:"booked_at" db:"booked_at"`
}
