package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceDraft    InvoiceStatus = "DRAFT"
	InvoiceIssued   InvoiceStatus = "ISSUED"
	InvoicePartPaid InvoiceStatus = "PART_PAID"
	InvoiceLate     InvoiceStatus = "LATE"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceVoid     InvoiceStatus = "VOID"
)

// InvoiceLine is a single billed item. Totals are derived at creation and
// never mutated independently of the line data.
type InvoiceLine struct {
	ID          string          `json:"id" db:"id"`
	InvoiceID   string          `json:"invoice_id" db:"invoice_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate" db:"tax_rate"`
}

// LineTotal is quantity * unit price, before tax.
func (l InvoiceLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// TaxAmount is the line total multiplied by the tax rate percentage.
func (l InvoiceLine) TaxAmount() decimal.Decimal {
	return l.LineTotal().Mul(l.TaxRate).Div(decimal.NewFromInt(100))
}

// Invoice is a billing obligation for one tenancy over a period.
// grandTotal = lineTotal + taxTotal always holds; all three are derived
// from the lines at creation time.
type Invoice struct {
	ID         string          `json:"id" db:"id"`
	LandlordID string          `json:"landlord_id" db:"landlord_id"`
	TenancyID  string          `json:"tenancy_id" db:"tenancy_id"`
	PropertyID string          `json:"property_id" db:"property_id"`
	Number     string          `json:"number" db:"number"`
	IssueDate  time.Time       `json:"issue_date" db:"issue_date"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	Lines      []InvoiceLine   `json:"lines,omitempty"`
	LineTotal  decimal.Decimal `json:"line_total" db:"line_total"`
	TaxTotal   decimal.Decimal `json:"tax_total" db:"tax_total"`
	GrandTotal decimal.Decimal `json:"grand_total" db:"grand_total"`
	Status     InvoiceStatus   `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`

	// Derived on read, never persisted.
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Balance    decimal.Decimal `json:"balance"`
}

// ComputeTotals derives line, tax and grand totals from the lines.
func (i *Invoice) ComputeTotals() {
	lineTotal := decimal.Zero
	taxTotal := decimal.Zero
	for _, l := range i.Lines {
		lineTotal = lineTotal.Add(l.LineTotal())
		taxTotal = taxTotal.Add(l.TaxAmount())
	}
	i.LineTotal = lineTotal
	i.TaxTotal = taxTotal
	i.GrandTotal = lineTotal.Add(taxTotal)
}

// FormatInvoiceNumber renders the human-readable sequence number,
// e.g. INV-2025-000001. Numbers are unique per landlord per year.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

// DeriveInvoiceStatus is the pure status recompute: a function of the
// allocated sum, the grand total, the due date and the clock.
//
// VOID is sticky and PAID is terminal for payment purposes; recomputing
// either is a no-op. An unpaid or partially paid invoice past its due date
// is LATE regardless of how much has been allocated.
func DeriveInvoiceStatus(current InvoiceStatus, paid, grandTotal decimal.Decimal, dueDate, now time.Time) InvoiceStatus {
	if current == InvoiceVoid {
		return InvoiceVoid
	}
	if current == InvoicePaid {
		return InvoicePaid
	}
	if paid.GreaterThanOrEqual(grandTotal) {
		return InvoicePaid
	}
	if now.After(dueDate) {
		return InvoiceLate
	}
	if paid.IsPositive() {
		return InvoicePartPaid
	}
	return InvoiceIssued
}
