package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotals(t *testing.T) {
	invoice := Invoice{
		Lines: []InvoiceLine{
			{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000), TaxRate: decimal.NewFromInt(20)},
			{Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50), TaxRate: decimal.Zero},
		},
	}

	invoice.ComputeTotals()

	assert.True(t, invoice.LineTotal.Equal(decimal.NewFromInt(1100)), "line total should be 1100, got %s", invoice.LineTotal)
	assert.True(t, invoice.TaxTotal.Equal(decimal.NewFromInt(200)), "tax total should be 200, got %s", invoice.TaxTotal)
	assert.True(t, invoice.GrandTotal.Equal(decimal.NewFromInt(1300)), "grand total should be 1300, got %s", invoice.GrandTotal)
}

func TestComputeTotals_NoLines(t *testing.T) {
	var invoice Invoice
	invoice.ComputeTotals()

	assert.True(t, invoice.GrandTotal.IsZero())
	assert.True(t, invoice.GrandTotal.Equal(invoice.LineTotal.Add(invoice.TaxTotal)))
}

func TestFormatInvoiceNumber(t *testing.T) {
	assert.Equal(t, "INV-2025-000001", FormatInvoiceNumber(2025, 1))
	assert.Equal(t, "INV-2025-000002", FormatInvoiceNumber(2025, 2))
	assert.Equal(t, "INV-2026-001234", FormatInvoiceNumber(2026, 1234))
}

func TestDeriveInvoiceStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(7 * 24 * time.Hour)
	past := now.Add(-7 * 24 * time.Hour)
	total := decimal.NewFromInt(1200)

	tests := []struct {
		name     string
		current  InvoiceStatus
		paid     decimal.Decimal
		dueDate  time.Time
		expected InvoiceStatus
	}{
		{"unpaid before due date", InvoiceIssued, decimal.Zero, future, InvoiceIssued},
		{"partially paid before due date", InvoiceIssued, decimal.NewFromInt(500), future, InvoicePartPaid},
		{"fully paid", InvoicePartPaid, total, future, InvoicePaid},
		{"overpaid still paid", InvoiceIssued, decimal.NewFromInt(1500), future, InvoicePaid},
		{"unpaid past due date", InvoiceIssued, decimal.Zero, past, InvoiceLate},
		{"partially paid past due date", InvoicePartPaid, decimal.NewFromInt(500), past, InvoiceLate},
		{"fully paid past due date", InvoiceLate, total, past, InvoicePaid},
		{"void is sticky", InvoiceVoid, total, future, InvoiceVoid},
		{"paid is terminal", InvoicePaid, decimal.Zero, past, InvoicePaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveInvoiceStatus(tt.current, tt.paid, total, tt.dueDate, now)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDeriveInvoiceStatus_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	total := decimal.NewFromInt(1200)
	paid := decimal.NewFromInt(1200)
	due := now.Add(-24 * time.Hour)

	first := DeriveInvoiceStatus(InvoicePartPaid, paid, total, due, now)
	second := DeriveInvoiceStatus(first, paid, total, due, now)

	assert.Equal(t, InvoicePaid, first)
	assert.Equal(t, first, second, "recomputing a settled status should be a no-op")
}

func TestSumAllocations(t *testing.T) {
	allocations := []PaymentAllocation{
		{Amount: decimal.NewFromInt(500)},
		{Amount: decimal.NewFromInt(400)},
		{Amount: decimal.NewFromFloat(0.50)},
	}

	total := SumAllocations(allocations)
	assert.True(t, total.Equal(decimal.NewFromFloat(900.50)), "got %s", total)

	assert.True(t, SumAllocations(nil).IsZero())
}
