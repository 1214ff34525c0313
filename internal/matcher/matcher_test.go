package matcher

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/domain"
	"rentledger/internal/repository"
)

func scoringInvoice(number string, total float64, dueDate time.Time) domain.Invoice {
	return domain.Invoice{
		Number:     number,
		GrandTotal: decimal.NewFromFloat(total),
		DueDate:    dueDate,
	}
}

func TestScore_ExactAmountSameDay(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000001", 1200, due)
	transaction := domain.BankTransaction{
		Amount:      decimal.NewFromInt(1200),
		PostedAt:    due,
		Description: "STANDING ORDER RENT",
	}

	assert.Equal(t, 80, Score(invoice, transaction))
}

func TestScore_DescriptionMentionsInvoiceNumber(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000001", 1200, due)
	transaction := domain.BankTransaction{
		Amount:      decimal.NewFromInt(1200),
		PostedAt:    due,
		Description: "rent inv-2025-000001 march",
	}

	// 60 amount + 20 date + 20 description, clamped to 100.
	assert.Equal(t, 100, Score(invoice, transaction))
}

func TestScore_AmountBands(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	far := due.Add(30 * 24 * time.Hour)

	tests := []struct {
		name     string
		amount   float64
		expected int
	}{
		{"exact", 1200.00, 60},
		{"within one pound", 1200.80, 50},
		{"within five pounds", 1204.00, 30},
		{"outside tolerance", 1210.00, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoice := scoringInvoice("INV-2025-000009", 1200, due)
			transaction := domain.BankTransaction{
				Amount:   decimal.NewFromFloat(tt.amount),
				PostedAt: far,
			}
			assert.Equal(t, tt.expected, Score(invoice, transaction))
		})
	}
}

func TestScore_DateBands(t *testing.T) {
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		postedAt time.Time
		expected int
	}{
		{"same day", due, 80},
		{"one day after", due.Add(24 * time.Hour), 75},
		{"three days before", due.Add(-3 * 24 * time.Hour), 70},
		{"five days after", due.Add(5 * 24 * time.Hour), 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoice := scoringInvoice("INV-2025-000010", 1200, due)
			transaction := domain.BankTransaction{
				Amount:   decimal.NewFromInt(1200),
				PostedAt: tt.postedAt,
			}
			assert.Equal(t, tt.expected, Score(invoice, transaction))
		})
	}
}

func TestScore_NoSignal(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000011", 1200, due)
	transaction := domain.BankTransaction{
		Amount:      decimal.NewFromInt(50),
		PostedAt:    due.Add(60 * 24 * time.Hour),
		Description: "COFFEE SHOP",
	}

	assert.Equal(t, 0, Score(invoice, transaction))
}

func TestScore_Deterministic(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000012", 1200, due)
	transaction := domain.BankTransaction{
		Amount:      decimal.NewFromInt(1200),
		PostedAt:    due,
		Description: "RENT INV-2025-000012",
	}

	first := Score(invoice, transaction)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(invoice, transaction))
	}
}

type matchBankRepo struct {
	transaction *domain.BankTransaction
	recs        []domain.Reconciliation
}

func (r *matchBankRepo) WithTx(tx *sql.Tx) repository.BankTransactionRepository { return r }
func (r *matchBankRepo) Create(t *domain.BankTransaction) error                 { return nil }
func (r *matchBankRepo) BulkCreate(ts []domain.BankTransaction) error           { return nil }
func (r *matchBankRepo) GetByID(id, landlordID string) (*domain.BankTransaction, error) {
	if r.transaction == nil || r.transaction.ID != id || r.transaction.LandlordID != landlordID {
		return nil, domain.ErrNotFound
	}
	clone := *r.transaction
	return &clone, nil
}
func (r *matchBankRepo) ListUnmatched(landlordID string) ([]domain.BankTransaction, error) {
	return nil, nil
}
func (r *matchBankRepo) CreateReconciliation(rec *domain.Reconciliation) error {
	r.recs = append(r.recs, *rec)
	return nil
}
func (r *matchBankRepo) ListReconciliations(transactionID string) ([]domain.Reconciliation, error) {
	return r.recs, nil
}

type matchInvoiceRepo struct {
	candidates []domain.Invoice
}

func (r *matchInvoiceRepo) WithTx(tx *sql.Tx) repository.InvoiceRepository { return r }
func (r *matchInvoiceRepo) NextSequence(landlordID string, year int) (int64, error) {
	return 0, nil
}
func (r *matchInvoiceRepo) Create(inv *domain.Invoice) error { return nil }
func (r *matchInvoiceRepo) GetByID(id, landlordID string) (*domain.Invoice, error) {
	for _, inv := range r.candidates {
		if inv.ID == id && inv.LandlordID == landlordID {
			clone := inv
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (r *matchInvoiceRepo) GetForUpdate(id string) (*domain.Invoice, error) {
	return nil, domain.ErrNotFound
}
func (r *matchInvoiceRepo) List(landlordID string) ([]domain.Invoice, error) { return nil, nil }
func (r *matchInvoiceRepo) ListOpenByTenancy(tenancyID string) ([]domain.Invoice, error) {
	return nil, nil
}
func (r *matchInvoiceRepo) UpdateStatus(id string, from, to domain.InvoiceStatus) (bool, error) {
	return false, nil
}
func (r *matchInvoiceRepo) FindCandidates(landlordID string, amount, tolerance decimal.Decimal, from, to time.Time) ([]domain.Invoice, error) {
	return r.candidates, nil
}

func creditTransaction(amount float64, postedAt time.Time, description string) *domain.BankTransaction {
	return &domain.BankTransaction{
		ID:          "tx-1",
		LandlordID:  "ll-1",
		Amount:      decimal.NewFromFloat(amount),
		PostedAt:    postedAt,
		Description: description,
	}
}

func TestAutoConfirm_TopCandidateClearsThreshold(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000001", 1200, due)
	invoice.ID = "inv-1"
	invoice.LandlordID = "ll-1"

	bank := &matchBankRepo{transaction: creditTransaction(1200, due, "RENT INV-2025-000001")}
	invoices := &matchInvoiceRepo{candidates: []domain.Invoice{invoice}}
	m := NewMatcher(bank, invoices, 3, decimal.NewFromInt(1), 90)

	rec, err := m.AutoConfirm("tx-1", "ll-1")

	require.NoError(t, err)
	assert.Equal(t, domain.MatchAuto, rec.MatchType)
	assert.Equal(t, 100, rec.Confidence)
	require.NotNil(t, rec.InvoiceID)
	assert.Equal(t, "inv-1", *rec.InvoiceID)
	assert.Len(t, bank.recs, 1)
}

func TestAutoConfirm_BelowThresholdStaysUnmatched(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000002", 1204, due)
	invoice.ID = "inv-2"
	invoice.LandlordID = "ll-1"

	// Amount off by four pounds, posted well after due, no number in the
	// description: the score lands far below the threshold.
	bank := &matchBankRepo{transaction: creditTransaction(1200, due.Add(10*24*time.Hour), "BANK TRANSFER")}
	invoices := &matchInvoiceRepo{candidates: []domain.Invoice{invoice}}
	m := NewMatcher(bank, invoices, 3, decimal.NewFromInt(1), 90)

	_, err := m.AutoConfirm("tx-1", "ll-1")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, bank.recs)
}

func TestAutoConfirm_AlreadyMatchedConflicts(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := scoringInvoice("INV-2025-000003", 1200, due)
	invoice.ID = "inv-3"
	invoice.LandlordID = "ll-1"

	bank := &matchBankRepo{
		transaction: creditTransaction(1200, due, "RENT INV-2025-000003"),
		recs:        []domain.Reconciliation{{ID: "rec-1", BankTransactionID: "tx-1"}},
	}
	invoices := &matchInvoiceRepo{candidates: []domain.Invoice{invoice}}
	m := NewMatcher(bank, invoices, 3, decimal.NewFromInt(1), 90)

	_, err := m.AutoConfirm("tx-1", "ll-1")

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, bank.recs, 1, "no second reconciliation row")
}
