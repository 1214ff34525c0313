package allocator

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

func openInvoice(id string, dueDate time.Time, balance int64) domain.Invoice {
	total := decimal.NewFromInt(balance)
	return domain.Invoice{
		ID:         id,
		DueDate:    dueDate,
		GrandTotal: total,
		Balance:    total,
		Status:     domain.InvoiceIssued,
	}
}

func TestPlanAuto_OldestDueFirst(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	invoices := []domain.Invoice{
		openInvoice("inv-jan", jan, 500),
		openInvoice("inv-feb", feb, 700),
	}

	plan := PlanAuto(invoices, decimal.NewFromInt(900))

	assert.Len(t, plan, 2)
	assert.Equal(t, "inv-jan", plan[0].InvoiceID)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(500)), "got %s", plan[0].Amount)
	assert.Equal(t, "inv-feb", plan[1].InvoiceID)
	assert.True(t, plan[1].Amount.Equal(decimal.NewFromInt(400)), "got %s", plan[1].Amount)
}

func TestPlanAuto_ExactCover(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := PlanAuto([]domain.Invoice{openInvoice("inv", jan, 1200)}, decimal.NewFromInt(1200))

	assert.Len(t, plan, 1)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(1200)))
}

func TestPlanAuto_LeftoverStopsPlanning(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := PlanAuto([]domain.Invoice{openInvoice("inv", jan, 500)}, decimal.NewFromInt(800))

	assert.Len(t, plan, 1)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(500)), "allocation capped at balance")

	allocated := decimal.Zero
	for _, req := range plan {
		allocated = allocated.Add(req.Amount)
	}
	assert.True(t, allocated.LessThanOrEqual(decimal.NewFromInt(800)))
}

func TestPlanAuto_SkipsVoidAndSettled(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	void := openInvoice("inv-void", jan, 500)
	void.Status = domain.InvoiceVoid

	settled := openInvoice("inv-settled", jan, 500)
	settled.Balance = decimal.Zero

	open := openInvoice("inv-open", feb, 300)

	plan := PlanAuto([]domain.Invoice{void, settled, open}, decimal.NewFromInt(300))

	assert.Len(t, plan, 1)
	assert.Equal(t, "inv-open", plan[0].InvoiceID)
}

func TestPlanAuto_ZeroAmount(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := PlanAuto([]domain.Invoice{openInvoice("inv", jan, 500)}, decimal.Zero)
	assert.Empty(t, plan)
}

// The fakes below share a call log so tests can assert the locking order.

type enginePaymentRepo struct {
	payment *domain.Payment
	calls   *[]string
}

func (r *enginePaymentRepo) WithTx(tx *sql.Tx) repository.PaymentRepository { return r }
func (r *enginePaymentRepo) Create(p *domain.Payment) error                 { return nil }
func (r *enginePaymentRepo) GetByID(id, landlordID string) (*domain.Payment, error) {
	clone := *r.payment
	return &clone, nil
}
func (r *enginePaymentRepo) GetForUpdate(id string) (*domain.Payment, error) {
	*r.calls = append(*r.calls, "lock payment")
	if r.payment == nil || r.payment.ID != id {
		return nil, domain.ErrNotFound
	}
	clone := *r.payment
	return &clone, nil
}
func (r *enginePaymentRepo) GetByProviderRef(ref string) (*domain.Payment, error) {
	return nil, domain.ErrNotFound
}
func (r *enginePaymentRepo) ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error) {
	return nil, nil
}
func (r *enginePaymentRepo) UpdateStatus(id string, from, to domain.PaymentStatus) (bool, error) {
	return false, nil
}

type engineAllocationRepo struct {
	existing decimal.Decimal
	created  []domain.PaymentAllocation
	calls    *[]string
}

func (r *engineAllocationRepo) WithTx(tx *sql.Tx) repository.AllocationRepository { return r }
func (r *engineAllocationRepo) Create(a *domain.PaymentAllocation) error {
	r.created = append(r.created, *a)
	return nil
}
func (r *engineAllocationRepo) ListByPayment(paymentID string) ([]domain.PaymentAllocation, error) {
	return r.created, nil
}
func (r *engineAllocationRepo) SumByPayment(paymentID string) (decimal.Decimal, error) {
	*r.calls = append(*r.calls, "sum allocations")
	return r.existing, nil
}
func (r *engineAllocationRepo) SumByInvoice(invoiceID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (r *engineAllocationRepo) CountByInvoice(invoiceID string) (int, error) { return 0, nil }

type engineInvoiceRepo struct {
	invoices map[string]*domain.Invoice
}

func (r *engineInvoiceRepo) WithTx(tx *sql.Tx) repository.InvoiceRepository { return r }
func (r *engineInvoiceRepo) NextSequence(landlordID string, year int) (int64, error) {
	return 0, nil
}
func (r *engineInvoiceRepo) Create(inv *domain.Invoice) error { return nil }
func (r *engineInvoiceRepo) GetByID(id, landlordID string) (*domain.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.LandlordID != landlordID {
		return nil, domain.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}
func (r *engineInvoiceRepo) GetForUpdate(id string) (*domain.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}
func (r *engineInvoiceRepo) List(landlordID string) ([]domain.Invoice, error) { return nil, nil }
func (r *engineInvoiceRepo) ListOpenByTenancy(tenancyID string) ([]domain.Invoice, error) {
	return nil, nil
}
func (r *engineInvoiceRepo) UpdateStatus(id string, from, to domain.InvoiceStatus) (bool, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	return true, nil
}
func (r *engineInvoiceRepo) FindCandidates(landlordID string, amount, tolerance decimal.Decimal, from, to time.Time) ([]domain.Invoice, error) {
	return nil, nil
}

func tenancyInvoice(id string, balance int64) *domain.Invoice {
	inv := openInvoice(id, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), balance)
	inv.LandlordID = "ll-1"
	inv.TenancyID = "t-1"
	return &inv
}

func storedPayment(amount int64) *domain.Payment {
	return &domain.Payment{
		ID:         "pay-1",
		LandlordID: "ll-1",
		TenancyID:  "t-1",
		Amount:     decimal.NewFromInt(amount),
	}
}

func TestApplyManual_LocksPaymentBeforeSumming(t *testing.T) {
	var calls []string
	payments := &enginePaymentRepo{payment: storedPayment(100), calls: &calls}
	allocations := &engineAllocationRepo{existing: decimal.Zero, calls: &calls}
	invoices := &engineInvoiceRepo{invoices: map[string]*domain.Invoice{"inv-1": tenancyInvoice("inv-1", 500)}}
	e := NewEngine(nil, invoices, allocations, payments)

	err := e.ApplyManual(nil, storedPayment(100), []Request{
		{InvoiceID: "inv-1", Amount: decimal.NewFromInt(100)},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"lock payment", "sum allocations"}, calls)
	assert.Len(t, allocations.created, 1)
}

func TestApplyManual_ExistingAllocationsCountTowardCap(t *testing.T) {
	var calls []string
	payments := &enginePaymentRepo{payment: storedPayment(100), calls: &calls}
	allocations := &engineAllocationRepo{existing: decimal.NewFromInt(60), calls: &calls}
	invoices := &engineInvoiceRepo{invoices: map[string]*domain.Invoice{"inv-1": tenancyInvoice("inv-1", 500)}}
	e := NewEngine(nil, invoices, allocations, payments)

	err := e.ApplyManual(nil, storedPayment(100), []Request{
		{InvoiceID: "inv-1", Amount: decimal.NewFromInt(50)},
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, allocations.created)
}

func TestApplyManual_LockedRowGovernsTheCap(t *testing.T) {
	var calls []string
	payments := &enginePaymentRepo{payment: storedPayment(100), calls: &calls}
	allocations := &engineAllocationRepo{existing: decimal.Zero, calls: &calls}
	invoices := &engineInvoiceRepo{invoices: map[string]*domain.Invoice{"inv-1": tenancyInvoice("inv-1", 500)}}
	e := NewEngine(nil, invoices, allocations, payments)

	// The caller holds a stale copy claiming a bigger amount; the freshly
	// locked row decides.
	stale := storedPayment(1000)
	err := e.ApplyManual(nil, stale, []Request{
		{InvoiceID: "inv-1", Amount: decimal.NewFromInt(500)},
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, allocations.created)
}

func TestApplyAuto_FullyAllocatedPaymentIsNoOp(t *testing.T) {
	var calls []string
	payments := &enginePaymentRepo{payment: storedPayment(100), calls: &calls}
	allocations := &engineAllocationRepo{existing: decimal.NewFromInt(100), calls: &calls}
	invoices := &engineInvoiceRepo{invoices: map[string]*domain.Invoice{}}
	e := NewEngine(nil, invoices, allocations, payments)

	remaining, err := e.ApplyAuto(nil, storedPayment(100))

	require.NoError(t, err)
	assert.True(t, remaining.IsZero())
	assert.Equal(t, []string{"lock payment", "sum allocations"}, calls)
	assert.Empty(t, allocations.created)
}
