package allocator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

// Request is one caller-supplied allocation instruction.
type Request struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Engine applies payment amounts against invoice balances while enforcing
// the conservation invariants: a payment never allocates more than its
// amount, an invoice never receives more than its grand total. The payment
// row is locked before its allocation sum is read, and invoice rows are
// locked before their balances are consumed, so concurrent allocations
// against either side serialize for the duration of the transaction.
type Engine struct {
	db          *sql.DB
	invoices    repository.InvoiceRepository
	allocations repository.AllocationRepository
	payments    repository.PaymentRepository
	now         func() time.Time
}

func NewEngine(
	db *sql.DB,
	invoices repository.InvoiceRepository,
	allocations repository.AllocationRepository,
	payments repository.PaymentRepository,
) *Engine {
	return &Engine{
		db:          db,
		invoices:    invoices,
		allocations: allocations,
		payments:    payments,
		now:         time.Now,
	}
}

// Allocate is the manual path: validates the whole batch, then applies it
// in one transaction. Either every entry lands or none do.
func (e *Engine) Allocate(paymentID, landlordID string, requests []Request) (*domain.Payment, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := e.payments.WithTx(tx).GetByID(paymentID, landlordID)
	if err != nil {
		return nil, err
	}

	if err := e.ApplyManual(tx, payment, requests); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit allocations: %w", err)
	}

	allocations, err := e.allocations.ListByPayment(payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Allocations = allocations
	payment.AllocatedAmount = domain.SumAllocations(allocations)
	payment.UnallocatedAmount = payment.Amount.Sub(payment.AllocatedAmount)

	return payment, nil
}

// ApplyManual validates and applies a batch inside the caller's
// transaction. All invoices are locked and validated before any row is
// written, so a mid-batch failure cannot leave a partial application.
func (e *Engine) ApplyManual(tx *sql.Tx, payment *domain.Payment, requests []Request) error {
	allocRepo := e.allocations.WithTx(tx)
	invRepo := e.invoices.WithTx(tx)

	// Lock the payment row before summing its allocations. Two batches for
	// the same payment targeting disjoint invoices would otherwise both read
	// the same stale sum and together overshoot the payment amount.
	payment, err := e.payments.WithTx(tx).GetForUpdate(payment.ID)
	if err != nil {
		return err
	}

	currentAllocated, err := allocRepo.SumByPayment(payment.ID)
	if err != nil {
		return err
	}

	requested := decimal.Zero
	for _, req := range requests {
		if !req.Amount.IsPositive() {
			return fmt.Errorf("%w: allocation amount must be positive", domain.ErrConflict)
		}
		requested = requested.Add(req.Amount)
	}

	if currentAllocated.Add(requested).GreaterThan(payment.Amount) {
		return fmt.Errorf("%w: requested allocations exceed payment amount", domain.ErrConflict)
	}

	// Lock and validate every target before writing anything. pending
	// tracks earlier entries in this batch aimed at the same invoice.
	locked := make(map[string]*domain.Invoice, len(requests))
	pending := make(map[string]decimal.Decimal, len(requests))

	for _, req := range requests {
		inv, ok := locked[req.InvoiceID]
		if !ok {
			inv, err = invRepo.GetForUpdate(req.InvoiceID)
			if err != nil {
				return err
			}
			if inv.LandlordID != payment.LandlordID {
				return domain.ErrNotFound
			}
			if inv.TenancyID != payment.TenancyID {
				return fmt.Errorf("%w: invoice belongs to a different tenancy", domain.ErrConflict)
			}
			if inv.Status == domain.InvoiceVoid {
				return fmt.Errorf("%w: cannot allocate against a void invoice", domain.ErrConflict)
			}
			locked[req.InvoiceID] = inv
			pending[req.InvoiceID] = decimal.Zero
		}

		balance := inv.Balance.Sub(pending[req.InvoiceID])
		if req.Amount.GreaterThan(balance) {
			return fmt.Errorf("%w: allocation exceeds invoice balance", domain.ErrConflict)
		}
		pending[req.InvoiceID] = pending[req.InvoiceID].Add(req.Amount)
	}

	for _, req := range requests {
		allocation := &domain.PaymentAllocation{
			PaymentID: payment.ID,
			InvoiceID: req.InvoiceID,
			Amount:    req.Amount,
		}
		if err := allocRepo.Create(allocation); err != nil {
			return err
		}
	}

	for invoiceID, inv := range locked {
		paid := inv.PaidAmount.Add(pending[invoiceID])
		if err := e.recompute(invRepo, inv, paid); err != nil {
			return err
		}
	}

	return nil
}

// ApplyAuto walks the tenancy's open invoices oldest-due-first inside the
// caller's transaction, consuming the payment's unallocated amount. Leftover
// stays unallocated on the payment; that is not an error.
func (e *Engine) ApplyAuto(tx *sql.Tx, payment *domain.Payment) (decimal.Decimal, error) {
	allocRepo := e.allocations.WithTx(tx)
	invRepo := e.invoices.WithTx(tx)

	// Same locking discipline as ApplyManual: hold the payment row before
	// reading its allocation sum.
	payment, err := e.payments.WithTx(tx).GetForUpdate(payment.ID)
	if err != nil {
		return decimal.Zero, err
	}

	currentAllocated, err := allocRepo.SumByPayment(payment.ID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := payment.Amount.Sub(currentAllocated)
	if !remaining.IsPositive() {
		return decimal.Zero, nil
	}

	open, err := invRepo.ListOpenByTenancy(payment.TenancyID)
	if err != nil {
		return decimal.Zero, err
	}

	for _, candidate := range open {
		if !remaining.IsPositive() {
			break
		}

		// Re-read under lock; the listed balance may be stale by now.
		inv, err := invRepo.GetForUpdate(candidate.ID)
		if err != nil {
			return decimal.Zero, err
		}
		if inv.Status == domain.InvoiceVoid || !inv.Balance.IsPositive() {
			continue
		}

		amount := decimal.Min(remaining, inv.Balance)
		allocation := &domain.PaymentAllocation{
			PaymentID: payment.ID,
			InvoiceID: inv.ID,
			Amount:    amount,
		}
		if err := allocRepo.Create(allocation); err != nil {
			return decimal.Zero, err
		}

		if err := e.recompute(invRepo, inv, inv.PaidAmount.Add(amount)); err != nil {
			return decimal.Zero, err
		}

		remaining = remaining.Sub(amount)
	}

	if remaining.IsPositive() {
		logger.GetLogger().WithFields(map[string]interface{}{
			"payment_id": payment.ID,
			"remaining":  remaining.String(),
		}).Info("Payment partially allocated; remainder left unallocated")
	}

	return remaining, nil
}

// AutoAllocate is the standalone auto path, running in its own transaction.
func (e *Engine) AutoAllocate(paymentID, landlordID string) (*domain.Payment, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := e.payments.WithTx(tx).GetByID(paymentID, landlordID)
	if err != nil {
		return nil, err
	}

	if _, err := e.ApplyAuto(tx, payment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit allocations: %w", err)
	}

	allocations, err := e.allocations.ListByPayment(payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Allocations = allocations
	payment.AllocatedAmount = domain.SumAllocations(allocations)
	payment.UnallocatedAmount = payment.Amount.Sub(payment.AllocatedAmount)

	return payment, nil
}

// recompute writes the derived status only when it differs from the stored
// one.
func (e *Engine) recompute(invRepo repository.InvoiceRepository, inv *domain.Invoice, paid decimal.Decimal) error {
	next := domain.DeriveInvoiceStatus(inv.Status, paid, inv.GrandTotal, inv.DueDate, e.now())
	if next == inv.Status {
		return nil
	}
	if _, err := invRepo.UpdateStatus(inv.ID, inv.Status, next); err != nil {
		return err
	}
	inv.Status = next
	return nil
}

// PlanAuto is the pure oldest-due-first walk: given open invoices already
// ordered by due date (ties by creation order) and an amount, it returns
// the allocations that would be made. Used by the engine's callers for
// previews and by tests.
func PlanAuto(invoices []domain.Invoice, amount decimal.Decimal) []Request {
	var plan []Request
	remaining := amount

	for _, inv := range invoices {
		if !remaining.IsPositive() {
			break
		}
		if inv.Status == domain.InvoiceVoid || !inv.Balance.IsPositive() {
			continue
		}

		alloc := decimal.Min(remaining, inv.Balance)
		plan = append(plan, Request{InvoiceID: inv.ID, Amount: alloc})
		remaining = remaining.Sub(alloc)
	}

	return plan
}
