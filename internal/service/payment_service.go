package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"rentledger/internal/allocator"
	"rentledger/internal/domain"
	"rentledger/internal/events"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

// pq unique_violation; hit when two racing recordings share a provider ref.
const uniqueViolation = "23505"

type RecordPaymentParams struct {
	LandlordID   string
	InvoiceID    string
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	FeeVAT       decimal.Decimal
	Method       domain.PaymentMethod
	Provider     string
	ProviderRef  string
	ReceivedAt   time.Time
	AutoAllocate bool
}

type PaymentService interface {
	Record(params RecordPaymentParams) (*domain.Payment, error)
	Get(paymentID, landlordID string) (*domain.Payment, error)
	ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error)
}

type paymentService struct {
	db          *sql.DB
	payments    repository.PaymentRepository
	invoices    repository.InvoiceRepository
	allocations repository.AllocationRepository
	ledger      repository.LedgerRepository
	engine      *allocator.Engine
	events      events.Publisher
	now         func() time.Time
}

func NewPaymentService(
	db *sql.DB,
	payments repository.PaymentRepository,
	invoices repository.InvoiceRepository,
	allocations repository.AllocationRepository,
	ledger repository.LedgerRepository,
	engine *allocator.Engine,
	publisher events.Publisher,
) PaymentService {
	return &paymentService{
		db:          db,
		payments:    payments,
		invoices:    invoices,
		allocations: allocations,
		ledger:      ledger,
		engine:      engine,
		events:      publisher,
		now:         time.Now,
	}
}

// Record ingests a payment idempotently. Replaying the same provider
// reference returns the existing payment with zero new writes. Otherwise
// the payment row, its allocation(s), the ledger credit and the invoice
// status recompute land in one transaction.
func (s *paymentService) Record(params RecordPaymentParams) (*domain.Payment, error) {
	if existing, err := s.payments.GetByProviderRef(params.ProviderRef); err == nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"payment_id":   existing.ID,
			"provider_ref": params.ProviderRef,
		}).Info("Duplicate provider reference; returning existing payment")
		return s.attachAllocations(existing)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	invRepo := s.invoices.WithTx(tx)

	// Lock the target invoice up front: concurrent recordings against the
	// same invoice serialize here, keeping the allocation sum within the
	// grand total.
	invoice, err := invRepo.GetForUpdate(params.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.LandlordID != params.LandlordID {
		return nil, domain.ErrNotFound
	}
	if invoice.Status == domain.InvoiceVoid {
		return nil, fmt.Errorf("%w: cannot record a payment against a void invoice", domain.ErrConflict)
	}

	payment := &domain.Payment{
		LandlordID:  params.LandlordID,
		TenancyID:   invoice.TenancyID,
		InvoiceID:   params.InvoiceID,
		Amount:      params.Amount,
		Fee:         params.Fee,
		FeeVAT:      params.FeeVAT,
		Method:      params.Method,
		Provider:    params.Provider,
		ProviderRef: params.ProviderRef,
		Status:      initialStatus(params.Provider),
		ReceivedAt:  params.ReceivedAt,
	}

	if err := s.payments.WithTx(tx).Create(payment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// Lost the race to another recording of the same reference.
			tx.Rollback()
			existing, lookupErr := s.payments.GetByProviderRef(params.ProviderRef)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return s.attachAllocations(existing)
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if params.AutoAllocate {
		if _, err := s.engine.ApplyAuto(tx, payment); err != nil {
			return nil, err
		}
	} else {
		if err := s.allocateSingle(tx, payment, invoice); err != nil {
			return nil, err
		}
	}

	credit := &domain.LedgerEntry{
		LandlordID: payment.LandlordID,
		AccountID:  payment.TenancyID,
		Direction:  domain.Credit,
		Amount:     payment.Amount,
		RefType:    domain.RefPayment,
		RefID:      payment.ID,
		Memo:       "Payment " + payment.ProviderRef,
		EventAt:    payment.ReceivedAt,
	}
	if err := s.ledger.WithTx(tx).Append(credit); err != nil {
		return nil, fmt.Errorf("failed to post ledger credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	result, err := s.attachAllocations(payment)
	if err != nil {
		return nil, err
	}

	s.publishRecorded(result)

	logger.GetLogger().WithFields(map[string]interface{}{
		"payment_id":   payment.ID,
		"provider_ref": payment.ProviderRef,
		"amount":       payment.Amount.String(),
	}).Info("Payment recorded")

	return result, nil
}

func (s *paymentService) Get(paymentID, landlordID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(paymentID, landlordID)
	if err != nil {
		return nil, err
	}
	return s.attachAllocations(payment)
}

// ListByInvoice exposes the payment trail for one invoice.
func (s *paymentService) ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error) {
	if _, err := s.invoices.GetByID(invoiceID, landlordID); err != nil {
		return nil, err
	}
	return s.payments.ListByInvoice(invoiceID, landlordID)
}

// allocateSingle is the single-invoice recording path: one allocation
// against the supplied invoice. An overpayment allocates up to the balance
// and leaves the remainder unallocated on the payment, preserving the
// invoice's allocation-sum invariant.
func (s *paymentService) allocateSingle(tx *sql.Tx, payment *domain.Payment, invoice *domain.Invoice) error {
	amount := decimal.Min(payment.Amount, invoice.Balance)
	if !amount.IsPositive() {
		return nil
	}
	if amount.LessThan(payment.Amount) {
		logger.GetLogger().WithFields(map[string]interface{}{
			"payment_id": payment.ID,
			"invoice_id": invoice.ID,
			"capped_at":  amount.String(),
		}).Info("Payment exceeds invoice balance; remainder left unallocated")
	}

	allocation := &domain.PaymentAllocation{
		PaymentID: payment.ID,
		InvoiceID: invoice.ID,
		Amount:    amount,
	}
	if err := s.allocations.WithTx(tx).Create(allocation); err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}

	paid := invoice.PaidAmount.Add(amount)
	next := domain.DeriveInvoiceStatus(invoice.Status, paid, invoice.GrandTotal, invoice.DueDate, s.now())
	if next != invoice.Status {
		if _, err := s.invoices.WithTx(tx).UpdateStatus(invoice.ID, invoice.Status, next); err != nil {
			return err
		}
		invoice.Status = next
	}

	return nil
}

func (s *paymentService) attachAllocations(payment *domain.Payment) (*domain.Payment, error) {
	allocations, err := s.allocations.ListByPayment(payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Allocations = allocations
	payment.AllocatedAmount = domain.SumAllocations(allocations)
	payment.UnallocatedAmount = payment.Amount.Sub(payment.AllocatedAmount)
	return payment, nil
}

func (s *paymentService) publishRecorded(payment *domain.Payment) {
	resources := []domain.EventResource{{Type: domain.RefPayment, ID: payment.ID}}
	for _, a := range payment.Allocations {
		resources = append(resources, domain.EventResource{Type: domain.RefInvoice, ID: a.InvoiceID})
	}

	s.events.Publish(domain.Event{
		Type:       domain.EventPaymentRecorded,
		LandlordID: payment.LandlordID,
		Resources:  resources,
		Payload: map[string]interface{}{
			"amount":       payment.Amount.String(),
			"provider_ref": payment.ProviderRef,
			"method":       string(payment.Method),
		},
	})

	// Invoice outcome events follow the post-allocation status.
	for _, a := range payment.Allocations {
		invoice, err := s.invoices.GetByID(a.InvoiceID, payment.LandlordID)
		if err != nil {
			continue
		}
		switch invoice.Status {
		case domain.InvoicePaid:
			s.events.Publish(domain.Event{
				Type:       domain.EventInvoicePaid,
				LandlordID: payment.LandlordID,
				Resources:  []domain.EventResource{{Type: domain.RefInvoice, ID: invoice.ID}},
				Payload:    map[string]interface{}{"number": invoice.Number},
			})
		case domain.InvoiceLate:
			s.events.Publish(domain.Event{
				Type:       domain.EventInvoiceLate,
				LandlordID: payment.LandlordID,
				Resources:  []domain.EventResource{{Type: domain.RefInvoice, ID: invoice.ID}},
				Payload:    map[string]interface{}{"number": invoice.Number, "balance": invoice.Balance.String()},
			})
		}
	}
}

// initialStatus: money recorded by hand is already settled; provider-pulled
// payments start pending and advance via webhooks.
func initialStatus(providerName string) domain.PaymentStatus {
	switch providerName {
	case "", "manual":
		return domain.PaymentSettled
	}
	return domain.PaymentPending
}
