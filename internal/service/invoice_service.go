package service

import (
	"database/sql"
	"fmt"
	"time"

	"rentledger/internal/domain"
	"rentledger/internal/events"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

type CreateInvoiceParams struct {
	LandlordID string
	TenancyID  string
	IssueDate  time.Time
	DueDate    time.Time
	Lines      []domain.InvoiceLine
}

type InvoiceService interface {
	Create(params CreateInvoiceParams) (*domain.Invoice, error)
	Get(invoiceID, landlordID string) (*domain.Invoice, error)
	List(landlordID string) ([]domain.Invoice, error)
	Void(invoiceID, landlordID string) (*domain.Invoice, error)
	RecomputeStatus(invoiceID, landlordID string) (*domain.Invoice, error)
}

type invoiceService struct {
	db          *sql.DB
	invoices    repository.InvoiceRepository
	allocations repository.AllocationRepository
	ledger      repository.LedgerRepository
	tenancies   repository.TenancyRepository
	events      events.Publisher
	now         func() time.Time
}

func NewInvoiceService(
	db *sql.DB,
	invoices repository.InvoiceRepository,
	allocations repository.AllocationRepository,
	ledger repository.LedgerRepository,
	tenancies repository.TenancyRepository,
	publisher events.Publisher,
) InvoiceService {
	return &invoiceService{
		db:          db,
		invoices:    invoices,
		allocations: allocations,
		ledger:      ledger,
		tenancies:   tenancies,
		events:      publisher,
		now:         time.Now,
	}
}

// Create validates tenancy ownership, derives totals, claims the next
// sequence number and persists the invoice together with its ledger debit
// in one transaction.
func (s *invoiceService) Create(params CreateInvoiceParams) (*domain.Invoice, error) {
	if len(params.Lines) == 0 {
		return nil, fmt.Errorf("invoice requires at least one line")
	}

	tenancy, err := s.tenancies.GetByID(params.TenancyID)
	if err != nil {
		return nil, err
	}
	if tenancy.LandlordID != params.LandlordID {
		return nil, domain.ErrNotFound
	}

	invoice := &domain.Invoice{
		LandlordID: params.LandlordID,
		TenancyID:  params.TenancyID,
		PropertyID: tenancy.PropertyID,
		IssueDate:  params.IssueDate,
		DueDate:    params.DueDate,
		Lines:      params.Lines,
		Status:     domain.InvoiceIssued,
	}
	invoice.ComputeTotals()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	invRepo := s.invoices.WithTx(tx)

	seq, err := invRepo.NextSequence(params.LandlordID, params.IssueDate.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to claim invoice sequence: %w", err)
	}
	invoice.Number = domain.FormatInvoiceNumber(params.IssueDate.Year(), seq)

	if err := invRepo.Create(invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	debit := &domain.LedgerEntry{
		LandlordID: invoice.LandlordID,
		AccountID:  invoice.TenancyID,
		Direction:  domain.Debit,
		Amount:     invoice.GrandTotal,
		RefType:    domain.RefInvoice,
		RefID:      invoice.ID,
		Memo:       "Invoice " + invoice.Number,
		EventAt:    invoice.IssueDate,
	}
	if err := s.ledger.WithTx(tx).Append(debit); err != nil {
		return nil, fmt.Errorf("failed to post ledger debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	invoice.Balance = invoice.GrandTotal

	s.events.Publish(domain.Event{
		Type:       domain.EventInvoiceCreated,
		LandlordID: invoice.LandlordID,
		TenantID:   tenancy.TenantID,
		Resources:  []domain.EventResource{{Type: domain.RefInvoice, ID: invoice.ID}},
		Payload: map[string]interface{}{
			"number":      invoice.Number,
			"grand_total": invoice.GrandTotal.String(),
			"due_date":    invoice.DueDate.Format("2006-01-02"),
		},
	})

	logger.GetLogger().WithFields(map[string]interface{}{
		"invoice_id": invoice.ID,
		"number":     invoice.Number,
	}).Info("Invoice created")

	return invoice, nil
}

func (s *invoiceService) Get(invoiceID, landlordID string) (*domain.Invoice, error) {
	return s.invoices.GetByID(invoiceID, landlordID)
}

func (s *invoiceService) List(landlordID string) ([]domain.Invoice, error) {
	return s.invoices.List(landlordID)
}

// Void marks an invoice VOID. Refused once any allocation exists or the
// invoice is already void; VOID is terminal.
func (s *invoiceService) Void(invoiceID, landlordID string) (*domain.Invoice, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	invRepo := s.invoices.WithTx(tx)

	invoice, err := invRepo.GetForUpdate(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.LandlordID != landlordID {
		return nil, domain.ErrNotFound
	}
	count, err := s.allocations.WithTx(tx).CountByInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	if err := voidGuard(invoice, count); err != nil {
		return nil, err
	}

	if _, err := invRepo.UpdateStatus(invoiceID, invoice.Status, domain.InvoiceVoid); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit void: %w", err)
	}

	invoice.Status = domain.InvoiceVoid

	logger.GetLogger().WithField("invoice_id", invoiceID).Info("Invoice voided")

	return invoice, nil
}

// voidGuard enforces the void preconditions: VOID is terminal, and an
// invoice with money allocated against it cannot be voided.
func voidGuard(invoice *domain.Invoice, allocationCount int) error {
	if invoice.Status == domain.InvoiceVoid {
		return fmt.Errorf("%w: invoice is already void", domain.ErrConflict)
	}
	if allocationCount > 0 {
		return fmt.Errorf("%w: invoice has allocated payments", domain.ErrConflict)
	}
	return nil
}

// RecomputeStatus re-derives the status from the allocation sum, the grand
// total and the due date, writing only when it changed. Idempotent: a
// second call with no intervening allocation is a no-op.
func (s *invoiceService) RecomputeStatus(invoiceID, landlordID string) (*domain.Invoice, error) {
	invoice, err := s.invoices.GetByID(invoiceID, landlordID)
	if err != nil {
		return nil, err
	}

	next := domain.DeriveInvoiceStatus(invoice.Status, invoice.PaidAmount, invoice.GrandTotal, invoice.DueDate, s.now())
	if next == invoice.Status {
		return invoice, nil
	}

	updated, err := s.invoices.UpdateStatus(invoiceID, invoice.Status, next)
	if err != nil {
		return nil, err
	}
	if updated {
		invoice.Status = next
	}

	return invoice, nil
}
