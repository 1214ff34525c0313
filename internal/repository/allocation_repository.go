package repository

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type AllocationRepository interface {
	WithTx(tx *sql.Tx) AllocationRepository
	Create(allocation *domain.PaymentAllocation) error
	ListByPayment(paymentID string) ([]domain.PaymentAllocation, error)
	SumByPayment(paymentID string) (decimal.Decimal, error)
	SumByInvoice(invoiceID string) (decimal.Decimal, error)
	CountByInvoice(invoiceID string) (int, error)
}

type allocationRepository struct {
	db DBTX
}

func NewAllocationRepository(db DBTX) AllocationRepository {
	return &allocationRepository{db: db}
}

func (r *allocationRepository) WithTx(tx *sql.Tx) AllocationRepository {
	return &allocationRepository{db: tx}
}

func (r *allocationRepository) Create(allocation *domain.PaymentAllocation) error {
	if allocation.ID == "" {
		allocation.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO payment_allocations (id, payment_id, invoice_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, allocation.ID, allocation.PaymentID, allocation.InvoiceID, allocation.Amount).Scan(&allocation.CreatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create allocation")
		return err
	}

	return nil
}

func (r *allocationRepository) ListByPayment(paymentID string) ([]domain.PaymentAllocation, error) {
	rows, err := r.db.Query(`
		SELECT id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query allocations")
		return nil, err
	}
	defer rows.Close()

	var allocations []domain.PaymentAllocation
	for rows.Next() {
		var a domain.PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan allocation")
			continue
		}
		allocations = append(allocations, a)
	}

	return allocations, rows.Err()
}

func (r *allocationRepository) SumByPayment(paymentID string) (decimal.Decimal, error) {
	return r.sum(`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE payment_id = $1`, paymentID)
}

func (r *allocationRepository) SumByInvoice(invoiceID string) (decimal.Decimal, error) {
	return r.sum(`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id = $1`, invoiceID)
}

func (r *allocationRepository) CountByInvoice(invoiceID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM payment_allocations WHERE invoice_id = $1`, invoiceID).Scan(&count)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to count allocations")
		return 0, err
	}
	return count, nil
}

func (r *allocationRepository) sum(query, id string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.QueryRow(query, id).Scan(&total); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to sum allocations")
		return decimal.Zero, err
	}
	return total, nil
}
