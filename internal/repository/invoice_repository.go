package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type InvoiceRepository interface {
	WithTx(tx *sql.Tx) InvoiceRepository
	NextSequence(landlordID string, year int) (int64, error)
	Create(invoice *domain.Invoice) error
	GetByID(invoiceID, landlordID string) (*domain.Invoice, error)
	GetForUpdate(invoiceID string) (*domain.Invoice, error)
	List(landlordID string) ([]domain.Invoice, error)
	ListOpenByTenancy(tenancyID string) ([]domain.Invoice, error)
	UpdateStatus(invoiceID string, from, to domain.InvoiceStatus) (bool, error)
	FindCandidates(landlordID string, amount decimal.Decimal, tolerance decimal.Decimal, from, to time.Time) ([]domain.Invoice, error)
}

type invoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) WithTx(tx *sql.Tx) InvoiceRepository {
	return &invoiceRepository{db: tx}
}

// NextSequence atomically claims the next invoice number for the
// (landlord, year) pair. The upsert makes concurrent invoice creation safe
// without a read-then-write race.
func (r *invoiceRepository) NextSequence(landlordID string, year int) (int64, error) {
	query := `
		INSERT INTO invoice_sequences (landlord_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (landlord_id, year)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`

	var seq int64
	if err := r.db.QueryRow(query, landlordID, year).Scan(&seq); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to claim invoice sequence")
		return 0, err
	}
	return seq, nil
}

func (r *invoiceRepository) Create(invoice *domain.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}

	query := `
		INSERT INTO invoices (
			id, landlord_id, tenancy_id, property_id, number,
			issue_date, due_date, line_total, tax_total, grand_total, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		invoice.ID,
		invoice.LandlordID,
		invoice.TenancyID,
		invoice.PropertyID,
		invoice.Number,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.LineTotal,
		invoice.TaxTotal,
		invoice.GrandTotal,
		invoice.Status,
	).Scan(&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create invoice")
		return err
	}

	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.InvoiceID = invoice.ID

		_, err := r.db.Exec(`
			INSERT INTO invoice_lines (id, invoice_id, description, quantity, unit_price, tax_rate)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.ID, line.InvoiceID, line.Description, line.Quantity, line.UnitPrice, line.TaxRate)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("invoice_id", invoice.ID).Error("Failed to insert invoice line")
			return err
		}
	}

	return nil
}

const invoiceColumns = `
	i.id, i.landlord_id, i.tenancy_id, i.property_id, i.number,
	i.issue_date, i.due_date, i.line_total, i.tax_total, i.grand_total,
	i.status, i.created_at, i.updated_at,
	COALESCE((SELECT SUM(a.amount) FROM payment_allocations a WHERE a.invoice_id = i.id), 0) AS paid_amount
`

func scanInvoice(row interface{ Scan(...interface{}) error }) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.LandlordID,
		&inv.TenancyID,
		&inv.PropertyID,
		&inv.Number,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.LineTotal,
		&inv.TaxTotal,
		&inv.GrandTotal,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.PaidAmount,
	)
	if err != nil {
		return nil, err
	}
	inv.Balance = inv.GrandTotal.Sub(inv.PaidAmount)
	return &inv, nil
}

func (r *invoiceRepository) GetByID(invoiceID, landlordID string) (*domain.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		WHERE i.id = $1 AND i.landlord_id = $2
	`, invoiceColumns)

	inv, err := scanInvoice(r.db.QueryRow(query, invoiceID, landlordID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get invoice")
		return nil, err
	}

	lines, err := r.loadLines(inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines

	return inv, nil
}

// GetForUpdate locks the invoice row for the duration of the enclosing
// transaction so concurrent allocation writes serialize per invoice.
func (r *invoiceRepository) GetForUpdate(invoiceID string) (*domain.Invoice, error) {
	query := `
		SELECT id, landlord_id, tenancy_id, property_id, number,
			   issue_date, due_date, line_total, tax_total, grand_total,
			   status, created_at, updated_at
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`

	var inv domain.Invoice
	err := r.db.QueryRow(query, invoiceID).Scan(
		&inv.ID,
		&inv.LandlordID,
		&inv.TenancyID,
		&inv.PropertyID,
		&inv.Number,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.LineTotal,
		&inv.TaxTotal,
		&inv.GrandTotal,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to lock invoice")
		return nil, err
	}

	var paid decimal.Decimal
	err = r.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id = $1
	`, invoiceID).Scan(&paid)
	if err != nil {
		return nil, err
	}
	inv.PaidAmount = paid
	inv.Balance = inv.GrandTotal.Sub(paid)

	return &inv, nil
}

func (r *invoiceRepository) List(landlordID string) ([]domain.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		WHERE i.landlord_id = $1
		ORDER BY i.issue_date DESC, i.created_at DESC
	`, invoiceColumns)

	return r.queryInvoices(query, landlordID)
}

// ListOpenByTenancy returns non-void, not fully paid invoices ordered
// oldest-due-first; equal due dates break by creation time, then id, so
// auto-allocation order is deterministic.
func (r *invoiceRepository) ListOpenByTenancy(tenancyID string) ([]domain.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		WHERE i.tenancy_id = $1
		  AND i.status NOT IN ('VOID', 'PAID')
		ORDER BY i.due_date ASC, i.created_at ASC, i.id ASC
	`, invoiceColumns)

	return r.queryInvoices(query, tenancyID)
}

// UpdateStatus is a compare-and-set: the write only lands when the stored
// status still matches. Returns false when nothing changed.
func (r *invoiceRepository) UpdateStatus(invoiceID string, from, to domain.InvoiceStatus) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE invoices SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, invoiceID, from)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to update invoice status")
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FindCandidates searches open invoices whose grand total is within the
// amount tolerance and whose due date falls inside the window. Ordering is
// left to the matcher, which re-sorts by confidence.
func (r *invoiceRepository) FindCandidates(landlordID string, amount, tolerance decimal.Decimal, from, to time.Time) ([]domain.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		WHERE i.landlord_id = $1
		  AND i.status IN ('ISSUED', 'PART_PAID')
		  AND i.due_date >= $2 AND i.due_date <= $3
		  AND ABS(i.grand_total - $4) <= $5
	`, invoiceColumns)

	return r.queryInvoices(query, landlordID, from, to, amount, tolerance)
}

func (r *invoiceRepository) queryInvoices(query string, args ...interface{}) ([]domain.Invoice, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query invoices")
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan invoice")
			continue
		}
		invoices = append(invoices, *inv)
	}

	return invoices, rows.Err()
}

func (r *invoiceRepository) loadLines(invoiceID string) ([]domain.InvoiceLine, error) {
	rows, err := r.db.Query(`
		SELECT id, invoice_id, description, quantity, unit_price, tax_rate
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query invoice lines")
		return nil, err
	}
	defer rows.Close()

	var lines []domain.InvoiceLine
	for rows.Next() {
		var l domain.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.Quantity, &l.UnitPrice, &l.TaxRate); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan invoice line")
			continue
		}
		lines = append(lines, l)
	}

	return lines, rows.Err()
}
