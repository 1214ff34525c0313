package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type PaymentRepository interface {
	WithTx(tx *sql.Tx) PaymentRepository
	Create(payment *domain.Payment) error
	GetByID(paymentID, landlordID string) (*domain.Payment, error)
	GetForUpdate(paymentID string) (*domain.Payment, error)
	GetByProviderRef(providerRef string) (*domain.Payment, error)
	ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error)
	UpdateStatus(paymentID string, from, to domain.PaymentStatus) (bool, error)
}

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *sql.Tx) PaymentRepository {
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) Create(payment *domain.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payments (
			id, landlord_id, tenancy_id, invoice_id, amount, fee, fee_vat,
			method, provider, provider_ref, status, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		query,
		payment.ID,
		payment.LandlordID,
		payment.TenancyID,
		payment.InvoiceID,
		payment.Amount,
		payment.Fee,
		payment.FeeVAT,
		payment.Method,
		payment.Provider,
		payment.ProviderRef,
		payment.Status,
		payment.ReceivedAt,
	).Scan(&payment.CreatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create payment")
		return err
	}

	return nil
}

const paymentColumns = `
	id, landlord_id, tenancy_id, invoice_id, amount, fee, fee_vat,
	method, provider, provider_ref, status, received_at, created_at
`

func scanPayment(row interface{ Scan(...interface{}) error }) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.LandlordID,
		&p.TenancyID,
		&p.InvoiceID,
		&p.Amount,
		&p.Fee,
		&p.FeeVAT,
		&p.Method,
		&p.Provider,
		&p.ProviderRef,
		&p.Status,
		&p.ReceivedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetByID(paymentID, landlordID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND landlord_id = $2`

	p, err := scanPayment(r.db.QueryRow(query, paymentID, landlordID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get payment")
		return nil, err
	}
	return p, nil
}

// GetForUpdate locks the payment row for the caller's transaction. Anyone
// summing a payment's allocations before writing new ones must hold this
// lock. Landlord scoping is the caller's job.
func (r *paymentRepository) GetForUpdate(paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

	p, err := scanPayment(r.db.QueryRow(query, paymentID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to lock payment")
		return nil, err
	}
	return p, nil
}

// GetByProviderRef is the idempotency lookup: the provider reference is
// globally unique across landlords.
func (r *paymentRepository) GetByProviderRef(providerRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_ref = $1`

	p, err := scanPayment(r.db.QueryRow(query, providerRef))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get payment by provider ref")
		return nil, err
	}
	return p, nil
}

// ListByInvoice returns every payment touching an invoice, whether recorded
// against it directly or allocated to it later.
func (r *paymentRepository) ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error) {
	query := `
		SELECT DISTINCT p.id, p.landlord_id, p.tenancy_id, p.invoice_id, p.amount,
			p.fee, p.fee_vat, p.method, p.provider, p.provider_ref, p.status,
			p.received_at, p.created_at
		FROM payments p
		LEFT JOIN payment_allocations a ON a.payment_id = p.id
		WHERE p.landlord_id = $2 AND (p.invoice_id = $1 OR a.invoice_id = $1)
		ORDER BY p.received_at, p.id
	`

	rows, err := r.db.Query(query, invoiceID, landlordID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query payments by invoice")
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan payment")
			continue
		}
		payments = append(payments, *p)
	}

	return payments, rows.Err()
}

// UpdateStatus is a compare-and-set so webhook replays converge instead of
// oscillating. Returns false when the stored status no longer matches.
func (r *paymentRepository) UpdateStatus(paymentID string, from, to domain.PaymentStatus) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE payments SET status = $1 WHERE id = $2 AND status = $3
	`, to, paymentID, from)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to update payment status")
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
