package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type MandateRepository interface {
	WithTx(tx *sql.Tx) MandateRepository
	Create(mandate *domain.Mandate) error
	GetByID(mandateID, landlordID string) (*domain.Mandate, error)
	GetByProviderRef(providerRef string) (*domain.Mandate, error)
	UpdateStatus(mandateID string, from, to domain.MandateStatus, activatedAt *time.Time) (bool, error)
}

type mandateRepository struct {
	db DBTX
}

func NewMandateRepository(db DBTX) MandateRepository {
	return &mandateRepository{db: db}
}

func (r *mandateRepository) WithTx(tx *sql.Tx) MandateRepository {
	return &mandateRepository{db: tx}
}

func (r *mandateRepository) Create(mandate *domain.Mandate) error {
	if mandate.ID == "" {
		mandate.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO mandates (id, landlord_id, tenant_id, provider, provider_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`,
		mandate.ID,
		mandate.LandlordID,
		mandate.TenantID,
		mandate.Provider,
		mandate.ProviderRef,
		mandate.Status,
	).Scan(&mandate.CreatedAt, &mandate.UpdatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create mandate")
		return err
	}

	return nil
}

const mandateColumns = `
	id, landlord_id, tenant_id, provider, provider_ref, status,
	activated_at, created_at, updated_at
`

func scanMandate(row interface{ Scan(...interface{}) error }) (*domain.Mandate, error) {
	var m domain.Mandate
	err := row.Scan(
		&m.ID,
		&m.LandlordID,
		&m.TenantID,
		&m.Provider,
		&m.ProviderRef,
		&m.Status,
		&m.ActivatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mandateRepository) GetByID(mandateID, landlordID string) (*domain.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE id = $1 AND landlord_id = $2`

	m, err := scanMandate(r.db.QueryRow(query, mandateID, landlordID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get mandate")
		return nil, err
	}
	return m, nil
}

func (r *mandateRepository) GetByProviderRef(providerRef string) (*domain.Mandate, error) {
	query := `SELECT ` + mandateColumns + ` FROM mandates WHERE provider_ref = $1`

	m, err := scanMandate(r.db.QueryRow(query, providerRef))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get mandate by provider ref")
		return nil, err
	}
	return m, nil
}

// UpdateStatus is a compare-and-set; activatedAt is stamped only when
// supplied (the transition to ACTIVE).
func (r *mandateRepository) UpdateStatus(mandateID string, from, to domain.MandateStatus, activatedAt *time.Time) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE mandates
		SET status = $1, activated_at = COALESCE($2, activated_at), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, activatedAt, mandateID, from)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to update mandate status")
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
