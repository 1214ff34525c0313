package repository

import (
	"database/sql"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

// TenancyRepository exposes the read the billing core needs: ownership
// checks. Tenancy CRUD lives in a different part of the system.
type TenancyRepository interface {
	GetByID(tenancyID string) (*domain.Tenancy, error)
}

type tenancyRepository struct {
	db DBTX
}

func NewTenancyRepository(db DBTX) TenancyRepository {
	return &tenancyRepository{db: db}
}

func (r *tenancyRepository) GetByID(tenancyID string) (*domain.Tenancy, error) {
	var t domain.Tenancy
	err := r.db.QueryRow(`
		SELECT id, landlord_id, property_id, tenant_id
		FROM tenancies
		WHERE id = $1
	`, tenancyID).Scan(&t.ID, &t.LandlordID, &t.PropertyID, &t.TenantID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get tenancy")
		return nil, err
	}

	return &t, nil
}
