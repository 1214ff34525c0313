package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type LedgerRepository interface {
	WithTx(tx *sql.Tx) LedgerRepository
	Append(entry *domain.LedgerEntry) error
	ListByLandlord(landlordID string) ([]domain.LedgerEntry, error)
}

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *sql.Tx) LedgerRepository {
	return &ledgerRepository{db: tx}
}

// Append inserts an entry. There is no update path; the ledger is
// append-only.
func (r *ledgerRepository) Append(entry *domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO ledger_entries (
			id, landlord_id, account_id, direction, amount,
			ref_type, ref_id, memo, event_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING booked_at
	`,
		entry.ID,
		entry.LandlordID,
		entry.AccountID,
		entry.Direction,
		entry.Amount,
		entry.RefType,
		entry.RefID,
		entry.Memo,
		entry.EventAt,
	).Scan(&entry.BookedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to append ledger entry")
		return err
	}

	return nil
}

func (r *ledgerRepository) ListByLandlord(landlordID string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, landlord_id, account_id, direction, amount,
			   ref_type, ref_id, memo, event_at, booked_at
		FROM ledger_entries
		WHERE landlord_id = $1
		ORDER BY booked_at DESC
	`, landlordID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query ledger entries")
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.LandlordID,
			&e.AccountID,
			&e.Direction,
			&e.Amount,
			&e.RefType,
			&e.RefID,
			&e.Memo,
			&e.EventAt,
			&e.BookedAt,
		)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan ledger entry")
			continue
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
