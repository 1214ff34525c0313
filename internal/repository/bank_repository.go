package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type BankTransactionRepository interface {
	WithTx(tx *sql.Tx) BankTransactionRepository
	Create(transaction *domain.BankTransaction) error
	BulkCreate(transactions []domain.BankTransaction) error
	GetByID(transactionID, landlordID string) (*domain.BankTransaction, error)
	ListUnmatched(landlordID string) ([]domain.BankTransaction, error)
	CreateReconciliation(rec *domain.Reconciliation) error
	ListReconciliations(transactionID string) ([]domain.Reconciliation, error)
}

type bankTransactionRepository struct {
	db DBTX
}

func NewBankTransactionRepository(db DBTX) BankTransactionRepository {
	return &bankTransactionRepository{db: db}
}

func (r *bankTransactionRepository) WithTx(tx *sql.Tx) BankTransactionRepository {
	return &bankTransactionRepository{db: tx}
}

func (r *bankTransactionRepository) Create(transaction *domain.BankTransaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO bank_transactions (id, landlord_id, amount, posted_at, description, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`,
		transaction.ID,
		transaction.LandlordID,
		transaction.Amount,
		transaction.PostedAt,
		transaction.Description,
		transaction.Source,
	).Scan(&transaction.CreatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create bank transaction")
		return err
	}

	return nil
}

// BulkCreate inserts imported rows one statement batch, skipping rows that
// fail instead of aborting the whole import.
func (r *bankTransactionRepository) BulkCreate(transactions []domain.BankTransaction) error {
	if len(transactions) == 0 {
		return nil
	}

	db, ok := r.db.(*sql.DB)
	if !ok {
		for i := range transactions {
			if err := r.Create(&transactions[i]); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to begin transaction")
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bank_transactions (id, landlord_id, amount, posted_at, description, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to prepare statement")
		return err
	}
	defer stmt.Close()

	for i := range transactions {
		t := &transactions[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		_, err = stmt.Exec(t.ID, t.LandlordID, t.Amount, t.PostedAt, t.Description, t.Source)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("transaction_id", t.ID).Error("Failed to insert bank transaction")
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to commit transaction")
		return err
	}

	return nil
}

func (r *bankTransactionRepository) GetByID(transactionID, landlordID string) (*domain.BankTransaction, error) {
	var t domain.BankTransaction
	err := r.db.QueryRow(`
		SELECT id, landlord_id, amount, posted_at, description, source, created_at
		FROM bank_transactions
		WHERE id = $1 AND landlord_id = $2
	`, transactionID, landlordID).Scan(
		&t.ID,
		&t.LandlordID,
		&t.Amount,
		&t.PostedAt,
		&t.Description,
		&t.Source,
		&t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get bank transaction")
		return nil, err
	}

	return &t, nil
}

func (r *bankTransactionRepository) ListUnmatched(landlordID string) ([]domain.BankTransaction, error) {
	rows, err := r.db.Query(`
		SELECT t.id, t.landlord_id, t.amount, t.posted_at, t.description, t.source, t.created_at
		FROM bank_transactions t
		WHERE t.landlord_id = $1
		  AND NOT EXISTS (SELECT 1 FROM reconciliations r WHERE r.bank_transaction_id = t.id)
		ORDER BY t.posted_at DESC
	`, landlordID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query unmatched transactions")
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.BankTransaction
	for rows.Next() {
		var t domain.BankTransaction
		err := rows.Scan(&t.ID, &t.LandlordID, &t.Amount, &t.PostedAt, &t.Description, &t.Source, &t.CreatedAt)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan bank transaction")
			continue
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

func (r *bankTransactionRepository) CreateReconciliation(rec *domain.Reconciliation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO reconciliations (id, bank_transaction_id, invoice_id, payment_id, match_type, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`,
		rec.ID,
		rec.BankTransactionID,
		rec.InvoiceID,
		rec.PaymentID,
		rec.MatchType,
		rec.Confidence,
	).Scan(&rec.CreatedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create reconciliation")
		return err
	}

	return nil
}

func (r *bankTransactionRepository) ListReconciliations(transactionID string) ([]domain.Reconciliation, error) {
	rows, err := r.db.Query(`
		SELECT id, bank_transaction_id, invoice_id, payment_id, match_type, confidence, created_at
		FROM reconciliations
		WHERE bank_transaction_id = $1
		ORDER BY created_at
	`, transactionID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query reconciliations")
		return nil, err
	}
	defer rows.Close()

	var recs []domain.Reconciliation
	for rows.Next() {
		var rec domain.Reconciliation
		err := rows.Scan(&rec.ID, &rec.BankTransactionID, &rec.InvoiceID, &rec.PaymentID, &rec.MatchType, &rec.Confidence, &rec.CreatedAt)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan reconciliation")
			continue
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
