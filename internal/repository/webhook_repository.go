package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

type WebhookLogRepository interface {
	WithTx(tx *sql.Tx) WebhookLogRepository
	Insert(log *domain.WebhookLog) error
	ListByProvider(provider string, limit int) ([]domain.WebhookLog, error)
}

type webhookLogRepository struct {
	db DBTX
}

func NewWebhookLogRepository(db DBTX) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

func (r *webhookLogRepository) WithTx(tx *sql.Tx) WebhookLogRepository {
	return &webhookLogRepository{db: tx}
}

// Insert appends an audit row. Callers treat failures as non-fatal; losing
// an audit row must never block financial processing.
func (r *webhookLogRepository) Insert(log *domain.WebhookLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO webhook_logs (id, provider, event_id, resource, action, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING received_at
	`, log.ID, log.Provider, log.EventID, log.Resource, log.Action, log.Payload).Scan(&log.ReceivedAt)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to insert webhook log")
		return err
	}

	return nil
}

func (r *webhookLogRepository) ListByProvider(provider string, limit int) ([]domain.WebhookLog, error) {
	rows, err := r.db.Query(`
		SELECT id, provider, event_id, resource, action, payload, received_at
		FROM webhook_logs
		WHERE provider = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, provider, limit)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query webhook logs")
		return nil, err
	}
	defer rows.Close()

	var logs []domain.WebhookLog
	for rows.Next() {
		var l domain.WebhookLog
		if err := rows.Scan(&l.ID, &l.Provider, &l.EventID, &l.Resource, &l.Action, &l.Payload, &l.ReceivedAt); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan webhook log")
			continue
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
