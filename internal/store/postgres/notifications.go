package postgres

import (
	"context"
	"time"

	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
)

var _ store.NotificationLog = (*Store)(nil)

func (s *Store) RecordNotification(ctx context.Context, record store.NotificationRecord) error {
	if record.NotificationID == "" {
		record.NotificationID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_log (
			notification_id, customer_id, ticket_id, kind, recipient, message, provider, status, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, record.NotificationID, nullIfEmpty(record.CustomerID), nullIfEmpty(record.TicketID), record.Kind, record.Recipient,
		record.Message, record.Provider, record.Status, record.LastError, record.CreatedAt)
	return translateError(err)
}
