package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/database"
	"github.com/whisperline/whisperline-backend/internal/models"
)

// PostgresQueueStore implements QueueStore on the queued_messages table.
type PostgresQueueStore struct{}

func NewPostgresQueueStore() *PostgresQueueStore {
	return &PostgresQueueStore{}
}

func (s *PostgresQueueStore) Enqueue(ctx context.Context, conversationID, recipientID uuid.UUID, payload []byte) error {
	_, err := database.PostgresDB.ExecContext(ctx, `
		INSERT INTO queued_messages (conversation_id, recipient_id, payload)
		VALUES ($1, $2, $3)
	`, conversationID, recipientID, string(payload))
	return err
}

func (s *PostgresQueueStore) ListUndelivered(ctx context.Context, recipientID, conversationID uuid.UUID) ([]models.QueuedMessage, error) {
	rows, err := database.PostgresDB.QueryContext(ctx, `
		SELECT id, conversation_id, recipient_id, payload, delivered, created_at
		FROM queued_messages
		WHERE recipient_id = $1 AND conversation_id = $2 AND delivered = FALSE
		ORDER BY created_at ASC
	`, recipientID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueuedMessage
	for rows.Next() {
		var qm models.QueuedMessage
		var payload string
		if err := rows.Scan(&qm.ID, &qm.ConversationID, &qm.RecipientID, &payload, &qm.Delivered, &qm.CreatedAt); err != nil {
			return nil, err
		}
		qm.Payload = []byte(payload)
		out = append(out, qm)
	}
	return out, rows.Err()
}

func (s *PostgresQueueStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := database.PostgresDB.ExecContext(ctx, `
		UPDATE queued_messages SET delivered = TRUE WHERE id = $1
	`, id)
	return err
}
