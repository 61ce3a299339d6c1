package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// OutboundMessageRepository handles database operations for the durable
// notification queue. Callers only append; the queue processor owns all
// mutation, and the cleanup sweep owns deletion.
type OutboundMessageRepository struct {
	db *sqlx.DB
}

// NewOutboundMessageRepository creates a new OutboundMessageRepository
func NewOutboundMessageRepository(db *sqlx.DB) *OutboundMessageRepository {
	return &OutboundMessageRepository{db: db}
}

// Create enqueues a new message in PENDING state
func (r *OutboundMessageRepository) Create(msg *models.OutboundMessage) error {
	query := `
		INSERT INTO outbound_messages (
			id, channel, recipient, payload, status, attempts
		) VALUES (
			$1, $2, $3, $4, $5, 0
		)
		RETURNING created_at
	`

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Status = models.MessagePending

	err := r.db.QueryRow(
		query,
		msg.ID, msg.Channel, msg.Recipient, msg.Payload, msg.Status,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	return nil
}

// GetPendingBatch retrieves the next batch of deliverable messages:
// PENDING with attempts still under the cap, oldest first.
func (r *OutboundMessageRepository) GetPendingBatch(batchSize, maxAttempts int) ([]models.OutboundMessage, error) {
	query := `
		SELECT id, channel, recipient, payload, status, attempts, error, created_at, sent_at
		FROM outbound_messages
		WHERE status = 'pending'
		  AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Query(query, batchSize, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.OutboundMessage{}
	for rows.Next() {
		var msg models.OutboundMessage
		var errText sql.NullString
		var sentAt sql.NullTime

		if err := rows.Scan(
			&msg.ID, &msg.Channel, &msg.Recipient, &msg.Payload, &msg.Status,
			&msg.Attempts, &errText, &msg.CreatedAt, &sentAt,
		); err != nil {
			return nil, err
		}

		if errText.Valid {
			msg.Error = &errText.String
		}
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkSent marks a message delivered
func (r *OutboundMessageRepository) MarkSent(messageID string) error {
	query := `
		UPDATE outbound_messages
		SET status = 'sent', sent_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(query, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	return nil
}

// RecordFailure stores a delivery failure: the new attempt count, the
// transport error verbatim, and the resulting status. The queue
// processor decides whether the message stays PENDING or flips to
// FAILED; this write just persists that decision.
func (r *OutboundMessageRepository) RecordFailure(messageID string, attempts int, errText string, status models.MessageStatus) error {
	query := `
		UPDATE outbound_messages
		SET attempts = $2,
			error = $3,
			status = $4
		WHERE id = $1
	`

	_, err := r.db.Exec(query, messageID, attempts, errText, status)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

// DeleteTerminalBefore removes SENT and FAILED messages created before
// the cutoff. Returns the number of rows removed.
func (r *OutboundMessageRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM outbound_messages
		WHERE status IN ('sent', 'failed')
		  AND created_at < $1
	`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up messages: %w", err)
	}

	return result.RowsAffected()
}
