package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// LedgerRepository is the append-only conversation log. The partial unique
// index on external_message_id makes Append the idempotency boundary for
// redelivered webhooks: insert-then-check-rows rather than check-then-insert.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes one ledger row. Returns ErrDuplicateMessage when externalID
// was recorded before; rows are never updated after the fact.
func (r *LedgerRepository) Append(ctx context.Context, leaseID int, direction, body, externalID, intent string) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO conversation_messages (lease_id, direction, body, external_message_id, intent_classification)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (external_message_id) WHERE external_message_id IS NOT NULL AND external_message_id <> ''
		DO NOTHING
	`, leaseID, direction, body, externalID, intent)
	if err != nil {
		return fmt.Errorf("append conversation message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrDuplicateMessage
	}
	return nil
}

// Recent returns the newest ledger rows for a lease, newest first.
func (r *LedgerRepository) Recent(ctx context.Context, leaseID, limit int) ([]entities.ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, lease_id, direction, body,
		       COALESCE(external_message_id, ''), COALESCE(intent_classification, ''), created_at
		FROM conversation_messages
		WHERE lease_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, leaseID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	messages := []entities.ConversationMessage{}
	for rows.Next() {
		var m entities.ConversationMessage
		if err := rows.Scan(&m.ID, &m.LeaseID, &m.Direction, &m.Body, &m.ExternalMessageID, &m.Intent, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
