package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaseline/internal/entities"
)

// ContextRepository persists the per-lease rolling conversation context.
// Nothing holds these across requests: every exchange reads, folds, and
// writes back.
type ContextRepository struct {
	db *pgxpool.Pool
}

func NewContextRepository(db *pgxpool.Pool) *ContextRepository {
	return &ContextRepository{db: db}
}

// Get returns the lease's context, or an empty one when no row exists yet.
func (r *ContextRepository) Get(ctx context.Context, leaseID int) (entities.ConversationContext, error) {
	var (
		cc      entities.ConversationContext
		threads []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT lease_id, summary, open_threads, updated_at
		FROM conversation_contexts
		WHERE lease_id = $1
	`, leaseID).Scan(&cc.LeaseID, &cc.Summary, &threads, &cc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.ConversationContext{LeaseID: leaseID, OpenThreads: map[string]entities.ThreadState{}}, nil
		}
		return entities.ConversationContext{}, fmt.Errorf("get conversation context: %w", err)
	}

	cc.OpenThreads = map[string]entities.ThreadState{}
	if len(threads) > 0 {
		if err := json.Unmarshal(threads, &cc.OpenThreads); err != nil {
			return entities.ConversationContext{}, fmt.Errorf("decode open threads: %w", err)
		}
	}
	return cc, nil
}

// Save upserts the lease's context row.
func (r *ContextRepository) Save(ctx context.Context, cc entities.ConversationContext) error {
	threads := cc.OpenThreads
	if threads == nil {
		threads = map[string]entities.ThreadState{}
	}
	encoded, err := json.Marshal(threads)
	if err != nil {
		return fmt.Errorf("encode open threads: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO conversation_contexts (lease_id, summary, open_threads, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (lease_id) DO UPDATE
		SET summary = EXCLUDED.summary, open_threads = EXCLUDED.open_threads, updated_at = NOW()
	`, cc.LeaseID, cc.Summary, encoded)
	if err != nil {
		return fmt.Errorf("save conversation context: %w", err)
	}
	return nil
}
