package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"leaseline/internal/entities"
)

// ActionRepository stores the audit record of every agent invocation.
type ActionRepository struct {
	db *pgxpool.Pool
}

func NewActionRepository(db *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) Record(ctx context.Context, action entities.AgentAction) error {
	tools := action.ToolsCalled
	if tools == nil {
		tools = []string{}
	}
	encoded, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("encode tools_called: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO agent_actions (lease_id, category, description, tools_called, confidence_score)
		VALUES ($1, $2, $3, $4, $5)
	`, action.LeaseID, action.Category, action.Description, encoded, action.Confidence)
	if err != nil {
		return fmt.Errorf("record agent action: %w", err)
	}
	return nil
}
