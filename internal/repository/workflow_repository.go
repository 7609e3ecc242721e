package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// WorkflowRepository persists maintenance requests, workflow instances, and
// the append-only communication log. Every state mutation is a conditional
// UPDATE guarded on the expected current state, which serializes concurrent
// writers per workflow row without any process-level lock.
type WorkflowRepository struct {
	db *pgxpool.Pool
}

func NewWorkflowRepository(db *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) CreateRequest(ctx context.Context, req entities.MaintenanceRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO maintenance_requests (id, lease_id, description, urgency, status)
		VALUES ($1, $2, $3, $4, $5)
	`, req.ID, req.LeaseID, req.Description, req.Urgency, req.Status)
	if err != nil {
		return fmt.Errorf("create maintenance request: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, wf entities.MaintenanceWorkflow) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO maintenance_workflows (id, maintenance_request_id, current_state)
		VALUES ($1, $2, $3)
	`, wf.ID, wf.MaintenanceRequestID, wf.CurrentState)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id string) (entities.MaintenanceWorkflow, error) {
	var wf entities.MaintenanceWorkflow
	err := r.db.QueryRow(ctx, `
		SELECT id, maintenance_request_id, current_state, vendor_eta, vendor_notes, created_at, updated_at
		FROM maintenance_workflows
		WHERE id = $1
	`, id).Scan(&wf.ID, &wf.MaintenanceRequestID, &wf.CurrentState, &wf.VendorETA, &wf.VendorNotes, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.MaintenanceWorkflow{}, interfaces.ErrWorkflowNotFound
		}
		return entities.MaintenanceWorkflow{}, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return wf, nil
}

func (r *WorkflowRepository) GetRequest(ctx context.Context, id string) (entities.MaintenanceRequest, error) {
	var req entities.MaintenanceRequest
	err := r.db.QueryRow(ctx, `
		SELECT id, lease_id, description, urgency, status, created_at
		FROM maintenance_requests
		WHERE id = $1
	`, id).Scan(&req.ID, &req.LeaseID, &req.Description, &req.Urgency, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.MaintenanceRequest{}, interfaces.ErrWorkflowNotFound
		}
		return entities.MaintenanceRequest{}, fmt.Errorf("get maintenance request %s: %w", id, err)
	}
	return req, nil
}

// ActiveWorkflowForLease returns the lease's newest workflow that is still on
// the happy path (not DENIED or COMPLETED).
func (r *WorkflowRepository) ActiveWorkflowForLease(ctx context.Context, leaseID int) (entities.MaintenanceWorkflow, error) {
	var wf entities.MaintenanceWorkflow
	err := r.db.QueryRow(ctx, `
		SELECT w.id, w.maintenance_request_id, w.current_state, w.vendor_eta, w.vendor_notes, w.created_at, w.updated_at
		FROM maintenance_workflows w
		JOIN maintenance_requests q ON q.id = w.maintenance_request_id
		WHERE q.lease_id = $1 AND w.current_state NOT IN ($2, $3)
		ORDER BY w.created_at DESC
		LIMIT 1
	`, leaseID, entities.StateDenied, entities.StateCompleted).
		Scan(&wf.ID, &wf.MaintenanceRequestID, &wf.CurrentState, &wf.VendorETA, &wf.VendorNotes, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.MaintenanceWorkflow{}, interfaces.ErrWorkflowNotFound
		}
		return entities.MaintenanceWorkflow{}, fmt.Errorf("active workflow for lease %d: %w", leaseID, err)
	}
	return wf, nil
}

// Transition moves current_state from → to. The WHERE clause on the expected
// state is the single-writer discipline: a racing writer sees zero rows.
func (r *WorkflowRepository) Transition(ctx context.Context, id string, from, to entities.WorkflowState) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE maintenance_workflows
		SET current_state = $3, updated_at = NOW()
		WHERE id = $1 AND current_state = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("transition workflow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrStateConflict
	}
	return nil
}

// ConfirmETA records the vendor's ETA and notes atomically with the move to
// ETA_CONFIRMED.
func (r *WorkflowRepository) ConfirmETA(ctx context.Context, id string, from entities.WorkflowState, eta time.Time, notes string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE maintenance_workflows
		SET current_state = $3, vendor_eta = $4, vendor_notes = $5, updated_at = NOW()
		WHERE id = $1 AND current_state = $2
	`, id, from, entities.StateETAConfirmed, eta, notes)
	if err != nil {
		return fmt.Errorf("confirm eta for workflow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrStateConflict
	}
	return nil
}

func (r *WorkflowRepository) MarkRequestScheduled(ctx context.Context, requestID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE maintenance_requests SET status = 'scheduled' WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("mark request %s scheduled: %w", requestID, err)
	}
	return nil
}

func (r *WorkflowRepository) CloseRequest(ctx context.Context, requestID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE maintenance_requests SET status = 'closed' WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("close request %s: %w", requestID, err)
	}
	return nil
}

func (r *WorkflowRepository) AppendCommunication(ctx context.Context, comm entities.WorkflowCommunication) error {
	meta, err := json.Marshal(comm.Metadata)
	if err != nil {
		return fmt.Errorf("encode communication metadata: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_communications (workflow_id, sender_type, sender_name, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, comm.WorkflowID, comm.SenderType, comm.SenderName, comm.Message, meta)
	if err != nil {
		return fmt.Errorf("append workflow communication: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) Communications(ctx context.Context, workflowID string) ([]entities.WorkflowCommunication, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, sender_type, sender_name, message, metadata, created_at
		FROM workflow_communications
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow communications: %w", err)
	}
	defer rows.Close()

	comms := []entities.WorkflowCommunication{}
	for rows.Next() {
		var (
			c    entities.WorkflowCommunication
			meta []byte
		)
		if err := rows.Scan(&c.ID, &c.WorkflowID, &c.SenderType, &c.SenderName, &c.Message, &meta, &c.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode communication metadata: %w", err)
			}
		}
		comms = append(comms, c)
	}
	return comms, rows.Err()
}
