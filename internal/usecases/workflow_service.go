package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// ETADisplayFormat is how vendor ETAs read in tenant-facing text and in the
// vendor endpoint's response.
const ETADisplayFormat = "Mon Jan 2, 3:04 PM"

// WorkflowService drives the maintenance state machine. Every transition is
// one state-guarded update followed by communication rows describing it, so
// partial progress after a mid-sequence failure is still valid, auditable
// state. Nothing ever moves a workflow backward; reopening an issue means a
// new request and a new workflow.
type WorkflowService struct {
	store    interfaces.WorkflowStore
	leases   interfaces.LeaseResolver
	notifier interfaces.NotificationSender
}

func NewWorkflowService(store interfaces.WorkflowStore, leases interfaces.LeaseResolver, notifier interfaces.NotificationSender) *WorkflowService {
	return &WorkflowService{store: store, leases: leases, notifier: notifier}
}

// CreateRequest opens a maintenance request with its workflow, records the
// tenant's report, and advances to OWNER_NOTIFIED. The landlord alert itself
// is the caller's fan-out (the agent loop reports it as high severity).
func (s *WorkflowService) CreateRequest(ctx context.Context, lease entities.LeaseContext, description, urgency string) (entities.MaintenanceWorkflow, error) {
	if urgency == "" {
		urgency = "normal"
	}

	req := entities.MaintenanceRequest{
		ID:          uuid.NewString(),
		LeaseID:     lease.LeaseID,
		Description: description,
		Urgency:     urgency,
		Status:      "open",
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return entities.MaintenanceWorkflow{}, err
	}

	wf := entities.MaintenanceWorkflow{
		ID:                   uuid.NewString(),
		MaintenanceRequestID: req.ID,
		CurrentState:         entities.StateSubmitted,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return entities.MaintenanceWorkflow{}, err
	}

	s.appendComm(ctx, wf.ID, entities.SenderTenant, lease.Tenant.Name,
		fmt.Sprintf("Reported: %s (urgency: %s)", description, urgency),
		entities.CommunicationMeta{Type: entities.MetaNote})

	if err := s.transition(ctx, &wf, entities.StateOwnerNotified,
		fmt.Sprintf("Owner %s notified of new %s-urgency request at %s.",
			lease.Landlord.Name, urgency, lease.Unit.StreetAddress)); err != nil {
		return wf, err
	}
	return wf, nil
}

// RecordOwnerDecision applies the owner's approve/deny/question answer.
// Legal from OWNER_NOTIFIED, and from QUESTION once the owner follows up.
func (s *WorkflowService) RecordOwnerDecision(ctx context.Context, workflowID, decision, note string) (entities.MaintenanceWorkflow, error) {
	var target entities.WorkflowState
	switch decision {
	case "approved":
		target = entities.StateApproved
	case "denied":
		target = entities.StateDenied
	case "question":
		target = entities.StateQuestion
	default:
		return entities.MaintenanceWorkflow{}, fmt.Errorf("unknown owner decision %q", decision)
	}

	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return entities.MaintenanceWorkflow{}, err
	}
	if !entities.CanTransition(wf.CurrentState, target) {
		return wf, interfaces.ErrStateConflict
	}

	from := wf.CurrentState
	if err := s.store.Transition(ctx, wf.ID, from, target); err != nil {
		return wf, err
	}
	wf.CurrentState = target

	msg := fmt.Sprintf("Owner decision: %s.", decision)
	if note != "" {
		msg = fmt.Sprintf("Owner decision: %s — %s", decision, note)
	}
	s.appendComm(ctx, wf.ID, entities.SenderLandlord, "owner", msg,
		entities.CommunicationMeta{
			Type:        entities.MetaStateChange,
			StateChange: &entities.StateChangeMeta{From: from, To: target},
		})
	return wf, nil
}

// SubmitVendorResponse runs the fixed vendor chain: ETA recorded →
// ETA_CONFIRMED, tenant notice → TENANT_NOTIFIED, request scheduled →
// IN_PROGRESS. The lookup happens first so an unknown workflow fails clean;
// a datastore failure later in the chain leaves the committed sub-steps
// standing and surfaces as a transition failure.
func (s *WorkflowService) SubmitVendorResponse(ctx context.Context, workflowID string, eta time.Time, notes string) (entities.MaintenanceWorkflow, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return entities.MaintenanceWorkflow{}, err
	}
	if !entities.CanTransition(wf.CurrentState, entities.StateETAConfirmed) {
		return wf, interfaces.ErrStateConflict
	}

	if err := s.store.ConfirmETA(ctx, wf.ID, wf.CurrentState, eta, notes); err != nil {
		return wf, err
	}
	wf.CurrentState = entities.StateETAConfirmed
	wf.VendorETA = &eta
	wf.VendorNotes = notes

	vendorMsg := fmt.Sprintf("Vendor confirmed arrival %s.", eta.Format(ETADisplayFormat))
	if notes != "" {
		vendorMsg += " Notes: " + notes
	}
	s.appendComm(ctx, wf.ID, entities.SenderVendor, "vendor", vendorMsg,
		entities.CommunicationMeta{
			Type:      entities.MetaVendorETA,
			VendorETA: &entities.VendorETAMeta{ETA: eta, Notes: notes},
		})

	tenantText := fmt.Sprintf("Good news — a service vendor is scheduled for %s.", eta.Format(ETADisplayFormat))
	if notes != "" {
		tenantText += " Vendor notes: " + notes
	}
	if err := s.transition(ctx, &wf, entities.StateTenantNotified, "Tenant notified of the scheduled visit."); err != nil {
		return wf, err
	}
	s.notifyTenant(ctx, wf.MaintenanceRequestID, tenantText)

	if err := s.store.MarkRequestScheduled(ctx, wf.MaintenanceRequestID); err != nil {
		return wf, err
	}
	if err := s.transition(ctx, &wf, entities.StateInProgress, "Maintenance request scheduled; work underway."); err != nil {
		return wf, err
	}
	return wf, nil
}

// MarkCompleted closes out a workflow whose work has finished.
func (s *WorkflowService) MarkCompleted(ctx context.Context, workflowID string) (entities.MaintenanceWorkflow, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return entities.MaintenanceWorkflow{}, err
	}
	if !entities.CanTransition(wf.CurrentState, entities.StateCompleted) {
		return wf, interfaces.ErrStateConflict
	}

	if err := s.transition(ctx, &wf, entities.StateCompleted, "Work completed; request closed."); err != nil {
		return wf, err
	}
	if err := s.store.CloseRequest(ctx, wf.MaintenanceRequestID); err != nil {
		return wf, err
	}
	return wf, nil
}

// RequestForWorkflow loads the maintenance request a workflow tracks.
func (s *WorkflowService) RequestForWorkflow(ctx context.Context, workflowID string) (entities.MaintenanceRequest, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return entities.MaintenanceRequest{}, err
	}
	return s.store.GetRequest(ctx, wf.MaintenanceRequestID)
}

// ActiveForLease returns the lease's current in-flight workflow.
func (s *WorkflowService) ActiveForLease(ctx context.Context, leaseID int) (entities.MaintenanceWorkflow, error) {
	return s.store.ActiveWorkflowForLease(ctx, leaseID)
}

// Detail returns a workflow with its full communication log, for the ops API.
func (s *WorkflowService) Detail(ctx context.Context, workflowID string) (entities.MaintenanceWorkflow, []entities.WorkflowCommunication, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return entities.MaintenanceWorkflow{}, nil, err
	}
	comms, err := s.store.Communications(ctx, workflowID)
	if err != nil {
		return wf, nil, err
	}
	return wf, comms, nil
}

// AppendNote records a free-form communication row on a workflow.
func (s *WorkflowService) AppendNote(ctx context.Context, workflowID, senderType, senderName, message string) error {
	return s.store.AppendCommunication(ctx, entities.WorkflowCommunication{
		WorkflowID: workflowID,
		SenderType: senderType,
		SenderName: senderName,
		Message:    message,
		Metadata:   entities.CommunicationMeta{Type: entities.MetaNote},
	})
}

// transition performs one guarded forward move and writes its state-change
// communication.
func (s *WorkflowService) transition(ctx context.Context, wf *entities.MaintenanceWorkflow, to entities.WorkflowState, message string) error {
	from := wf.CurrentState
	if err := s.store.Transition(ctx, wf.ID, from, to); err != nil {
		return err
	}
	wf.CurrentState = to
	s.appendComm(ctx, wf.ID, entities.SenderSystem, "system", message,
		entities.CommunicationMeta{
			Type:        entities.MetaStateChange,
			StateChange: &entities.StateChangeMeta{From: from, To: to},
		})
	return nil
}

// appendComm writes an audit row; a failed insert is logged, not fatal — the
// state transition it describes already committed.
func (s *WorkflowService) appendComm(ctx context.Context, workflowID, senderType, senderName, message string, meta entities.CommunicationMeta) {
	err := s.store.AppendCommunication(ctx, entities.WorkflowCommunication{
		WorkflowID: workflowID,
		SenderType: senderType,
		SenderName: senderName,
		Message:    message,
		Metadata:   meta,
	})
	if err != nil {
		slog.Error("workflow communication write failed", "workflow", workflowID, "error", err)
	}
}

// notifyTenant sends the scheduled-visit text; delivery failure is logged and
// the chain continues — the workflow state already reflects the notice.
func (s *WorkflowService) notifyTenant(ctx context.Context, requestID, body string) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		slog.Error("tenant notify skipped, request lookup failed", "request", requestID, "error", err)
		return
	}
	lease, err := s.leases.ByLeaseID(ctx, req.LeaseID)
	if err != nil {
		slog.Error("tenant notify skipped, lease lookup failed", "lease", req.LeaseID, "error", err)
		return
	}
	if err := s.notifier.NotifyTenant(ctx, lease, body); err != nil {
		slog.Error("tenant notify failed", "lease", req.LeaseID, "error", err)
	}
}
