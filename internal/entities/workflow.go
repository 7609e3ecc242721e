package entities

import "time"

// WorkflowState is the single source of truth for routing a maintenance
// request. Transitions only move forward along the happy path; DENIED and an
// unanswered QUESTION are parked branches that need new owner input.
type WorkflowState string

const (
	StateSubmitted      WorkflowState = "SUBMITTED"
	StateOwnerNotified  WorkflowState = "OWNER_NOTIFIED"
	StateApproved       WorkflowState = "APPROVED"
	StateDenied         WorkflowState = "DENIED"
	StateQuestion       WorkflowState = "QUESTION"
	StateETAConfirmed   WorkflowState = "ETA_CONFIRMED"
	StateTenantNotified WorkflowState = "TENANT_NOTIFIED"
	StateInProgress     WorkflowState = "IN_PROGRESS"
	StateCompleted      WorkflowState = "COMPLETED"
)

// legalTransitions is the full transition graph. Vendor responses may confirm
// an ETA straight from OWNER_NOTIFIED (owner approved out-of-band) or from
// APPROVED. A QUESTION is resolved by a later owner decision.
var legalTransitions = map[WorkflowState][]WorkflowState{
	StateSubmitted:      {StateOwnerNotified},
	StateOwnerNotified:  {StateApproved, StateDenied, StateQuestion, StateETAConfirmed},
	StateApproved:       {StateETAConfirmed},
	StateQuestion:       {StateApproved, StateDenied},
	StateETAConfirmed:   {StateTenantNotified},
	StateTenantNotified: {StateInProgress},
	StateInProgress:     {StateCompleted},
}

// CanTransition reports whether from → to is a legal workflow transition.
func CanTransition(from, to WorkflowState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition can leave the state.
func (s WorkflowState) IsTerminal() bool {
	return s == StateDenied || s == StateCompleted
}

// MaintenanceRequest is the tenant-reported issue a workflow tracks.
type MaintenanceRequest struct {
	ID          string    `json:"id"`
	LeaseID     int       `json:"lease_id"`
	Description string    `json:"description"`
	Urgency     string    `json:"urgency"` // "low", "normal", "emergency"
	Status      string    `json:"status"`  // "open", "scheduled", "closed"
	CreatedAt   time.Time `json:"created_at"`
}

// MaintenanceWorkflow is one request's lifecycle instance. Exactly one
// workflow exists per maintenance request; reopening an issue creates a new
// request and workflow rather than rewinding this one.
type MaintenanceWorkflow struct {
	ID                   string        `json:"id"`
	MaintenanceRequestID string        `json:"maintenance_request_id"`
	CurrentState         WorkflowState `json:"current_state"`
	VendorETA            *time.Time    `json:"vendor_eta,omitempty"`
	VendorNotes          string        `json:"vendor_notes,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Sender types on workflow communications.
const (
	SenderTenant   = "tenant"
	SenderSystem   = "system"
	SenderVendor   = "vendor"
	SenderLandlord = "landlord"
)

// Metadata discriminants.
const (
	MetaStateChange = "state_change"
	MetaVendorETA   = "vendor_eta"
	MetaEscalation  = "escalation"
	MetaNote        = "note"
)

// StateChangeMeta records the transition a communication describes.
type StateChangeMeta struct {
	From WorkflowState `json:"from"`
	To   WorkflowState `json:"to"`
}

// VendorETAMeta carries the scheduling details a vendor reported.
type VendorETAMeta struct {
	ETA   time.Time `json:"eta"`
	Notes string    `json:"notes,omitempty"`
}

// EscalationMeta records why a landlord alert was raised.
type EscalationMeta struct {
	Reason  string `json:"reason"`
	Urgency string `json:"urgency,omitempty"`
}

// CommunicationMeta is the tagged union stored on workflow communications.
// Type selects which payload pointer is set; readers switch on Type instead
// of probing an open map.
type CommunicationMeta struct {
	Type        string           `json:"type"`
	StateChange *StateChangeMeta `json:"state_change,omitempty"`
	VendorETA   *VendorETAMeta   `json:"vendor_eta,omitempty"`
	Escalation  *EscalationMeta  `json:"escalation,omitempty"`
}

// WorkflowCommunication is one append-only audit row on a workflow, ordered
// by CreatedAt. Rows are never updated; corrections are new rows.
type WorkflowCommunication struct {
	ID         int               `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	SenderType string            `json:"sender_type"`
	SenderName string            `json:"sender_name"`
	Message    string            `json:"message"`
	Metadata   CommunicationMeta `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
