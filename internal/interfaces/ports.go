// Package interfaces holds the consumer-side contracts between the HTTP
// layer, the use cases, and the infrastructure clients, plus the sentinel
// errors those contracts return.
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leaseline/internal/entities"
)

var (
	// ErrLeaseNotFound means no active lease matches the sender.
	ErrLeaseNotFound = errors.New("no active lease for sender")
	// ErrWorkflowNotFound means the workflow ID does not resolve.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrStateConflict means a state-guarded update found the workflow in a
	// different state than expected (concurrent writer or illegal move).
	ErrStateConflict = errors.New("workflow state conflict")
	// ErrDuplicateMessage means the external message ID was already recorded.
	ErrDuplicateMessage = errors.New("duplicate external message id")
)

// ChatMessage is one turn sent to or received from the reasoning backend.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured request from the backend to run one tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a callable tool offered to the backend.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatResponse is the backend's reply for one request: either tool calls to
// execute or final text.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// ReasoningClient calls the external language-model backend. Retry and model
// fallback policy belongs to the implementation, never to the agent loop.
type ReasoningClient interface {
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (ChatResponse, error)
}

// Messenger sends one outbound message over the text-messaging channel.
type Messenger interface {
	SendMessage(ctx context.Context, to, body string) error
}

// AlertMessenger sends landlord alerts over a secondary channel (Telegram).
type AlertMessenger interface {
	SendAlert(ctx context.Context, chatID, body string) error
}

// LeaseResolver maps a normalized sender phone to its lease context.
// Pure read; safe to call on every inbound message.
type LeaseResolver interface {
	Resolve(ctx context.Context, phone string) (entities.LeaseContext, error)
	// ByLeaseID loads the same snapshot by lease ID, for flows that start
	// from a workflow rather than an inbound message.
	ByLeaseID(ctx context.Context, leaseID int) (entities.LeaseContext, error)
}

// Ledger is the append-only conversation log and the dedup boundary:
// Append returns ErrDuplicateMessage when externalID was seen before.
type Ledger interface {
	Append(ctx context.Context, leaseID int, direction, body, externalID, intent string) error
	Recent(ctx context.Context, leaseID, limit int) ([]entities.ConversationMessage, error)
}

// ActionLog records one AgentAction per agent invocation.
type ActionLog interface {
	Record(ctx context.Context, action entities.AgentAction) error
}

// WorkflowStore persists maintenance requests, their workflow instances, and
// the communication sub-log. State mutations are guarded on the expected
// current state so concurrent writers serialize per row.
type WorkflowStore interface {
	CreateRequest(ctx context.Context, req entities.MaintenanceRequest) error
	CreateWorkflow(ctx context.Context, wf entities.MaintenanceWorkflow) error
	GetWorkflow(ctx context.Context, id string) (entities.MaintenanceWorkflow, error)
	GetRequest(ctx context.Context, id string) (entities.MaintenanceRequest, error)
	// ActiveWorkflowForLease returns the lease's most recent non-terminal
	// workflow, or ErrWorkflowNotFound.
	ActiveWorkflowForLease(ctx context.Context, leaseID int) (entities.MaintenanceWorkflow, error)
	// Transition updates current_state from → to; ErrStateConflict when the
	// row is no longer in the expected state.
	Transition(ctx context.Context, id string, from, to entities.WorkflowState) error
	// ConfirmETA records the vendor ETA and notes together with the move to
	// ETA_CONFIRMED in a single guarded update.
	ConfirmETA(ctx context.Context, id string, from entities.WorkflowState, eta time.Time, notes string) error
	MarkRequestScheduled(ctx context.Context, requestID string) error
	CloseRequest(ctx context.Context, requestID string) error
	AppendCommunication(ctx context.Context, comm entities.WorkflowCommunication) error
	Communications(ctx context.Context, workflowID string) ([]entities.WorkflowCommunication, error)
}

// ContextStore persists the bounded rolling conversation context per lease.
// Get returns a zero-value context (no error) for a lease with no row yet.
type ContextStore interface {
	Get(ctx context.Context, leaseID int) (entities.ConversationContext, error)
	Save(ctx context.Context, cc entities.ConversationContext) error
}

// DedupCache is the optional fast-path redelivery guard in front of the
// ledger's unique constraint. FirstSeen reports whether this process is the
// first to claim the external ID.
type DedupCache interface {
	FirstSeen(ctx context.Context, externalID string) (bool, error)
}

// TaskDispatcher runs detached work after the webhook response. Jobs with the
// same key execute in submission order; unrelated keys run concurrently.
type TaskDispatcher interface {
	Submit(key int, job func(ctx context.Context)) error
}

// HighSeverityAction is a tool effect that must additionally alert the
// landlord outside the workflow communication log.
type HighSeverityAction struct {
	Reason  string
	Urgency string
	Summary string
}

// AgentResult is what one agent invocation produced. Failures are folded in:
// the loop always yields a reply and a confidence score, never an error.
type AgentResult struct {
	FinalMessage string
	ToolsUsed    []string
	Intent       string
	Confidence   float64
	HighSeverity []HighSeverityAction
}

// AgentRunner executes the tool-calling loop for one inbound message.
type AgentRunner interface {
	Run(ctx context.Context, lease entities.LeaseContext, body string) AgentResult
}

// NotificationSender fans outbound messages to the three parties. Send
// failures are logged by implementations and reported, but callers treat
// them as non-fatal.
type NotificationSender interface {
	NotifyTenant(ctx context.Context, lease entities.LeaseContext, body string) error
	// Reply sends to the raw inbound sender address, channel prefix and all,
	// so the answer goes back over whichever channel the message came in on.
	Reply(ctx context.Context, to, body string) error
	NotifyVendor(ctx context.Context, phone, body string) error
	NotifyUnknownSender(ctx context.Context, to string) error
	Escalate(ctx context.Context, lease entities.LeaseContext, action HighSeverityAction) error
}

// SummaryUpdater folds one exchange into the lease's rolling summary.
type SummaryUpdater interface {
	Update(ctx context.Context, leaseID int, userMessage, agentReply string, toolsUsed []string) error
}
