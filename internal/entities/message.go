package entities

import "time"

// Message directions in the conversation ledger.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Intent classifications attached to processed messages.
const (
	IntentMaintenance = "maintenance_request"
	IntentPayment     = "payment_question"
	IntentLease       = "lease_question"
	IntentGeneral     = "general"
)

// ConversationMessage is one append-only ledger row. ExternalMessageID is the
// provider-assigned ID used to detect webhook redelivery; it is empty for
// outbound rows.
type ConversationMessage struct {
	ID                int       `json:"id"`
	LeaseID           int       `json:"lease_id"`
	Direction         string    `json:"direction"`
	Body              string    `json:"body"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	Intent            string    `json:"intent_classification,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// AgentAction is the audit record written once per agent invocation,
// including failed ones (confidence 0).
type AgentAction struct {
	ID          int       `json:"id"`
	LeaseID     int       `json:"lease_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ToolsCalled []string  `json:"tools_called"`
	Confidence  float64   `json:"confidence_score"`
	CreatedAt   time.Time `json:"created_at"`
}
