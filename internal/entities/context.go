package entities

import "time"

// ThreadState tracks one unresolved topic in a lease's conversation, keyed by
// a stable thread key (e.g. a workflow ID or "payment_plan").
type ThreadState struct {
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationContext is the bounded rolling memory attached to a lease. The
// summary is capped at MaxSummaryLength; OpenThreads survives summary trims
// untouched unless a tool explicitly mutates it.
type ConversationContext struct {
	LeaseID     int                    `json:"lease_id"`
	Summary     string                 `json:"summary"`
	OpenThreads map[string]ThreadState `json:"open_threads"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// MaxSummaryLength caps the rolling summary; trimming always discards the
// oldest digest lines first.
const MaxSummaryLength = 2000
