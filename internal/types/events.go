package types

import "time"

// CallEventType distinguishes ledger change-feed events.
type CallEventType string

const (
	CallEventCreated    CallEventType = "call_created"
	CallEventAssigned   CallEventType = "call_assigned"
	CallEventTransition CallEventType = "call_transition"
)

// CallEvent is published on the ledger change feed for every call insert and
// status transition. Components observe status changes only through these
// events, never by polling.
type CallEvent struct {
	Type      CallEventType `json:"type"`
	Call      Call          `json:"call"`
	Previous  CallStatus    `json:"previous,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
