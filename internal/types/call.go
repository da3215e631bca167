package types

import "time"

// PartyType identifies which side of the marketplace a call participant
// belongs to.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartyPartner  PartyType = "partner"
	PartyAdmin    PartyType = "admin"
)

// Valid reports whether the party type is one of the known values.
func (p PartyType) Valid() bool {
	switch p {
	case PartyCustomer, PartyPartner, PartyAdmin:
		return true
	}
	return false
}

// Party is one participant of a call, identified explicitly at call time.
// Identity is never inferred from ambient state.
type Party struct {
	ID   string    `json:"id"`
	Type PartyType `json:"type"`
}

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"   // Created, waiting for the receiver to answer
	CallStatusConnected CallStatus = "connected" // Media path established
	CallStatusEnded     CallStatus = "ended"     // Hung up after connecting, or cancelled before answer
	CallStatusRejected  CallStatus = "rejected"  // Receiver declined while ringing
	CallStatusMissed    CallStatus = "missed"    // Ringing timed out with no answer
)

// Terminal reports whether no further transitions are allowed from the status.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusRejected, CallStatusMissed:
		return true
	}
	return false
}

// End reasons recorded on terminal transitions.
const (
	EndReasonHangup          = "hangup"
	EndReasonRejected        = "rejected"
	EndReasonRingingTimeout  = "ringing_timeout"
	EndReasonCallerCancelled = "caller_cancelled"
	EndReasonAdminForced     = "admin_forced"
)

// Call represents one attempted or completed voice session between two parties.
type Call struct {
	ID          string     `json:"callId"`
	Caller      Party      `json:"caller"`
	Receiver    Party      `json:"receiver"`
	Status      CallStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	EndReason   string     `json:"endReason,omitempty"`
	IsRecorded  bool       `json:"isRecorded"`
	RecordingID string     `json:"recordingId,omitempty"`
}

// Active reports whether the call is still in a non-terminal state.
func (c *Call) Active() bool {
	return !c.Status.Terminal()
}
