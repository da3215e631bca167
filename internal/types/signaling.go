package types

import "encoding/json"

// SignalType is the kind of session-negotiation payload being relayed.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Valid reports whether the signal type is one of the known values.
func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// SignalEnvelope is the ephemeral negotiation message relayed between the two
// parties of a call. Envelopes are never persisted beyond delivery: produced
// by one party, consumed by the other, discarded afterwards.
type SignalEnvelope struct {
	CallID    string          `json:"callId"`
	FromParty string          `json:"fromParty"`
	Type      SignalType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}
