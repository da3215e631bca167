package monitor

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Monitor renders the admin view of live calls. It subscribes to the
// ledger feed, pushes every change to connected dashboards and offers
// forced termination of misbehaving calls.
type Monitor struct {
	ledger *ledger.Ledger
	hub    *Hub
	logger zerolog.Logger
}

// NewMonitor creates a monitor on top of the given ledger
func NewMonitor(l *ledger.Ledger, hub *Hub, logger zerolog.Logger) *Monitor {
	return &Monitor{
		ledger: l,
		hub:    hub,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// callEventMessage is the dashboard wire shape for a single call change
type callEventMessage struct {
	Type      string              `json:"type"`
	Event     types.CallEventType `json:"event"`
	Call      types.Call          `json:"call"`
	Previous  types.CallStatus    `json:"previous,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Run consumes ledger events and fans them out to dashboards until
// the subscription closes
func (m *Monitor) Run(sub *ledger.Subscription) {
	for ev := range sub.C {
		msg := callEventMessage{
			Type:      "call_event",
			Event:     ev.Type,
			Call:      ev.Call,
			Previous:  ev.Previous,
			Timestamp: ev.Timestamp,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to marshal call event")
			continue
		}
		m.hub.Broadcast(data)
	}
}

// ActiveCalls returns all calls not yet in a terminal state
func (m *Monitor) ActiveCalls() []types.Call {
	return m.ledger.GetActiveCalls()
}

// ForceEnd terminates a live call on behalf of an administrator. The
// call ends with the admin_forced reason; both participants see the
// same ended state as a normal hangup.
func (m *Monitor) ForceEnd(callID, adminID string) (types.Call, error) {
	call, err := m.ledger.Transition(callID, types.CallStatusEnded, types.EndReasonAdminForced)
	if err != nil {
		return call, err
	}

	m.logger.Info().
		Str("call_id", callID).
		Str("admin_id", adminID).
		Msg("call force-ended by admin")

	return call, nil
}
