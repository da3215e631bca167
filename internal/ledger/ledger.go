// Package ledger is the single source of truth for call state. All status
// writes flow through Transition; no other component mutates a call.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pannenhilfe24/callcore/internal/directory"
	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/types"
	"github.com/rs/zerolog"
)

// RecordStore is the subset of storage.Store needed by the Ledger
type RecordStore interface {
	SaveCallRecord(record types.CallRecord) error
}

// terminalRetention is how long a terminal call stays queryable in memory.
const terminalRetention = time.Hour

// callState pairs a call with its private lock. Transitions for one call are
// linearized on this mutex; different calls never contend.
type callState struct {
	mu        sync.Mutex
	call      types.Call
	ringTimer *time.Timer
}

// Ledger tracks every call and enforces the lifecycle state machine:
//
//	ringing -> connected | rejected | missed | ended (caller cancel)
//	connected -> ended
//
// rejected, missed and ended are terminal. Attempting a transition out of a
// terminal state is an error, except repeating the transition that produced
// it, which is a tolerated no-op.
type Ledger struct {
	mu     sync.RWMutex
	calls  map[string]*callState
	active map[string]string // party ID -> non-terminal call ID

	feed           *Feed
	store          RecordStore
	dir            directory.Directory
	ringingTimeout time.Duration
	logger         zerolog.Logger
}

// New creates a Ledger. The ringing timeout moves unanswered calls to missed.
func New(ringingTimeout time.Duration, logger zerolog.Logger) *Ledger {
	return &Ledger{
		calls:          make(map[string]*callState),
		active:         make(map[string]string),
		feed:           NewFeed(logger),
		ringingTimeout: ringingTimeout,
		logger:         logger,
	}
}

// SetStore sets the persistence store for finished call records
func (l *Ledger) SetStore(store RecordStore) {
	l.store = store
}

// SetDirectory sets the party-name resolver used when persisting records
func (l *Ledger) SetDirectory(dir directory.Directory) {
	l.dir = dir
}

// Feed returns the ledger's change feed
func (l *Ledger) Feed() *Feed {
	return l.feed
}

// CreateCall opens a new ringing call. It fails when caller and receiver are
// the same party, or when either already participates in a non-terminal call.
// A support-bound call may be created with an empty receiver ID; the queue
// manager fills it in via AssignReceiver once an agent is matched. The missed
// countdown only runs while a concrete receiver is being rung: direct calls
// arm it here, queued calls wait untimed and arm it on assignment.
func (l *Ledger) CreateCall(caller, receiver types.Party, recorded bool) (types.Call, error) {
	if caller.ID == "" || !caller.Type.Valid() || !receiver.Type.Valid() {
		return types.Call{}, ErrInvalidParty
	}
	if receiver.ID != "" && caller.ID == receiver.ID {
		return types.Call{}, ErrSelfCall
	}

	l.mu.Lock()
	if _, busy := l.active[caller.ID]; busy {
		l.mu.Unlock()
		return types.Call{}, ErrCallerBusy
	}
	if receiver.ID != "" {
		if _, busy := l.active[receiver.ID]; busy {
			l.mu.Unlock()
			return types.Call{}, ErrReceiverBusy
		}
	}

	call := types.Call{
		ID:         uuid.New().String(),
		Caller:     caller,
		Receiver:   receiver,
		Status:     types.CallStatusRinging,
		StartedAt:  time.Now(),
		IsRecorded: recorded,
	}

	cs := &callState{call: call}
	if receiver.ID != "" {
		l.armRingTimer(cs, call.ID)
	}

	l.calls[call.ID] = cs
	l.active[caller.ID] = call.ID
	if receiver.ID != "" {
		l.active[receiver.ID] = call.ID
	}

	// Published before the call becomes reachable for transitions, so
	// subscribers always see created first.
	l.feed.Publish(types.CallEvent{
		Type:      types.CallEventCreated,
		Call:      call,
		Timestamp: time.Now(),
	})
	l.mu.Unlock()

	metrics.Get().RecordCallCreated()

	l.logger.Info().
		Str("call_id", call.ID).
		Str("caller_id", caller.ID).
		Str("caller_type", string(caller.Type)).
		Str("receiver_id", receiver.ID).
		Str("receiver_type", string(receiver.Type)).
		Bool("recorded", recorded).
		Msg("call created")

	return call, nil
}

// armRingTimer starts the missed countdown for a ringing call. A late fire
// races benignly with answer/hangup: Transition rejects it once the call left
// the ringing state.
func (l *Ledger) armRingTimer(cs *callState, callID string) {
	cs.ringTimer = time.AfterFunc(l.ringingTimeout, func() {
		_, _ = l.Transition(callID, types.CallStatusMissed, types.EndReasonRingingTimeout)
	})
}

// Transition applies a status change. On connected it stamps connected_at; on
// any terminal status it stamps ended_at and the end reason, frees both
// participants and persists the record. Every applied transition is published
// on the change feed.
func (l *Ledger) Transition(callID string, to types.CallStatus, reason string) (types.Call, error) {
	l.mu.RLock()
	cs, ok := l.calls[callID]
	l.mu.RUnlock()
	if !ok {
		return types.Call{}, ErrNotFound
	}

	cs.mu.Lock()
	from := cs.call.Status

	if !legalTransition(from, to) {
		call := cs.call
		cs.mu.Unlock()
		// Re-applying the transition that produced the current state is a
		// tolerated no-op (double hangup, double answer).
		if from == to {
			return call, nil
		}
		l.logger.Debug().
			Str("call_id", callID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("transition rejected")
		return call, ErrInvalidTransition
	}

	now := time.Now()
	if from == types.CallStatusRinging && cs.ringTimer != nil {
		cs.ringTimer.Stop()
		cs.ringTimer = nil
	}

	cs.call.Status = to
	switch {
	case to == types.CallStatusConnected:
		cs.call.ConnectedAt = &now
	case to.Terminal():
		cs.call.EndedAt = &now
		cs.call.EndReason = terminalReason(from, to, reason)
	}
	call := cs.call

	// Published while the call lock is held, so subscribers observe the
	// transitions of one call in the order they were applied.
	l.feed.Publish(types.CallEvent{
		Type:      types.CallEventTransition,
		Call:      call,
		Previous:  from,
		Timestamp: now,
	})
	cs.mu.Unlock()

	if to.Terminal() {
		l.mu.Lock()
		l.release(call.Caller.ID, call.ID)
		l.release(call.Receiver.ID, call.ID)
		l.mu.Unlock()

		// Terminal calls are kept queryable for a while, then dropped from
		// memory. The durable record lives in the store.
		time.AfterFunc(terminalRetention, func() {
			l.mu.Lock()
			delete(l.calls, call.ID)
			l.mu.Unlock()
		})

		metrics.Get().RecordCallTerminal(string(to), call.EndReason == types.EndReasonAdminForced)
		l.persist(call)
	} else if to == types.CallStatusConnected {
		metrics.Get().RecordCallConnected()
	}

	l.logger.Info().
		Str("call_id", call.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", call.EndReason).
		Msg("call transition")

	return call, nil
}

// AssignReceiver fills in the receiver of a ringing support-bound call with
// the matched agent. Fails if the call is no longer ringing or the agent is
// already in a call.
func (l *Ledger) AssignReceiver(callID string, agent types.Party) (types.Call, error) {
	l.mu.RLock()
	cs, ok := l.calls[callID]
	l.mu.RUnlock()
	if !ok {
		return types.Call{}, ErrNotFound
	}

	cs.mu.Lock()
	if cs.call.Status != types.CallStatusRinging {
		call := cs.call
		cs.mu.Unlock()
		return call, ErrInvalidTransition
	}

	l.mu.Lock()
	if existing, busy := l.active[agent.ID]; busy && existing != callID {
		l.mu.Unlock()
		call := cs.call
		cs.mu.Unlock()
		return call, ErrReceiverBusy
	}
	l.active[agent.ID] = callID
	l.mu.Unlock()

	cs.call.Receiver = agent
	call := cs.call

	// The missed countdown starts now that a concrete agent is being rung.
	l.armRingTimer(cs, callID)

	l.feed.Publish(types.CallEvent{
		Type:      types.CallEventAssigned,
		Call:      call,
		Previous:  types.CallStatusRinging,
		Timestamp: time.Now(),
	})
	cs.mu.Unlock()

	l.logger.Info().
		Str("call_id", callID).
		Str("agent_id", agent.ID).
		Msg("receiver assigned")

	return call, nil
}

// AttachRecording links a recording to its call.
func (l *Ledger) AttachRecording(callID, recordingID string) error {
	l.mu.RLock()
	cs, ok := l.calls[callID]
	l.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	cs.mu.Lock()
	cs.call.RecordingID = recordingID
	cs.mu.Unlock()
	return nil
}

// GetCall returns a copy of the call with the given ID
func (l *Ledger) GetCall(callID string) (types.Call, error) {
	l.mu.RLock()
	cs, ok := l.calls[callID]
	l.mu.RUnlock()
	if !ok {
		return types.Call{}, ErrNotFound
	}

	cs.mu.Lock()
	call := cs.call
	cs.mu.Unlock()
	return call, nil
}

// GetActiveCalls returns all calls in ringing or connected state
func (l *Ledger) GetActiveCalls() []types.Call {
	l.mu.RLock()
	states := make([]*callState, 0, len(l.calls))
	for _, cs := range l.calls {
		states = append(states, cs)
	}
	l.mu.RUnlock()

	var out []types.Call
	for _, cs := range states {
		cs.mu.Lock()
		if cs.call.Active() {
			out = append(out, cs.call)
		}
		cs.mu.Unlock()
	}
	return out
}

// release clears the active-participant index entry if it still points at the
// given call. Caller holds l.mu.
func (l *Ledger) release(partyID, callID string) {
	if partyID == "" {
		return
	}
	if current, ok := l.active[partyID]; ok && current == callID {
		delete(l.active, partyID)
	}
}

// persist writes the finished call to the store asynchronously. Persistence
// failures are logged, never surfaced to the call path.
func (l *Ledger) persist(call types.Call) {
	if l.store == nil {
		return
	}

	record := l.toRecord(call)
	go func() {
		if err := l.store.SaveCallRecord(record); err != nil {
			l.logger.Error().Err(err).Str("call_id", call.ID).Msg("failed to save call record")
		}
	}()
}

// toRecord converts a terminal call to its persisted row, resolving display
// names best-effort through the directory.
func (l *Ledger) toRecord(call types.Call) types.CallRecord {
	record := types.CallRecord{
		DateKey:      call.StartedAt.Format("2006-01-02"),
		CallID:       call.ID,
		CallerID:     call.Caller.ID,
		CallerType:   string(call.Caller.Type),
		ReceiverID:   call.Receiver.ID,
		ReceiverType: string(call.Receiver.Type),
		Status:       string(call.Status),
		StartedAt:    call.StartedAt.Format(time.RFC3339),
		EndReason:    call.EndReason,
		IsRecorded:   call.IsRecorded,
		RecordingID:  call.RecordingID,
	}
	if call.ConnectedAt != nil {
		record.ConnectedAt = call.ConnectedAt.Format(time.RFC3339)
	}
	if call.EndedAt != nil {
		record.EndedAt = call.EndedAt.Format(time.RFC3339)
		if call.ConnectedAt != nil {
			record.TalkSeconds = call.EndedAt.Sub(*call.ConnectedAt).Seconds()
		}
	}

	if l.dir != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if name, err := l.dir.DisplayName(ctx, call.Caller); err == nil {
			record.CallerName = name
		}
		if call.Receiver.ID != "" {
			if name, err := l.dir.DisplayName(ctx, call.Receiver); err == nil {
				record.ReceiverName = name
			}
		}
	}

	return record
}

// legalTransition implements the state table.
func legalTransition(from, to types.CallStatus) bool {
	switch from {
	case types.CallStatusRinging:
		switch to {
		case types.CallStatusConnected, types.CallStatusRejected,
			types.CallStatusMissed, types.CallStatusEnded:
			return true
		}
	case types.CallStatusConnected:
		return to == types.CallStatusEnded
	}
	return false
}

// terminalReason fills in a default end reason when the caller gave none.
func terminalReason(from, to types.CallStatus, reason string) string {
	if reason != "" {
		return reason
	}
	switch to {
	case types.CallStatusRejected:
		return types.EndReasonRejected
	case types.CallStatusMissed:
		return types.EndReasonRingingTimeout
	case types.CallStatusEnded:
		if from == types.CallStatusRinging {
			return types.EndReasonCallerCancelled
		}
		return types.EndReasonHangup
	}
	return reason
}
