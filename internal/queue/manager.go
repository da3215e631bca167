package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Manager owns the support queue. Enqueue, Cancel and assignment all
// run under one mutex, so a call can never be handed to two agents
// and a cancel can never race an assignment.
type Manager struct {
	mu      sync.Mutex
	queue   *priorityQueue
	tracker *AgentTracker
	ledger  *ledger.Ledger
	routing RoutingStrategy
	logger  zerolog.Logger

	// kick wakes the assignment loop early when the queue or the
	// agent pool changes
	kick chan struct{}
}

// NewManager creates a queue manager backed by the given ledger
func NewManager(l *ledger.Ledger, tracker *AgentTracker, logger zerolog.Logger) *Manager {
	return &Manager{
		queue:   newPriorityQueue(),
		tracker: tracker,
		ledger:  l,
		routing: &LongestIdleFirst{},
		logger:  logger.With().Str("component", "queue").Logger(),
		kick:    make(chan struct{}, 1),
	}
}

// Enqueue adds a ringing support call to the queue. The caller's
// party type decides the priority lane.
func (m *Manager) Enqueue(call types.Call) *types.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findLocked(call.ID); existing != nil {
		return existing
	}

	entry := &types.QueueEntry{
		CallID:     call.ID,
		CallerType: call.Caller.Type,
		EnqueuedAt: time.Now(),
	}
	m.queue.enqueue(entry)
	metrics.Get().RecordEnqueue()

	m.logger.Debug().
		Str("call_id", call.ID).
		Str("caller_type", string(call.Caller.Type)).
		Int("queue_depth", m.queue.len()).
		Msg("call enqueued")

	m.Kick()
	return entry
}

// Cancel removes a waiting call from the queue. Returns false when
// the call is not waiting anymore, which includes the case where an
// agent was already assigned; cancellation after assignment is a
// no-op.
func (m *Manager) Cancel(callID string) bool {
	m.mu.Lock()
	entry := m.queue.remove(callID)
	m.mu.Unlock()

	if entry == nil {
		return false
	}

	metrics.Get().RecordQueueCancel()
	m.logger.Debug().Str("call_id", callID).Msg("queued call cancelled")
	return true
}

// TryAssign matches waiting calls to available agents until one side
// runs out. Assignment goes through the ledger so the receiver-busy
// invariant holds even against direct calls placed outside the queue.
func (m *Manager) TryAssign() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	assigned := 0
	for m.queue.len() > 0 {
		available := m.tracker.GetAvailable()
		if len(available) == 0 {
			break
		}

		agent := m.routing.SelectAgent(available)
		entry := m.queue.peek()

		call, err := m.ledger.AssignReceiver(entry.CallID, types.Party{
			ID:   agent.AgentID,
			Type: types.PartyAdmin,
		})
		switch {
		case err == nil:
			m.queue.dequeue()
			entry.AssignedAgentID = agent.AgentID
			m.tracker.SetUnavailable(agent.AgentID)

			wait := time.Since(entry.EnqueuedAt).Seconds()
			metrics.Get().RecordAssignment(wait)
			assigned++

			m.logger.Debug().
				Str("call_id", call.ID).
				Str("agent_id", agent.AgentID).
				Float64("wait_secs", wait).
				Msg("queued call assigned to agent")

		case errors.Is(err, ledger.ErrReceiverBusy):
			// Agent picked up something else in the meantime.
			// Take them out of rotation and retry with the rest.
			m.tracker.SetUnavailable(agent.AgentID)

		default:
			// Call left the ringing state while waiting, drop it.
			m.queue.dequeue()
			m.logger.Debug().
				Err(err).
				Str("call_id", entry.CallID).
				Msg("dropping stale queue entry")
		}
	}

	return assigned
}

// Snapshot returns the current queue view for dashboards
func (m *Manager) Snapshot() types.QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	return types.QueueSnapshot{
		PartnersWaiting:  len(m.queue.partners),
		CustomersWaiting: len(m.queue.customers),
		LongestWaitSecs:  m.queue.longestWait(now),
		FreeAgents:       m.tracker.AvailableCount(),
		Timestamp:        now,
	}
}

// Depth returns the number of waiting calls
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}

// Kick asks the assignment loop to run a pass soon. Non-blocking.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// WatchLedger drops queue entries whose call left the ringing state
// through some other path, for example a ringing timeout. Blocks
// until the subscription closes.
func (m *Manager) WatchLedger(sub *ledger.Subscription) {
	for ev := range sub.C {
		if ev.Type == types.CallEventTransition && ev.Call.Status.Terminal() {
			m.Cancel(ev.Call.ID)
		}
	}
}

func (m *Manager) findLocked(callID string) *types.QueueEntry {
	for _, lane := range [][]*types.QueueEntry{m.queue.partners, m.queue.customers} {
		for _, e := range lane {
			if e.CallID == callID {
				return e
			}
		}
	}
	return nil
}
