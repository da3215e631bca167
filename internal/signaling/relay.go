package signaling

import (
	"sync"

	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/types"
	"github.com/rs/zerolog"
)

const peerBufferSize = 64

// PeerSubscription is one party's inbox for a single call. Messages
// from the peer arrive on C in the order the peer sent them.
type PeerSubscription struct {
	C chan types.SignalEnvelope

	relay   *Relay
	callID  string
	partyID string
	once    sync.Once
}

// Close detaches the subscription from its call. Idempotent.
func (s *PeerSubscription) Close() {
	s.once.Do(func() {
		s.relay.detach(s.callID, s.partyID, s)
	})
}

type callRoom struct {
	peers map[string]*PeerSubscription // partyID -> subscription
}

// Relay fans signaling envelopes out between the two parties of a
// call. Delivery is best effort: if the peer has no subscription or
// its buffer is full, the message is dropped and logged. Nothing is
// inspected or persisted.
type Relay struct {
	mu     sync.RWMutex
	rooms  map[string]*callRoom // callID -> room
	logger zerolog.Logger
}

// NewRelay creates an empty Relay.
func NewRelay(logger zerolog.Logger) *Relay {
	return &Relay{
		rooms:  make(map[string]*callRoom),
		logger: logger.With().Str("component", "signaling").Logger(),
	}
}

// Subscribe attaches a party to a call's room. A second subscription
// for the same party replaces the first; the old one is closed so a
// reconnecting client does not leave a stale inbox behind.
func (r *Relay) Subscribe(callID, partyID string) *PeerSubscription {
	sub := &PeerSubscription{
		C:       make(chan types.SignalEnvelope, peerBufferSize),
		relay:   r,
		callID:  callID,
		partyID: partyID,
	}

	r.mu.Lock()
	room, ok := r.rooms[callID]
	if !ok {
		room = &callRoom{peers: make(map[string]*PeerSubscription)}
		r.rooms[callID] = room
	}
	if old := room.peers[partyID]; old != nil {
		close(old.C)
	}
	room.peers[partyID] = sub
	r.mu.Unlock()

	metrics.Get().RecordSubscriberOpen()
	return sub
}

func (r *Relay) detach(callID, partyID string, sub *PeerSubscription) {
	r.mu.Lock()
	room, ok := r.rooms[callID]
	removed := false
	if ok {
		if current, exists := room.peers[partyID]; exists && current == sub {
			delete(room.peers, partyID)
			close(sub.C)
			removed = true
		}
		if len(room.peers) == 0 {
			delete(r.rooms, callID)
		}
	}
	r.mu.Unlock()

	if removed {
		metrics.Get().RecordSubscriberClose()
	}
}

// Send relays an envelope to the sender's peer on the same call.
// Returns true if the message reached the peer's buffer.
func (r *Relay) Send(env types.SignalEnvelope) bool {
	m := metrics.Get()

	// The read lock stays held across the send. Channels are only closed
	// under the write lock, so the peer channel cannot close mid-send.
	r.mu.RLock()
	defer r.mu.RUnlock()

	var peer *PeerSubscription
	if room, ok := r.rooms[env.CallID]; ok {
		for partyID, sub := range room.peers {
			if partyID != env.FromParty {
				peer = sub
				break
			}
		}
	}

	if peer == nil {
		m.RecordSignalMiss()
		r.logger.Debug().
			Str("call_id", env.CallID).
			Str("from", env.FromParty).
			Str("type", string(env.Type)).
			Msg("no peer subscribed, signal dropped")
		return false
	}

	select {
	case peer.C <- env:
		m.RecordSignalRelayed()
		return true
	default:
		m.RecordSignalMiss()
		r.logger.Warn().
			Str("call_id", env.CallID).
			Str("from", env.FromParty).
			Str("type", string(env.Type)).
			Msg("peer buffer full, signal dropped")
		return false
	}
}

// CloseCall tears down every subscription of a call. Subscribers see
// their channel close.
func (r *Relay) CloseCall(callID string) {
	r.mu.Lock()
	room, ok := r.rooms[callID]
	if ok {
		delete(r.rooms, callID)
		// A subscriber calling Close concurrently is safe: detach only
		// closes a channel it still finds registered, and the room is
		// gone before the lock is released.
		for _, sub := range room.peers {
			close(sub.C)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	for range room.peers {
		metrics.Get().RecordSubscriberClose()
	}
}

// SubscriberCount reports how many parties are attached to a call.
func (r *Relay) SubscriberCount(callID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[callID]
	if !ok {
		return 0
	}
	return len(room.peers)
}

// WatchLedger consumes call events and closes signaling rooms when
// calls reach a terminal state. Blocks until the subscription closes.
func (r *Relay) WatchLedger(sub *ledger.Subscription) {
	for ev := range sub.C {
		if ev.Type != types.CallEventTransition {
			continue
		}
		if ev.Call.Status.Terminal() {
			r.CloseCall(ev.Call.ID)
			r.logger.Debug().
				Str("call_id", ev.Call.ID).
				Str("status", string(ev.Call.Status)).
				Msg("call ended, signaling room closed")
		}
	}
}
