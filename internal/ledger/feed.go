package ledger

import (
	"sync"

	"github.com/pannenhilfe24/callcore/internal/types"
	"github.com/rs/zerolog"
)

// defaultFeedBuffer is the per-subscriber channel capacity.
const defaultFeedBuffer = 256

// Feed is the ledger's change-notification channel. Every call insert and
// transition is published here; subscribing is the only way other components
// observe status changes.
type Feed struct {
	mu     sync.RWMutex
	subs   map[uint64]chan types.CallEvent
	nextID uint64
	logger zerolog.Logger
}

// NewFeed creates an empty change feed
func NewFeed(logger zerolog.Logger) *Feed {
	return &Feed{
		subs:   make(map[uint64]chan types.CallEvent),
		logger: logger,
	}
}

// Subscription is one subscriber's view of the feed. Close to stop receiving.
type Subscription struct {
	C    <-chan types.CallEvent
	id   uint64
	feed *Feed
	once sync.Once
}

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		if ch, ok := s.feed.subs[s.id]; ok {
			delete(s.feed.subs, s.id)
			close(ch)
		}
		s.feed.mu.Unlock()
	})
}

// Subscribe registers a new subscriber. buffer <= 0 uses the default.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan types.CallEvent, buffer)
	f.subs[id] = ch

	return &Subscription{C: ch, id: id, feed: f}
}

// Publish delivers an event to every subscriber. A subscriber whose buffer is
// full loses the event rather than blocking the ledger.
func (f *Feed) Publish(ev types.CallEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.logger.Warn().
				Uint64("subscriber", id).
				Str("call_id", ev.Call.ID).
				Str("event", string(ev.Type)).
				Msg("feed subscriber buffer full, event dropped")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
