package queue

import (
	"time"

	"github.com/pannenhilfe24/callcore/internal/types"
)

// priorityQueue holds waiting support calls in two FIFO lanes.
// Partner-origin calls are always served before customer-origin
// calls; within a lane order is strictly arrival order. Not safe for
// concurrent use, the Manager serializes access.
type priorityQueue struct {
	partners  []*types.QueueEntry
	customers []*types.QueueEntry
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{}
}

func (q *priorityQueue) enqueue(entry *types.QueueEntry) {
	if entry.CallerType == types.PartyPartner {
		q.partners = append(q.partners, entry)
	} else {
		q.customers = append(q.customers, entry)
	}
}

// peek returns the next entry to be served without removing it
func (q *priorityQueue) peek() *types.QueueEntry {
	if len(q.partners) > 0 {
		return q.partners[0]
	}
	if len(q.customers) > 0 {
		return q.customers[0]
	}
	return nil
}

// dequeue removes and returns the next entry to be served
func (q *priorityQueue) dequeue() *types.QueueEntry {
	if len(q.partners) > 0 {
		entry := q.partners[0]
		q.partners = q.partners[1:]
		return entry
	}
	if len(q.customers) > 0 {
		entry := q.customers[0]
		q.customers = q.customers[1:]
		return entry
	}
	return nil
}

// remove deletes the entry for callID from whichever lane holds it
func (q *priorityQueue) remove(callID string) *types.QueueEntry {
	for i, e := range q.partners {
		if e.CallID == callID {
			q.partners = append(q.partners[:i], q.partners[i+1:]...)
			return e
		}
	}
	for i, e := range q.customers {
		if e.CallID == callID {
			q.customers = append(q.customers[:i], q.customers[i+1:]...)
			return e
		}
	}
	return nil
}

func (q *priorityQueue) len() int {
	return len(q.partners) + len(q.customers)
}

// longestWait returns the age of the oldest waiting entry
func (q *priorityQueue) longestWait(now time.Time) float64 {
	longest := 0.0
	for _, lane := range [][]*types.QueueEntry{q.partners, q.customers} {
		if len(lane) > 0 {
			if w := now.Sub(lane[0].EnqueuedAt).Seconds(); w > longest {
				longest = w
			}
		}
	}
	return longest
}
