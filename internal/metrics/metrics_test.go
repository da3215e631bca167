package metrics

import (
	"sync"
	"testing"
)

func TestCountersUnderConcurrency(t *testing.T) {
	m := Get()
	before := m.CallsCreatedTotal.Load()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.RecordCallCreated()
			}
		}()
	}
	wg.Wait()

	if got := m.CallsCreatedTotal.Load() - before; got != 8000 {
		t.Errorf("expected 8000 increments, got %d", got)
	}
}

func TestAssignmentWaitStats(t *testing.T) {
	m := &Metrics{}
	m.RecordAssignment(1.5)
	m.RecordAssignment(0.5)

	snap := m.Snapshot()
	if snap["queue_assigned_total"].(int64) != 2 {
		t.Errorf("expected 2 assignments, got %v", snap["queue_assigned_total"])
	}
	if avg := snap["queue_wait_avg_secs"].(float64); avg != 1.0 {
		t.Errorf("expected 1.0s average wait, got %v", avg)
	}
	if max := snap["queue_wait_max_secs"].(float64); max != 1.5 {
		t.Errorf("expected 1.5s max wait, got %v", max)
	}
}
