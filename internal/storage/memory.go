package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pannenhilfe24/callcore/internal/types"
)

// MemoryStore is an in-memory Store for development and tests
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]types.CallRecord // call ID -> record
	recordings map[string]types.Recording  // recording ID -> recording
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]types.CallRecord),
		recordings: make(map[string]types.Recording),
	}
}

func (s *MemoryStore) SaveCallRecord(record types.CallRecord) error {
	s.mu.Lock()
	s.records[record.CallID] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListCallRecords(filter CallRecordFilter) ([]types.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.CallRecord
	for _, r := range s.records {
		if filter.StartDate != "" && r.DateKey < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && r.DateKey > filter.EndDate {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !matchesSearch(r, filter.Search) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveRecording(rec types.Recording) error {
	s.mu.Lock()
	s.recordings[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetRecording(id string) (*types.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recordings[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) ListExpiredRecordings(cutoff time.Time) ([]types.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Recording
	for _, rec := range s.recordings {
		if rec.Status == types.RecordingStatusReady && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) TruncateAll() error {
	s.mu.Lock()
	s.records = make(map[string]types.CallRecord)
	s.recordings = make(map[string]types.Recording)
	s.mu.Unlock()
	return nil
}

func matchesSearch(r types.CallRecord, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(r.CallerName), needle) ||
		strings.Contains(strings.ToLower(r.ReceiverName), needle) ||
		strings.Contains(strings.ToLower(r.CallerID), needle) ||
		strings.Contains(strings.ToLower(r.ReceiverID), needle)
}
