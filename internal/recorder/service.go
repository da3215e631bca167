package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Service drives recording lifecycles off the ledger feed. When a
// recorded call connects it opens a capture and creates the Recording
// row; when the call ends it finalizes the capture and hands the file
// to the encode pipeline. The live media path is only ever touched
// through the non-blocking Capture tap.
type Service struct {
	mu       sync.Mutex
	captures map[string]*activeCapture // callID -> capture

	cfg      *config.Config
	ledger   *ledger.Ledger
	store    RecordingStore
	pipeline *Pipeline
	logger   zerolog.Logger
}

type activeCapture struct {
	capture   *Capture
	recording types.Recording
}

// NewService creates a recorder service
func NewService(cfg *config.Config, l *ledger.Ledger, store RecordingStore, pipeline *Pipeline, logger zerolog.Logger) *Service {
	return &Service{
		captures: make(map[string]*activeCapture),
		cfg:      cfg,
		ledger:   l,
		store:    store,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "recorder").Logger(),
	}
}

// Run consumes ledger events until the subscription closes
func (s *Service) Run(sub *ledger.Subscription) {
	for ev := range sub.C {
		if ev.Type != types.CallEventTransition {
			continue
		}

		switch {
		case ev.Call.Status == types.CallStatusConnected && ev.Call.IsRecorded:
			s.startCapture(ev.Call)
		case ev.Call.Status.Terminal():
			s.finalizeCapture(ev.Call)
		}
	}
}

// Ingest feeds a frame of PCM samples into the capture of a call.
// Returns false when the call has no active capture; callers treat
// that as a soft miss, media for unrecorded calls is simply ignored.
func (s *Service) Ingest(callID string, samples []int16) bool {
	s.mu.Lock()
	ac, ok := s.captures[callID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	ac.capture.Feed(samples)
	return true
}

// ActiveCaptures returns the number of calls currently being captured
func (s *Service) ActiveCaptures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

func (s *Service) startCapture(call types.Call) {
	s.mu.Lock()
	if _, exists := s.captures[call.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	now := time.Now()
	capturePath := CapturePath(s.cfg.CaptureDir, call.ID, now)

	capture, err := NewCapture(capturePath, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Str("call_id", call.ID).Msg("failed to start capture")
		return
	}

	rec := types.Recording{
		ID:        uuid.New().String(),
		CallID:    call.ID,
		FilePath:  archiveKey(call.ID, now),
		Status:    types.RecordingStatusRecording,
		CreatedAt: now,
	}

	if err := s.store.SaveRecording(rec); err != nil {
		s.logger.Error().Err(err).Str("call_id", call.ID).Msg("failed to create recording row")
		capture.Stop()
		return
	}
	if err := s.ledger.AttachRecording(call.ID, rec.ID); err != nil {
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("failed to attach recording to call")
	}

	s.mu.Lock()
	s.captures[call.ID] = &activeCapture{capture: capture, recording: rec}
	s.mu.Unlock()

	s.logger.Info().
		Str("call_id", call.ID).
		Str("recording_id", rec.ID).
		Msg("recording started")
}

func (s *Service) finalizeCapture(call types.Call) {
	s.mu.Lock()
	ac, ok := s.captures[call.ID]
	if ok {
		delete(s.captures, call.ID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	capturePath, rawBytes, duration := ac.capture.Stop()

	ac.recording.Status = types.RecordingStatusProcessing
	ac.recording.DurationSeconds = int(duration.Seconds())
	if err := s.store.SaveRecording(ac.recording); err != nil {
		s.logger.Error().Err(err).Str("recording_id", ac.recording.ID).Msg("failed to persist processing recording")
	}

	s.pipeline.Enqueue(ac.recording, capturePath, rawBytes, duration)

	s.logger.Info().
		Str("call_id", call.ID).
		Str("recording_id", ac.recording.ID).
		Dur("duration", duration).
		Msg("recording finalized, encode queued")
}

// archiveKey is the deterministic object store key for a call's
// archival recording.
func archiveKey(callID string, t time.Time) string {
	return fmt.Sprintf("recordings/%s/call_%s.wav", t.Format("2006/01/02"), callID)
}
