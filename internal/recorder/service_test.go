package recorder

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/types"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServiceRecordsCallLifecycle(t *testing.T) {
	store := &fakeRecordingStore{}
	objects := objectstore.NewMemoryStore()
	pipeline := NewPipeline(store, objects, 1, 2, time.Millisecond, zerolog.Nop())
	defer pipeline.Close()

	cfg := &config.Config{CaptureDir: t.TempDir()}
	l := ledger.New(time.Minute, zerolog.Nop())
	svc := NewService(cfg, l, store, pipeline, zerolog.Nop())
	go svc.Run(l.Feed().Subscribe(0))

	call, err := l.CreateCall(
		types.Party{ID: "cust-1", Type: types.PartyCustomer},
		types.Party{ID: "part-1", Type: types.PartyPartner},
		true,
	)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	if _, err := l.Transition(call.ID, types.CallStatusConnected, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "capture to start", func() bool { return svc.ActiveCaptures() == 1 })

	rec, ok := store.last()
	if !ok || rec.Status != types.RecordingStatusRecording {
		t.Fatalf("expected recording row in recording state, got %+v", rec)
	}
	if rec.CallID != call.ID {
		t.Errorf("recording bound to call %q, expected %q", rec.CallID, call.ID)
	}

	updated, _ := l.GetCall(call.ID)
	if updated.RecordingID != rec.ID {
		t.Errorf("call carries recording id %q, expected %q", updated.RecordingID, rec.ID)
	}

	if !svc.Ingest(call.ID, sineWave(160, 300, captureSampleRate, 8000)) {
		t.Error("expected ingest to hit the active capture")
	}

	if _, err := l.Transition(call.ID, types.CallStatusEnded, types.EndReasonHangup); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	waitFor(t, "encode to finish", func() bool {
		got, ok := store.last()
		return ok && got.Status == types.RecordingStatusReady
	})

	final, _ := store.last()
	if _, exists := objects.Size(final.FilePath); !exists {
		t.Error("expected archive uploaded to object store")
	}
	if svc.ActiveCaptures() != 0 {
		t.Error("expected no active captures after finalize")
	}
}

func TestServiceIgnoresUnrecordedCalls(t *testing.T) {
	store := &fakeRecordingStore{}
	pipeline := NewPipeline(store, objectstore.NewMemoryStore(), 1, 1, time.Millisecond, zerolog.Nop())
	defer pipeline.Close()

	cfg := &config.Config{CaptureDir: t.TempDir()}
	l := ledger.New(time.Minute, zerolog.Nop())
	svc := NewService(cfg, l, store, pipeline, zerolog.Nop())
	go svc.Run(l.Feed().Subscribe(0))

	call, err := l.CreateCall(
		types.Party{ID: "cust-1", Type: types.PartyCustomer},
		types.Party{ID: "part-1", Type: types.PartyPartner},
		false,
	)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if _, err := l.Transition(call.ID, types.CallStatusConnected, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Give the feed a moment to deliver.
	time.Sleep(50 * time.Millisecond)

	if svc.ActiveCaptures() != 0 {
		t.Error("unrecorded call must not open a capture")
	}
	if svc.Ingest(call.ID, sineWave(160, 300, captureSampleRate, 8000)) {
		t.Error("ingest for unrecorded call must be a soft miss")
	}
	if _, ok := store.last(); ok {
		t.Error("no recording row expected for unrecorded call")
	}

	// Capture directory stays empty.
	entries, err := os.ReadDir(cfg.CaptureDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty capture dir, found %d entries", len(entries))
	}
}

func TestArchiveKeyLayout(t *testing.T) {
	ts := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	got := archiveKey("abc-123", ts)
	if got != "recordings/2026/08/31/call_abc-123.wav" {
		t.Errorf("unexpected key %q", got)
	}
}
