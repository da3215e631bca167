package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/internal/types"
)

func admin() types.Party   { return types.Party{ID: "admin-1", Type: types.PartyAdmin} }
func partner() types.Party { return types.Party{ID: "part-1", Type: types.PartyPartner} }

func seedRecording(t *testing.T, store storage.Store, objects *objectstore.MemoryStore, status types.RecordingStatus) types.Recording {
	t.Helper()

	rec := types.Recording{
		ID:            "rec-1",
		CallID:        "call-1",
		FilePath:      "recordings/2026/08/31/call_call-1.wav",
		FileName:      "call_call-1.wav",
		FileSizeBytes: 4,
		Status:        status,
		CreatedAt:     time.Now(),
	}
	if err := store.SaveRecording(rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	if err := objects.Put(context.Background(), rec.FilePath, bytes.NewReader([]byte("RIFF")), 4, "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return rec
}

func TestPlaybackURLRequiresAdmin(t *testing.T) {
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	gateway := NewGateway(store, objects, time.Minute, zerolog.Nop())
	rec := seedRecording(t, store, objects, types.RecordingStatusReady)

	if _, err := gateway.GetPlaybackURL(context.Background(), rec.ID, partner()); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for partner, got %v", err)
	}
	if _, _, err := gateway.Download(context.Background(), rec.ID, types.Party{ID: "cust-1", Type: types.PartyCustomer}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for customer, got %v", err)
	}
	if _, err := gateway.GetRecording(rec.ID, partner()); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden on metadata, got %v", err)
	}
}

func TestPlaybackURLRequiresReadyStatus(t *testing.T) {
	for _, status := range []types.RecordingStatus{
		types.RecordingStatusRecording,
		types.RecordingStatusProcessing,
		types.RecordingStatusFailed,
		types.RecordingStatusDeleted,
	} {
		store := storage.NewMemoryStore()
		objects := objectstore.NewMemoryStore()
		gateway := NewGateway(store, objects, time.Minute, zerolog.Nop())
		rec := seedRecording(t, store, objects, status)

		if _, err := gateway.GetPlaybackURL(context.Background(), rec.ID, admin()); !errors.Is(err, ErrNotReady) {
			t.Errorf("status %s: expected ErrNotReady, got %v", status, err)
		}
	}
}

func TestPlaybackURLUnknownRecording(t *testing.T) {
	gateway := NewGateway(storage.NewMemoryStore(), objectstore.NewMemoryStore(), time.Minute, zerolog.Nop())

	if _, err := gateway.GetPlaybackURL(context.Background(), "missing", admin()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlaybackURLCountsPlays(t *testing.T) {
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	gateway := NewGateway(store, objects, time.Minute, zerolog.Nop())
	rec := seedRecording(t, store, objects, types.RecordingStatusReady)

	url, err := gateway.GetPlaybackURL(context.Background(), rec.ID, admin())
	if err != nil {
		t.Fatalf("GetPlaybackURL: %v", err)
	}
	if !strings.Contains(url, rec.FilePath) {
		t.Errorf("url %q does not reference the archive key", url)
	}

	if _, err := gateway.GetPlaybackURL(context.Background(), rec.ID, admin()); err != nil {
		t.Fatalf("second GetPlaybackURL: %v", err)
	}

	got, err := store.GetRecording(rec.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.PlayCount != 2 {
		t.Errorf("expected play count 2, got %d", got.PlayCount)
	}
	if got.LastPlayedAt == nil {
		t.Error("expected last played timestamp set")
	}
}

func TestDownloadDoesNotCountPlays(t *testing.T) {
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	gateway := NewGateway(store, objects, time.Minute, zerolog.Nop())
	rec := seedRecording(t, store, objects, types.RecordingStatusReady)

	body, size, err := gateway.Download(context.Background(), rec.ID, admin())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if size != 4 || string(data) != "RIFF" {
		t.Errorf("unexpected download content %q (size %d)", data, size)
	}

	got, _ := store.GetRecording(rec.ID)
	if got.PlayCount != 0 {
		t.Errorf("download must not count as a play, got %d", got.PlayCount)
	}
}

func TestDownloadMissingObjectIsNotReady(t *testing.T) {
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	gateway := NewGateway(store, objects, time.Minute, zerolog.Nop())
	rec := seedRecording(t, store, objects, types.RecordingStatusReady)

	// Archive object vanished out from under the metadata row.
	if err := objects.Delete(context.Background(), rec.FilePath); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := gateway.Download(context.Background(), rec.ID, admin()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for missing object, got %v", err)
	}
}

func TestRetentionSweep(t *testing.T) {
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()

	old := types.Recording{
		ID:        "rec-old",
		CallID:    "call-old",
		FilePath:  "recordings/2026/01/01/call_call-old.wav",
		Status:    types.RecordingStatusReady,
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	fresh := types.Recording{
		ID:        "rec-fresh",
		CallID:    "call-fresh",
		FilePath:  "recordings/2026/08/30/call_call-fresh.wav",
		Status:    types.RecordingStatusReady,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
	for _, rec := range []types.Recording{old, fresh} {
		if err := store.SaveRecording(rec); err != nil {
			t.Fatalf("SaveRecording: %v", err)
		}
		if err := objects.Put(context.Background(), rec.FilePath, bytes.NewReader([]byte("RIFF")), 4, "audio/wav"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	retention := NewRetention(store, objects, 30*24*time.Hour, time.Hour, zerolog.Nop())
	n, err := retention.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}

	gotOld, _ := store.GetRecording(old.ID)
	if gotOld.Status != types.RecordingStatusDeleted {
		t.Errorf("expected old recording marked deleted, got %s", gotOld.Status)
	}
	if _, exists := objects.Size(old.FilePath); exists {
		t.Error("expected old archive object removed")
	}

	gotFresh, _ := store.GetRecording(fresh.ID)
	if gotFresh.Status != types.RecordingStatusReady {
		t.Errorf("fresh recording must stay ready, got %s", gotFresh.Status)
	}
	if _, exists := objects.Size(fresh.FilePath); !exists {
		t.Error("fresh archive object must survive the sweep")
	}

	// Second sweep finds nothing, the deleted row is not re-swept.
	if n, err := retention.Sweep(context.Background()); err != nil || n != 0 {
		t.Errorf("expected idempotent sweep, got n=%d err=%v", n, err)
	}
}
