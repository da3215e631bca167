package playback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/internal/types"
)

var (
	// ErrNotFound means no recording exists under the given ID
	ErrNotFound = errors.New("recording not found")

	// ErrNotReady means the recording exists but its archive is not
	// playable yet (or anymore)
	ErrNotReady = errors.New("recording not ready")

	// ErrForbidden means the requester is not an administrator
	ErrForbidden = errors.New("recording access forbidden")
)

// Gateway is the only read path to archival recordings. Access is
// restricted to administrators; issuing a playback URL counts as a
// play, downloading does not.
type Gateway struct {
	store   storage.Store
	objects objectstore.ObjectStore
	urlTTL  time.Duration
	logger  zerolog.Logger
}

// NewGateway creates a playback gateway
func NewGateway(store storage.Store, objects objectstore.ObjectStore, urlTTL time.Duration, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store:   store,
		objects: objects,
		urlTTL:  urlTTL,
		logger:  logger.With().Str("component", "playback").Logger(),
	}
}

// GetPlaybackURL issues a time-limited signed URL for a ready
// recording and bumps its play statistics.
func (g *Gateway) GetPlaybackURL(ctx context.Context, recordingID string, requester types.Party) (string, error) {
	rec, err := g.authorize(recordingID, requester)
	if err != nil {
		return "", err
	}

	url, err := g.objects.PresignGet(ctx, rec.FilePath, g.urlTTL)
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec.PlayCount++
	rec.LastPlayedAt = &now
	if err := g.store.SaveRecording(*rec); err != nil {
		// URL is already issued, the count is best effort.
		g.logger.Warn().Err(err).Str("recording_id", recordingID).Msg("failed to persist play count")
	}

	metrics.Get().RecordPlaybackURL()

	g.logger.Info().
		Str("recording_id", recordingID).
		Str("admin_id", requester.ID).
		Int("play_count", rec.PlayCount).
		Msg("playback url issued")

	return url, nil
}

// Download streams the archive bytes. Distinct from playback, it does
// not touch play statistics.
func (g *Gateway) Download(ctx context.Context, recordingID string, requester types.Party) (io.ReadCloser, int64, error) {
	rec, err := g.authorize(recordingID, requester)
	if err != nil {
		return nil, 0, err
	}

	body, size, err := g.objects.Open(ctx, rec.FilePath)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, 0, ErrNotReady
		}
		return nil, 0, err
	}

	metrics.Get().RecordDownload()

	g.logger.Info().
		Str("recording_id", recordingID).
		Str("admin_id", requester.ID).
		Msg("recording downloaded")

	return body, size, nil
}

// GetRecording returns recording metadata for the admin surface
func (g *Gateway) GetRecording(recordingID string, requester types.Party) (*types.Recording, error) {
	if requester.Type != types.PartyAdmin {
		return nil, ErrForbidden
	}
	rec, err := g.store.GetRecording(recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (g *Gateway) authorize(recordingID string, requester types.Party) (*types.Recording, error) {
	if requester.Type != types.PartyAdmin {
		return nil, ErrForbidden
	}

	rec, err := g.store.GetRecording(recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status != types.RecordingStatusReady {
		return nil, ErrNotReady
	}
	return rec, nil
}
