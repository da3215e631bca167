package playback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Retention deletes ready recordings older than the configured age.
// Deleted recordings keep their row with status deleted so the admin
// history stays intact; only the archive object goes away.
type Retention struct {
	store    storage.Store
	objects  objectstore.ObjectStore
	maxAge   time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// NewRetention creates a retention sweeper. A maxAge of zero disables it.
func NewRetention(store storage.Store, objects objectstore.ObjectStore, maxAge, interval time.Duration, logger zerolog.Logger) *Retention {
	return &Retention{
		store:    store,
		objects:  objects,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With().Str("component", "retention").Logger(),
	}
}

// Start runs periodic sweeps until the context is cancelled
func (r *Retention) Start(ctx context.Context) {
	if r.maxAge <= 0 {
		r.logger.Info().Msg("recording retention disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("max_age", r.maxAge).Msg("recording retention started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("retention sweep failed")
			} else if n > 0 {
				r.logger.Info().Int("deleted", n).Msg("retention sweep complete")
			}
		}
	}
}

// Sweep deletes all expired recordings once and returns how many went
func (r *Retention) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.maxAge)
	expired, err := r.store.ListExpiredRecordings(cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range expired {
		if err := r.objects.Delete(ctx, rec.FilePath); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			r.logger.Error().Err(err).Str("recording_id", rec.ID).Msg("failed to delete archive object")
			continue
		}

		rec.Status = types.RecordingStatusDeleted
		if err := r.store.SaveRecording(rec); err != nil {
			r.logger.Error().Err(err).Str("recording_id", rec.ID).Msg("failed to mark recording deleted")
			continue
		}
		deleted++
	}

	return deleted, nil
}
