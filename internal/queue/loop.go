package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AssignLoop drives queue assignment. It runs a pass whenever the
// manager is kicked and at a steady interval as a fallback.
type AssignLoop struct {
	mgr      *Manager
	interval time.Duration
	logger   zerolog.Logger
}

// NewAssignLoop creates a new AssignLoop
func NewAssignLoop(mgr *Manager, interval time.Duration, logger zerolog.Logger) *AssignLoop {
	if interval <= 0 {
		interval = time.Second
	}
	return &AssignLoop{
		mgr:      mgr,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the loop until the context is cancelled
func (al *AssignLoop) Start(ctx context.Context) {
	ticker := time.NewTicker(al.interval)
	defer ticker.Stop()

	al.logger.Info().Msg("queue assignment loop started")

	for {
		select {
		case <-ctx.Done():
			al.logger.Info().Msg("queue assignment loop stopped")
			return
		case <-al.mgr.kick:
			al.mgr.TryAssign()
		case <-ticker.C:
			al.mgr.TryAssign()
		}
	}
}
