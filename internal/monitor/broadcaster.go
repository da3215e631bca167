package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/types"
)

// QueueSnapshotter provides the current support queue view
type QueueSnapshotter interface {
	Snapshot() types.QueueSnapshot
}

// snapshotMessage is the periodic dashboard summary
type snapshotMessage struct {
	Type        string              `json:"type"`
	ActiveCalls []types.Call        `json:"activeCalls"`
	Queue       types.QueueSnapshot `json:"queue"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Broadcaster periodically pushes a full snapshot to all dashboards,
// so a freshly connected client converges without replaying events
type Broadcaster struct {
	monitor  *Monitor
	queue    QueueSnapshotter
	interval time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a snapshot broadcaster
func NewBroadcaster(monitor *Monitor, queue QueueSnapshotter, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		monitor:  monitor,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting snapshots until the context is cancelled
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", b.interval).Msg("snapshot broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("snapshot broadcaster stopped")
			return

		case now := <-ticker.C:
			if b.monitor.hub.ClientCount() == 0 {
				continue
			}

			msg := snapshotMessage{
				Type:        "snapshot",
				ActiveCalls: b.monitor.ActiveCalls(),
				Queue:       b.queue.Snapshot(),
				Timestamp:   now,
			}

			data, err := json.Marshal(msg)
			if err != nil {
				b.logger.Error().Err(err).Msg("failed to marshal snapshot")
				continue
			}

			b.monitor.hub.Broadcast(data)
		}
	}
}
