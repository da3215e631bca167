package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all application metrics. Counters are plain atomics so
// hot paths never contend on a lock.
type Metrics struct {
	// Call lifecycle
	CallsCreatedTotal   atomic.Int64
	CallsConnectedTotal atomic.Int64
	CallsEndedTotal     atomic.Int64
	CallsRejectedTotal  atomic.Int64
	CallsMissedTotal    atomic.Int64
	CallsForcedTotal    atomic.Int64

	// Signaling
	SignalsRelayedTotal   atomic.Int64
	SignalDeliveryMisses  atomic.Int64
	SignalSubscribersOpen atomic.Int64

	// Queue
	QueueEnqueuedTotal  atomic.Int64
	QueueAssignedTotal  atomic.Int64
	QueueCancelledTotal atomic.Int64
	queueWaitTotalMs    atomic.Int64
	queueWaitMaxMs      atomic.Int64

	// Recording pipeline
	EncodeSucceededTotal atomic.Int64
	EncodeFailedTotal    atomic.Int64
	EncodeRetriesTotal   atomic.Int64
	UploadedBytesTotal   atomic.Int64

	// Playback
	PlaybackURLsIssuedTotal atomic.Int64
	DownloadsTotal          atomic.Int64

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

func (m *Metrics) RecordCallCreated() {
	m.CallsCreatedTotal.Add(1)
}

func (m *Metrics) RecordCallConnected() {
	m.CallsConnectedTotal.Add(1)
}

// RecordCallTerminal bumps the counter matching the terminal status.
func (m *Metrics) RecordCallTerminal(status string, forced bool) {
	switch status {
	case "ended":
		m.CallsEndedTotal.Add(1)
	case "rejected":
		m.CallsRejectedTotal.Add(1)
	case "missed":
		m.CallsMissedTotal.Add(1)
	}
	if forced {
		m.CallsForcedTotal.Add(1)
	}
}

func (m *Metrics) RecordSignalRelayed() {
	m.SignalsRelayedTotal.Add(1)
}

func (m *Metrics) RecordSignalMiss() {
	m.SignalDeliveryMisses.Add(1)
}

func (m *Metrics) RecordSubscriberOpen() {
	m.SignalSubscribersOpen.Add(1)
}

func (m *Metrics) RecordSubscriberClose() {
	m.SignalSubscribersOpen.Add(-1)
}

func (m *Metrics) RecordEnqueue() {
	m.QueueEnqueuedTotal.Add(1)
}

// RecordAssignment records a queue assignment and the caller's wait
// time. Waits are tracked in milliseconds; the max is raced in with a
// compare and swap.
func (m *Metrics) RecordAssignment(waitSecs float64) {
	waitMs := int64(waitSecs * 1000)
	m.QueueAssignedTotal.Add(1)
	m.queueWaitTotalMs.Add(waitMs)
	for {
		max := m.queueWaitMaxMs.Load()
		if waitMs <= max || m.queueWaitMaxMs.CompareAndSwap(max, waitMs) {
			return
		}
	}
}

func (m *Metrics) RecordQueueCancel() {
	m.QueueCancelledTotal.Add(1)
}

func (m *Metrics) RecordEncodeSuccess(uploadedBytes int64) {
	m.EncodeSucceededTotal.Add(1)
	m.UploadedBytesTotal.Add(uploadedBytes)
}

func (m *Metrics) RecordEncodeFailure() {
	m.EncodeFailedTotal.Add(1)
}

func (m *Metrics) RecordEncodeRetry() {
	m.EncodeRetriesTotal.Add(1)
}

func (m *Metrics) RecordPlaybackURL() {
	m.PlaybackURLsIssuedTotal.Add(1)
}

func (m *Metrics) RecordDownload() {
	m.DownloadsTotal.Add(1)
}

// Snapshot returns a point-in-time copy of all metrics as a flat map.
func (m *Metrics) Snapshot() map[string]interface{} {
	assigned := m.QueueAssignedTotal.Load()
	avgWait := 0.0
	if assigned > 0 {
		avgWait = float64(m.queueWaitTotalMs.Load()) / 1000.0 / float64(assigned)
	}

	return map[string]interface{}{
		"calls_created_total":        m.CallsCreatedTotal.Load(),
		"calls_connected_total":      m.CallsConnectedTotal.Load(),
		"calls_ended_total":          m.CallsEndedTotal.Load(),
		"calls_rejected_total":       m.CallsRejectedTotal.Load(),
		"calls_missed_total":         m.CallsMissedTotal.Load(),
		"calls_forced_total":         m.CallsForcedTotal.Load(),
		"signals_relayed_total":      m.SignalsRelayedTotal.Load(),
		"signal_delivery_misses":     m.SignalDeliveryMisses.Load(),
		"signal_subscribers_open":    m.SignalSubscribersOpen.Load(),
		"queue_enqueued_total":       m.QueueEnqueuedTotal.Load(),
		"queue_assigned_total":       assigned,
		"queue_cancelled_total":      m.QueueCancelledTotal.Load(),
		"queue_wait_avg_secs":        avgWait,
		"queue_wait_max_secs":        float64(m.queueWaitMaxMs.Load()) / 1000.0,
		"encode_succeeded_total":     m.EncodeSucceededTotal.Load(),
		"encode_failed_total":        m.EncodeFailedTotal.Load(),
		"encode_retries_total":       m.EncodeRetriesTotal.Load(),
		"uploaded_bytes_total":       m.UploadedBytesTotal.Load(),
		"playback_urls_issued_total": m.PlaybackURLsIssuedTotal.Load(),
		"downloads_total":            m.DownloadsTotal.Load(),
		"uptime_secs":                time.Since(m.startTime).Seconds(),
	}
}

// Handler serves the metrics snapshot as JSON.
func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
