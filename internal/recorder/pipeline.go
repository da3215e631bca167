package recorder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/metrics"
	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// RecordingStore is the subset of storage.Store the pipeline needs
type RecordingStore interface {
	SaveRecording(rec types.Recording) error
}

// encodeJob carries one finalized capture into the encode pipeline
type encodeJob struct {
	recording   types.Recording
	capturePath string
	rawBytes    int64
	duration    time.Duration
	attempt     int
}

// Pipeline encodes finalized captures into compressed archives and
// uploads them. It runs a fixed worker pool off the live media path;
// failures retry a bounded number of times with backoff, then the
// recording is parked in the failed state for manual cleanup.
type Pipeline struct {
	store      RecordingStore
	objects    objectstore.ObjectStore
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger

	jobs chan encodeJob
	wg   sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
	retries sync.WaitGroup
}

// NewPipeline creates an encode pipeline with the given worker count
func NewPipeline(store RecordingStore, objects objectstore.ObjectStore, workers, maxRetries int, backoff time.Duration, logger zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	p := &Pipeline{
		store:      store,
		objects:    objects,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger.With().Str("component", "encode-pipeline").Logger(),
		jobs:       make(chan encodeJob, 64),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Enqueue schedules a finalized capture for encoding. Non-blocking
// when the queue has room; blocks briefly otherwise, which is fine
// because callers run on the ledger feed, not the media path.
func (p *Pipeline) Enqueue(rec types.Recording, capturePath string, rawBytes int64, duration time.Duration) {
	p.jobs <- encodeJob{
		recording:   rec,
		capturePath: capturePath,
		rawBytes:    rawBytes,
		duration:    duration,
	}
}

// Close stops accepting jobs and waits for in-flight encodes. Pending
// retries are awaited first so the job channel only closes once nothing
// can send into it anymore.
func (p *Pipeline) Close() {
	p.closeMu.Lock()
	p.closed = true
	p.closeMu.Unlock()

	p.retries.Wait()
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		p.process(job)
	}
}

func (p *Pipeline) process(job encodeJob) {
	m := metrics.Get()
	logger := p.logger.With().
		Str("recording_id", job.recording.ID).
		Str("call_id", job.recording.CallID).
		Logger()

	err := p.encodeAndUpload(&job)
	if err == nil {
		job.recording.Status = types.RecordingStatusReady
		if saveErr := p.store.SaveRecording(job.recording); saveErr != nil {
			logger.Error().Err(saveErr).Msg("failed to persist ready recording")
		}
		m.RecordEncodeSuccess(job.recording.FileSizeBytes)
		os.Remove(job.capturePath)

		logger.Info().
			Int64("encoded_bytes", job.recording.FileSizeBytes).
			Float64("compression_ratio", job.recording.CompressionRatio).
			Msg("recording archived")
		return
	}

	if job.attempt < p.maxRetries {
		p.closeMu.Lock()
		if !p.closed {
			p.retries.Add(1)
			p.closeMu.Unlock()

			job.attempt++
			m.RecordEncodeRetry()
			logger.Warn().Err(err).Int("attempt", job.attempt).Msg("encode failed, retrying")

			// Backoff grows linearly with the attempt count. The retry
			// counts against Close, which drains all pending re-sends
			// before the job channel closes.
			go func(j encodeJob) {
				defer p.retries.Done()
				time.Sleep(time.Duration(j.attempt) * p.backoff)
				p.jobs <- j
			}(job)
			return
		}
		p.closeMu.Unlock()
		// Shutting down, no retry slot left. Fall through and park the
		// recording as failed so the capture is not lost silently.
	}

	// Retries exhausted. The capture file stays on disk for manual
	// recovery, never silently deleted.
	job.recording.Status = types.RecordingStatusFailed
	if saveErr := p.store.SaveRecording(job.recording); saveErr != nil {
		logger.Error().Err(saveErr).Msg("failed to persist failed recording")
	}
	m.RecordEncodeFailure()
	logger.Error().Err(err).Msg("encode retries exhausted, recording marked failed")
}

// encodeAndUpload reads the raw capture, produces the compressed
// archive and uploads it. On success it fills in the recording's
// file metadata.
func (p *Pipeline) encodeAndUpload(job *encodeJob) error {
	f, err := os.Open(job.capturePath)
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	samples, err := readCaptureSamples(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parsing capture: %w", err)
	}

	archived := decimate2(samples)
	encoded := encodeIMABlocks(archived)

	var buf bytes.Buffer
	if err := writeArchiveWAV(&buf, encoded, uint32(len(archived))); err != nil {
		return fmt.Errorf("writing archive wav: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := job.recording.FilePath
	size := int64(buf.Len())
	if err := p.objects.Put(ctx, key, &buf, size, "audio/wav"); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}

	job.recording.FileName = path.Base(key)
	job.recording.FileSizeBytes = size
	job.recording.DurationSeconds = int(job.duration.Seconds())
	if size > 0 {
		job.recording.CompressionRatio = float64(job.rawBytes) / float64(size)
	}
	return nil
}
