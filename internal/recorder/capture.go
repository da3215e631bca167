package recorder

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// captureChanSize holds about two seconds of 20ms audio frames
	captureChanSize = 128

	// captureFlushSize is the number of buffered bytes before a disk
	// flush; 16000 bytes is one second of PCM16 at 8kHz
	captureFlushSize = 16000
)

// Capture taps the media path of one recorded call and writes the raw
// audio to a PCM16 8kHz mono WAV file. It runs a dedicated goroutine
// fed through a buffered channel.
//
// Feed is non-blocking: if the write goroutine falls behind, frames
// are dropped rather than stalling the media path. Stop must be
// called exactly once; Feed may be called concurrently.
type Capture struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	dataSize uint32
	stopped  bool
	logger   zerolog.Logger

	frames chan []int16
	done   chan struct{}
}

// NewCapture creates the capture file and starts the write goroutine.
// Parent directories are created as needed.
func NewCapture(filePath string, logger zerolog.Logger) (*Capture, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	// Placeholder header, rewritten on Stop with the real data size.
	if err := writeCaptureHeader(f, 0); err != nil {
		f.Close()
		os.Remove(filePath)
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	c := &Capture{
		file:     f,
		filePath: filePath,
		logger:   logger.With().Str("component", "capture").Str("file", filePath).Logger(),
		frames:   make(chan []int16, captureChanSize),
		done:     make(chan struct{}),
	}

	go c.writeLoop()

	c.logger.Info().Msg("call capture started")
	return c, nil
}

// Feed queues a frame of PCM samples for capture. The slice is copied
// so the caller's buffer can be reused. Drops the frame when the
// writer is behind. Safe to call concurrently with Stop; frames fed
// after Stop are discarded.
func (c *Capture) Feed(samples []int16) {
	if len(samples) == 0 {
		return
	}

	buf := make([]int16, len(samples))
	copy(buf, samples)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	select {
	case c.frames <- buf:
	default:
		// Writer behind, drop rather than block the media path.
	}
}

// Stop drains pending frames, rewrites the WAV header with the real
// data size and closes the file. Returns the path, the raw byte size
// of the audio data and its duration.
func (c *Capture) Stop() (filePath string, rawBytes int64, duration time.Duration) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return c.filePath, int64(c.dataSize), 0
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.frames)
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.file.Seek(0, 0); err != nil {
		c.logger.Error().Err(err).Msg("failed to seek for wav header rewrite")
	} else if err := writeCaptureHeader(c.file, c.dataSize); err != nil {
		c.logger.Error().Err(err).Msg("failed to rewrite wav header")
	}
	c.file.Close()

	// 16000 bytes per second at 8kHz PCM16 mono.
	duration = time.Duration(c.dataSize) * time.Second / (captureSampleRate * 2)

	c.logger.Info().
		Int64("total_bytes", int64(c.dataSize)).
		Dur("duration", duration).
		Msg("call capture stopped")

	return c.filePath, int64(c.dataSize), duration
}

// FilePath returns the path of the capture file
func (c *Capture) FilePath() string {
	return c.filePath
}

func (c *Capture) writeLoop() {
	defer close(c.done)

	writeBuf := make([]byte, 0, captureFlushSize)

	flush := func() {
		if len(writeBuf) == 0 {
			return
		}
		n, err := c.file.Write(writeBuf)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to write capture data")
		}
		c.mu.Lock()
		c.dataSize += uint32(n)
		c.mu.Unlock()
		writeBuf = writeBuf[:0]
	}

	for frame := range c.frames {
		for _, s := range frame {
			writeBuf = binary.LittleEndian.AppendUint16(writeBuf, uint16(s))
		}
		if len(writeBuf) >= captureFlushSize {
			flush()
		}
	}

	flush()
}

// CapturePath returns the organized local path for a call capture:
// $captureDir/YYYY/MM/DD/call_{id}.wav
func CapturePath(captureDir, callID string, t time.Time) string {
	return filepath.Join(
		captureDir,
		t.Format("2006"),
		t.Format("01"),
		t.Format("02"),
		fmt.Sprintf("call_%s.wav", callID),
	)
}
