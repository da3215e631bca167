package types

import "time"

// RecordingStatus represents the archival pipeline state of a recording.
// Transitions are monotonic: recording -> processing -> ready|failed -> deleted.
type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"  // Capture in progress on a live call
	RecordingStatusProcessing RecordingStatus = "processing" // Capture finalized, encode job queued or running
	RecordingStatusReady      RecordingStatus = "ready"      // Archive uploaded, playable
	RecordingStatusFailed     RecordingStatus = "failed"     // Encode/upload retries exhausted
	RecordingStatusDeleted    RecordingStatus = "deleted"    // Removed by retention policy
)

// Recording is the archival artifact for one recorded call. Exactly one
// Recording exists per call that had recording enabled at creation.
type Recording struct {
	ID               string          `json:"recordingId" dynamodbav:"RecordingID"`
	CallID           string          `json:"callId" dynamodbav:"CallID"`
	FilePath         string          `json:"filePath" dynamodbav:"FilePath"` // object store key once uploaded
	FileName         string          `json:"fileName" dynamodbav:"FileName"`
	FileSizeBytes    int64           `json:"fileSizeBytes" dynamodbav:"FileSizeBytes"`
	DurationSeconds  int             `json:"durationSeconds" dynamodbav:"DurationSeconds"`
	Status           RecordingStatus `json:"status" dynamodbav:"Status"`
	CompressionRatio float64         `json:"compressionRatio" dynamodbav:"CompressionRatio"` // raw bytes / encoded bytes
	PlayCount        int             `json:"playCount" dynamodbav:"PlayCount"`
	LastPlayedAt     *time.Time      `json:"lastPlayedAt,omitempty" dynamodbav:"LastPlayedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt" dynamodbav:"CreatedAt"`
}

// NextRecordingStatus reports whether moving from to is a legal monotonic step.
func NextRecordingStatus(from, to RecordingStatus) bool {
	switch from {
	case RecordingStatusRecording:
		return to == RecordingStatusProcessing
	case RecordingStatusProcessing:
		return to == RecordingStatusReady || to == RecordingStatusFailed
	case RecordingStatusReady, RecordingStatusFailed:
		return to == RecordingStatusDeleted
	}
	return false
}
