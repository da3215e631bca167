package storage

import (
	"context"
	"time"

	"github.com/pannenhilfe24/callcore/internal/types"
	"github.com/rs/zerolog"
)

// CallRecordFilter narrows historical call listings for the admin surface.
// Dates are YYYY-MM-DD partition keys, inclusive on both ends.
type CallRecordFilter struct {
	StartDate string
	EndDate   string
	Status    string
	Search    string // matched against caller/receiver display names
	Limit     int
}

// Store defines the persistence interface for finished calls and recordings
type Store interface {
	SaveCallRecord(record types.CallRecord) error
	ListCallRecords(filter CallRecordFilter) ([]types.CallRecord, error)

	SaveRecording(rec types.Recording) error
	GetRecording(id string) (*types.Recording, error)
	ListExpiredRecordings(cutoff time.Time) ([]types.Recording, error)

	TruncateAll() error
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
