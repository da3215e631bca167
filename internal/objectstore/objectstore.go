// Package objectstore abstracts the archival blob store. Reads happen
// exclusively through time-limited signed URLs or authorized streams; there
// are no public object paths.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound means no object exists under the given key.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the write/read surface used by the recording pipeline and
// the playback gateway.
type ObjectStore interface {
	// Put uploads an object under the given key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// PresignGet returns a time-limited signed download URL for the key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Open returns a reader over the object and its size.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
