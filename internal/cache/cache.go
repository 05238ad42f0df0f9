// Package cache stores analysis results keyed by document identity so a
// repeated request skips the provider round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is a TTL key-value store for serialized analysis results.
// A TTL of zero disables caching: Set becomes a no-op and Get never hits.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key derives a cache key from the attachment identity. Provider or prompt
// changes do not shift the key; callers that switch providers should flush
// or use force refresh.
func Key(attachmentID string) string {
	h := sha256.Sum256([]byte(attachmentID))
	return hex.EncodeToString(h[:])
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Delete(context.Context, string) error              { return nil }
func (Noop) Close() error                                      { return nil }

var _ Store = Noop{}

// now is swapped in tests.
var now = time.Now
