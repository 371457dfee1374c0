// Package dedupe provides the atomic set-if-absent-with-expiry gate consulted
// before enqueueing a job that carries a dedupe key.
package dedupe

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInvalidKey is returned when a key is empty or whitespace-only. Key
// validation happens locally, before any backend round trip.
var ErrInvalidKey = errors.New("dedupe key cannot be empty or whitespace")

// Gate is the deduplication contract.
//
// TrySetKey is the only operation callers may rely on for correctness: it is
// a single conditional-set-with-expiry at the backend, atomic across
// concurrent callers. CheckKey followed by TrySetKey is inherently racy and
// must never be used as the sole dedupe mechanism; CheckKey and DeleteKey
// exist for observability and test teardown.
type Gate interface {
	// TrySetKey returns true iff the key was absent and this caller now
	// holds it for the TTL window.
	TrySetKey(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// CheckKey reports whether the key currently exists.
	CheckKey(ctx context.Context, key string) (bool, error)

	// DeleteKey removes the key. Deleting a missing key is not an error.
	DeleteKey(ctx context.Context, key string) error

	// TTL returns the remaining lifetime of the key, or false if the key
	// does not exist or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}

// validateKey rejects empty and whitespace-only keys.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
