// Package retrycache provides the shared message-retry counter cache used
// by protocol drivers for decryption-retry loop prevention. Counters are
// keyed by message key and incremented atomically; no ordering is defined
// across distinct keys.
//
// Implementations
//
//	memorycache : in-process counters for single-node deployments and tests
//	rediscache  : Redis INCR-backed counters with TTL expiry
package retrycache

import "context"

// Cache is a key -> counter store. Implementations MUST make per-key
// operations atomic under concurrent use from multiple session tasks.
type Cache interface {
	// Incr adds one to the counter for key and returns the new value. A
	// missing key starts at zero, so the first Incr returns 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Reset clears the counter for key. Resetting a missing key is a no-op.
	Reset(ctx context.Context, key string) error
}
