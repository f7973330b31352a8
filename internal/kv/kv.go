// Package kv provides the key-value store shared across digest runs.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

// Store is the persistence contract the pipeline consumes. List indexes
// follow Redis semantics: 0 is the head, negative values count from the tail.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX atomically claims every absent key in one batch. The result
	// reports, per key, whether this call created it.
	SetNX(ctx context.Context, keys []string, value string, ttl time.Duration) ([]bool, error)
	Del(ctx context.Context, key string) error
	LPush(ctx context.Context, key string, values ...string) (int, error)
	LTrim(ctx context.Context, key string, start, stop int) error
	LRange(ctx context.Context, key string, start, stop int) ([]string, error)
	Close() error
}

// normalizeRange converts Redis-style inclusive bounds to slice bounds over
// a list of length n. ok is false when the range is empty.
func normalizeRange(start, stop, n int) (lo, hi int, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
