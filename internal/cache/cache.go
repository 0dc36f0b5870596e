// Package cache defines the result store behind the caching executor.
package cache

import (
	"context"
	"time"
)

// Store keeps query results and per-table write generations.
type Store interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Generation returns the current write generation of table, 0 if never bumped.
	Generation(ctx context.Context, table string) (int64, error)
	// Bump advances the generation so that earlier results are no longer addressed.
	Bump(ctx context.Context, table string) error
	Close() error
}
