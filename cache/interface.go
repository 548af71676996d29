package cache

import (
	"context"
	"errors"
	"time"
)

// Key prefixes and TTLs shared by the service
const (
	ShopKeyPrefix    = "cache:shop:"
	HotShopKeyPrefix = "cache:shop:hot:"

	// NullValue marks an id confirmed absent in the backing store.
	NullValue = ""
	NullTTL   = 2 * time.Minute

	// RebuildLockTTL bounds how long a crashed rebuilder can block others.
	RebuildLockTTL = 10 * time.Second
)

var (
	// ErrNotFound means the value is absent: a cached null marker, a loader
	// miss, or a cold key on the logical-expiry path.
	ErrNotFound = errors.New("not found")

	// ErrBusy means another caller holds the rebuild lock and the bounded
	// wait ran out.
	ErrBusy = errors.New("cache rebuild in progress, try again")
)

// Entry wraps a payload with its logical expiry. The store keeps the entry
// without TTL; staleness is decided by comparing ExpireTime with the clock.
type Entry[T any] struct {
	Data       T         `json:"data"`
	ExpireTime time.Time `json:"expireTime"`
}

// Fresh reports whether the entry is still valid at now.
func (e *Entry[T]) Fresh(now time.Time) bool {
	return e.ExpireTime.After(now)
}

// Loader reads one entity from the backing store. A nil value with a nil
// error, or an error matching ErrNotFound, means the entity does not exist.
type Loader[T any, ID any] func(ctx context.Context, id ID) (*T, error)
