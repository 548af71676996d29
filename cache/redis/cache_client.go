package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arunvm123/flashdeal/cache"
	"github.com/arunvm123/flashdeal/lock"
	"github.com/arunvm123/flashdeal/metrics"
	"github.com/arunvm123/flashdeal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	mutexRetryDelay   = 50 * time.Millisecond
	mutexMaxAttempts  = 20
	rebuildLockPrefix = "rebuild:"
	mutexLockPrefix   = "mutex:"
)

// CacheClient is the cache-aside layer in front of the backing store.
type CacheClient struct {
	client  *redis.Client
	pool    *worker.Pool
	locks   lock.Factory
	breaker *gobreaker.CircuitBreaker
	sf      singleflight.Group
	log     *logrus.Entry
	now     func() time.Time
}

func NewCacheClient(client *redis.Client, pool *worker.Pool, locks lock.Factory, log *logrus.Entry) *CacheClient {
	st := gobreaker.Settings{
		Name:        "RedisCacheBreaker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		// a caller giving up says nothing about Redis health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &CacheClient{
		client:  client,
		pool:    pool,
		locks:   locks,
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for logical expiry.
func (c *CacheClient) WithClock(now func() time.Time) *CacheClient {
	c.now = now
	return c
}

// Set stores value as JSON with an absolute TTL.
func (c *CacheClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// SetWithLogicalExpire stores value wrapped in an Entry without a store TTL.
func SetWithLogicalExpire[T any](ctx context.Context, c *CacheClient, key string, value T, logicalTTL time.Duration) error {
	entry := cache.Entry[T]{
		Data:       value,
		ExpireTime: c.now().Add(logicalTTL),
	}
	return c.Set(ctx, key, entry, 0)
}

// Delete removes a key, used after writes to the backing store.
func (c *CacheClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present
func (c *CacheClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache key %s: %w", key, err)
	}
	return n == 1, nil
}

// get reads a raw value through the breaker. found is false on a store miss.
func (c *CacheClient) get(ctx context.Context, key string) (value string, found bool, err error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		v, err := c.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	if res == nil {
		return "", false, nil
	}
	return res.(string), true, nil
}

// load calls the loader and normalises the not-found forms to ErrNotFound.
func load[T any, ID any](ctx context.Context, loader cache.Loader[T, ID], id ID) (*T, error) {
	v, err := loader(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	if v == nil {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

// QueryWithPassThrough is a cache-aside read that caches misses as a null
// marker so repeated lookups of missing ids stop reaching the loader.
func QueryWithPassThrough[T any, ID any](
	ctx context.Context, c *CacheClient, keyPrefix string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)

	raw, found, err := c.get(ctx, key)
	if err != nil {
		c.log.Errorf("Cache read failed for %s, falling back to store: %v", key, err)
		metrics.CacheRequests.WithLabelValues("passthrough", "error").Inc()
		return load(ctx, loader, id)
	}

	if found && raw != cache.NullValue {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			metrics.CacheRequests.WithLabelValues("passthrough", "hit").Inc()
			return &v, nil
		}
		c.log.Errorf("Corrupted cache entry %s, treating as miss: %v", key, err)
	} else if found {
		metrics.CacheRequests.WithLabelValues("passthrough", "null").Inc()
		return nil, cache.ErrNotFound
	}

	metrics.CacheRequests.WithLabelValues("passthrough", "miss").Inc()
	v, err := load(ctx, loader, id)
	if errors.Is(err, cache.ErrNotFound) {
		if err := c.client.Set(ctx, key, cache.NullValue, cache.NullTTL).Err(); err != nil {
			c.log.Warnf("Failed to cache null marker for %s: %v", key, err)
		}
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.log.Warnf("Failed to backfill %s: %v", key, err)
	}
	return v, nil
}

// QueryWithLogicalExpire reads a pre-warmed hot key. Stale entries are
// returned immediately while one caller across all instances rebuilds the key
// in the background. Cold keys are not backfilled.
func QueryWithLogicalExpire[T any, ID any](
	ctx context.Context, c *CacheClient, keyPrefix string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)

	raw, found, err := c.get(ctx, key)
	if err != nil {
		c.log.Errorf("Cache read failed for %s, falling back to store: %v", key, err)
		metrics.CacheRequests.WithLabelValues("logical", "error").Inc()
		return load(ctx, loader, id)
	}
	if !found || raw == cache.NullValue {
		metrics.CacheRequests.WithLabelValues("logical", "miss").Inc()
		return nil, cache.ErrNotFound
	}

	var entry cache.Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Errorf("Corrupted cache entry %s, scheduling rebuild: %v", key, err)
		metrics.CacheRequests.WithLabelValues("logical", "corrupt").Inc()
		c.rebuild(ctx, key, func(ctx context.Context) error {
			return rebuildEntry(ctx, c, key, id, loader, ttl)
		}, nil)
		return nil, cache.ErrNotFound
	}

	if entry.Fresh(c.now()) {
		metrics.CacheRequests.WithLabelValues("logical", "hit").Inc()
		return &entry.Data, nil
	}

	metrics.CacheRequests.WithLabelValues("logical", "stale").Inc()
	c.rebuild(ctx, key, func(ctx context.Context) error {
		return rebuildEntry(ctx, c, key, id, loader, ttl)
	}, func(ctx context.Context) bool {
		return isStale[T](ctx, c, key)
	})

	return &entry.Data, nil
}

// isStale re-reads the key after the rebuild lock is taken. Anything other
// than a fresh, decodable entry counts as stale.
func isStale[T any](ctx context.Context, c *CacheClient, key string) bool {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return true
	}
	var entry cache.Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return true
	}
	return !entry.Fresh(c.now())
}

func rebuildEntry[T any, ID any](
	ctx context.Context, c *CacheClient, key string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) error {
	v, err := load(ctx, loader, id)
	if errors.Is(err, cache.ErrNotFound) {
		return c.Delete(ctx, key)
	}
	if err != nil {
		return err
	}
	return SetWithLogicalExpire(ctx, c, key, *v, ttl)
}

// rebuild takes the rebuild lock for key and, if stillNeeded agrees, runs task
// on the pool. The lock is released when the task ends, or immediately when
// no task is submitted. Losing the lock race means another caller rebuilds.
func (c *CacheClient) rebuild(
	ctx context.Context, key string, task func(ctx context.Context) error, stillNeeded func(ctx context.Context) bool,
) {
	l := c.locks(rebuildLockPrefix + key)
	ok, err := l.TryLock(ctx, cache.RebuildLockTTL)
	if err != nil {
		c.log.Warnf("Failed to take rebuild lock for %s: %v", key, err)
		return
	}
	if !ok {
		return
	}

	release := func(ctx context.Context) {
		if err := l.Unlock(ctx); err != nil {
			c.log.Warnf("Failed to release rebuild lock for %s: %v", key, err)
		}
	}

	if stillNeeded != nil && !stillNeeded(ctx) {
		release(ctx)
		return
	}

	err = c.pool.Submit(func(ctx context.Context) {
		defer release(context.WithoutCancel(ctx))
		defer func() {
			if r := recover(); r != nil {
				c.log.Errorf("Cache rebuild for %s panicked: %v", key, r)
				metrics.CacheRebuilds.WithLabelValues("error").Inc()
			}
		}()

		if err := task(ctx); err != nil {
			c.log.Errorf("Cache rebuild for %s failed: %v", key, err)
			metrics.CacheRebuilds.WithLabelValues("error").Inc()
			return
		}
		metrics.CacheRebuilds.WithLabelValues("ok").Inc()
	})
	if err != nil {
		c.log.Warnf("Failed to submit rebuild for %s: %v", key, err)
		metrics.CacheRebuilds.WithLabelValues("rejected").Inc()
		release(ctx)
	}
}

// QueryWithMutex is a pass-through read whose miss path is serialised by the
// distributed lock, so only one caller per key loads from the store. Callers
// in this process share one attempt; the others poll the cache for a bounded
// time and then give up with ErrBusy.
func QueryWithMutex[T any, ID any](
	ctx context.Context, c *CacheClient, keyPrefix string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) (*T, error) {
	key := keyPrefix + fmt.Sprint(id)

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		for attempt := 0; attempt < mutexMaxAttempts; attempt++ {
			v, hit, err := readCached[T](ctx, c, key)
			if err != nil {
				c.log.Errorf("Cache read failed for %s, falling back to store: %v", key, err)
				return load(ctx, loader, id)
			}
			if hit {
				return nullAsNotFound(v)
			}

			l := c.locks(mutexLockPrefix + key)
			ok, err := l.TryLock(ctx, cache.RebuildLockTTL)
			if err != nil {
				return nil, err
			}
			if ok {
				return loadUnderLock(ctx, c, l, key, id, loader, ttl)
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(mutexRetryDelay):
			}
		}
		return nil, cache.ErrBusy
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// readCached reports hit=true for both payloads and null markers. A null
// marker comes back as a nil value.
func readCached[T any](ctx context.Context, c *CacheClient, key string) (*T, bool, error) {
	raw, found, err := c.get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if raw == cache.NullValue {
		return nil, true, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.log.Errorf("Corrupted cache entry %s, treating as miss: %v", key, err)
		return nil, false, nil
	}
	return &v, true, nil
}

func loadUnderLock[T any, ID any](
	ctx context.Context, c *CacheClient, l lock.Lock, key string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) (*T, error) {
	defer func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			c.log.Warnf("Failed to release mutex lock for %s: %v", key, err)
		}
	}()

	// another holder may have filled the key before we got the lock
	if v, hit, err := readCached[T](ctx, c, key); err == nil && hit {
		return nullAsNotFound(v)
	}

	v, err := load(ctx, loader, id)
	if errors.Is(err, cache.ErrNotFound) {
		if err := c.client.Set(ctx, key, cache.NullValue, cache.NullTTL).Err(); err != nil {
			c.log.Warnf("Failed to cache null marker for %s: %v", key, err)
		}
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.log.Warnf("Failed to backfill %s: %v", key, err)
	}
	return v, nil
}

// Warm loads id and stores it with a logical expiry, for keys served by
// QueryWithLogicalExpire.
func Warm[T any, ID any](
	ctx context.Context, c *CacheClient, keyPrefix string, id ID, loader cache.Loader[T, ID], ttl time.Duration,
) error {
	return rebuildEntry(ctx, c, keyPrefix+fmt.Sprint(id), id, loader, ttl)
}

func nullAsNotFound[T any](v *T) (*T, error) {
	if v == nil {
		return nil, cache.ErrNotFound
	}
	return v, nil
}
