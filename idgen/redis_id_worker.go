package idgen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BeginTimestamp is 2022-01-01T00:00:00Z.
	BeginTimestamp int64 = 1640995200

	countBits = 32

	// KeyPrefix namespaces the per-day counters.
	KeyPrefix = "icr:"
)

// RedisIDWorker allocates 64-bit ids: seconds since BeginTimestamp in the high
// bits, a per-name per-day Redis counter in the low 32 bits.
type RedisIDWorker struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisIDWorker(client *redis.Client) *RedisIDWorker {
	return &RedisIDWorker{
		client: client,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (w *RedisIDWorker) WithClock(now func() time.Time) *RedisIDWorker {
	w.now = now
	return w
}

// NextID returns the next id of the named sequence.
func (w *RedisIDWorker) NextID(ctx context.Context, name string) (int64, error) {
	now := w.now().UTC()
	elapsed := now.Unix() - BeginTimestamp

	count, err := w.client.Incr(ctx, CounterKey(name, now)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment id counter for %s: %w", name, err)
	}

	return elapsed<<countBits | count, nil
}

// CounterKey is the Redis key counting ids of name issued on the day of t.
func CounterKey(name string, t time.Time) string {
	return KeyPrefix + name + ":" + t.UTC().Format("20060102")
}

// split returns the timestamp and sequence parts of an id.
func split(id int64) (time.Time, int64) {
	seconds := id>>countBits + BeginTimestamp
	return time.Unix(seconds, 0).UTC(), id & (1<<countBits - 1)
}
