package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/arunvm123/flashdeal/lock"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the record only when it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

// SimpleLock is a lock record under lock:<name> whose value is an owner token.
// Each instance carries its own token, so one instance must not be shared by
// concurrent holders.
type SimpleLock struct {
	client *redis.Client
	key    string
	token  string
}

func NewSimpleLock(client *redis.Client, name string) *SimpleLock {
	return &SimpleLock{
		client: client,
		key:    lock.KeyPrefix + name,
		token:  lock.NewOwnerToken(),
	}
}

// NewFactory returns a lock.Factory bound to the client.
func NewFactory(client *redis.Client) lock.Factory {
	return func(name string) lock.Lock {
		return NewSimpleLock(client, name)
	}
}

// TryLock performs one SET NX EX. It returns false on contention.
func (l *SimpleLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock releases the record if this instance still owns it.
func (l *SimpleLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return lock.ErrLockNotHeld
	}
	return nil
}
