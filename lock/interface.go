package lock

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix namespaces every lock record in the store.
const KeyPrefix = "lock:"

// ErrLockNotHeld is returned by Unlock when the record is missing or owned by
// someone else. The record is left untouched in that case.
var ErrLockNotHeld = errors.New("lock not held by this owner")

// Lock is a mutual-exclusion primitive shared by every process using the same
// store. TryLock never waits: false means the resource is busy and the caller
// decides whether to retry.
type Lock interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// Factory creates a lock instance for a name.
type Factory func(name string) Lock

var (
	processID = uuid.NewString()
	ownerSeq  uint64
)

// ProcessID identifies this process among all instances sharing the store.
func ProcessID() string {
	return processID
}

// NewOwnerToken returns a token unique to this process and call, used as the
// value of a lock record.
func NewOwnerToken() string {
	return processID + "-" + strconv.FormatUint(atomic.AddUint64(&ownerSeq, 1), 10)
}
