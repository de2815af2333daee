package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the per-session write lock could not be
// acquired before the wait budget ran out.
var ErrLockTimeout = errors.New("checkpoint lock wait timed out")

// keyedLocks hands out one single-slot semaphore per key. Semaphores rather
// than plain mutexes because acquisition must give up when the hook
// deadline nears instead of blocking the host.
type keyedLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{sems: make(map[string]*semaphore.Weighted)}
}

func (kl *keyedLocks) get(key string) *semaphore.Weighted {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	sem, ok := kl.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		kl.sems[key] = sem
	}
	return sem
}

// acquire takes the lock for key, waiting at most wait. The returned release
// must be called exactly once. A caller whose own context dies gets that
// context's error; running out of wait budget gets ErrLockTimeout.
func (kl *keyedLocks) acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error) {
	sem := kl.get(key)
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrLockTimeout, wait)
	}
	return func() { sem.Release(1) }, nil
}
