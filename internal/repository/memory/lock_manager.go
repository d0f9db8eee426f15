package memory

import (
	"context"
	"sync"
	"time"

	"kilroy/pkg/utils"
)

// LockManager hands out named locks that expire after a TTL. PinService takes
// one per pin id ("sync:<id>") before writing the backend document, so a
// resync sweep and a fresh drop never upload the same pin twice. An expired
// lock counts as free, which keeps a crashed sync from blocking the pin
// forever.
//
// Every acquisition gets its own token, and only that token releases it. A
// holder that outlives its TTL therefore cannot free a lock that someone
// else has since taken.
//
// Locks live in process memory and only coordinate goroutines of a single
// server.
//
// Go Learning Note — Channels for Signaling:
// done is a chan struct{} used purely as a signal. Closing it wakes every
// receiver at once, which is how Stop tells the sweeper goroutine to exit.
type LockManager struct {
	mu       sync.Mutex
	leases   map[string]lease
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

type lease struct {
	token   string
	expires time.Time
}

// NewLockManager creates a LockManager and starts a goroutine that sweeps
// expired locks every sweepInterval. A non-positive interval disables the
// sweeper; expired locks are then only reclaimed on the next AcquireLock.
func NewLockManager(sweepInterval time.Duration) *LockManager {
	lm := &LockManager{
		leases:   make(map[string]lease),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go lm.sweep(sweepInterval)
	}
	return lm
}

// AcquireLock takes key for ttl and returns the token that releases it. It
// reports false when another holder still owns an unexpired lock.
func (lm *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, held := lm.leases[key]; held && now.Before(l.expires) {
		return "", false, nil
	}
	token := utils.GenerateID()
	lm.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// ReleaseLock frees key if token still owns it. Releasing with a stale
// token, or a lock that is not held, is a no-op.
func (lm *LockManager) ReleaseLock(ctx context.Context, key, token string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, held := lm.leases[key]; held && l.token == token {
		delete(lm.leases, key)
	}
	return nil
}

// IsLocked reports whether key is held and not yet expired.
func (lm *LockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	l, held := lm.leases[key]
	return held && lm.now().Before(l.expires), nil
}

// Len returns the number of lock entries, expired ones included.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.leases)
}

// Go Learning Note — time.NewTicker and select:
// A ticker delivers on its channel at a fixed interval until stopped. The
// select waits on the tick and on done, whichever comes first, which is the
// usual shape of a cancellable periodic task. Deleting from a map while
// ranging over it is allowed by the language.
func (lm *LockManager) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.removeExpired()
		case <-lm.done:
			return
		}
	}
}

func (lm *LockManager) removeExpired() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	for key, l := range lm.leases {
		if !now.Before(l.expires) {
			delete(lm.leases, key)
		}
	}
}

// Stop ends the sweeper goroutine. It is safe to call more than once.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.done) })
}
