package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
	"github.com/koteev-m/bot-for-order-sub001/internal/obs"
)

const lockPollInterval = 25 * time.Millisecond

// LockManager provides named mutual exclusion across processes on top of the
// shared TTL store. Every lock carries a lease: if the holder crashes or
// stalls past the lease, the key expires and ownership silently moves on.
// Critical sections must therefore finish well within the lease.
type LockManager struct {
	store   ReserveStore
	metrics *obs.Metrics
}

func NewLockManager(store ReserveStore, metrics *obs.Metrics) *LockManager {
	return &LockManager{store: store, metrics: metrics}
}

// WithLock runs fn under the named lock. wait bounds acquisition (0 means a
// single non-blocking try) and lease bounds how long the lock survives a
// stalled holder. Returns domain.ErrLockUnavailable when the lock cannot be
// acquired in time. The unlock is owner-checked: if the lease already
// expired and someone else holds the lock, it is left untouched.
func (m *LockManager) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	if lease <= 0 {
		return fmt.Errorf("lock lease must be positive")
	}

	storageKey := "lock:" + key
	token := newID()

	start := time.Now()
	deadline := start.Add(wait)

	for {
		ok, err := m.store.SetIfAbsent(ctx, storageKey, token, lease)
		if err != nil {
			m.countLock("error")
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if wait <= 0 || !time.Now().Add(lockPollInterval).Before(deadline) {
			m.countLock("timeout")
			return domain.ErrLockUnavailable
		}
		select {
		case <-ctx.Done():
			m.countLock("timeout")
			return errors.Join(domain.ErrLockUnavailable, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	m.countLock("acquired")
	if m.metrics != nil {
		m.metrics.LockWaitMS.Observe(float64(time.Since(start).Milliseconds()))
	}

	defer func() {
		// Best effort: a failed owner-checked delete means the lease expired
		// and the key either vanished or belongs to a new holder.
		_, _ = m.store.DeleteIfValue(context.WithoutCancel(ctx), storageKey, token)
	}()

	return fn(ctx)
}

func (m *LockManager) countLock(result string) {
	if m.metrics != nil {
		m.metrics.LockAcquireTotal.WithLabelValues(result).Inc()
	}
}
