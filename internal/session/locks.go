package session

import (
	"context"
	"sync"
	"time"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// LockManager hands out one mutex per customer identifier. Locks are
// created on first use and dropped once no holder or waiter references them.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

// NewLockManager creates a lock manager. A positive wait bounds how long
// Acquire blocks before returning model.ErrBusy; zero waits indefinitely.
func NewLockManager(wait time.Duration) *LockManager {
	return &LockManager{locks: make(map[string]*keyLock), wait: wait}
}

// Acquire locks key and returns its release function. It fails with
// model.ErrBusy when the bounded wait elapses, or the context error when
// ctx is done first.
func (m *LockManager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	var timeout <-chan time.Time
	if m.wait > 0 {
		t := time.NewTimer(m.wait)
		defer t.Stop()
		timeout = t.C
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		metrics.LockWaitDuration.Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				m.unref(key, l)
			})
		}, nil
	case <-timeout:
		m.unref(key, l)
		metrics.BusyRejectionsTotal.Inc()
		return nil, model.ErrBusy
	case <-ctx.Done():
		m.unref(key, l)
		return nil, ctx.Err()
	}
}

func (m *LockManager) unref(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Len returns the number of live locks.
func (m *LockManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
