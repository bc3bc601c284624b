package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

const (
	// DefaultCleanupInterval is how often idle sessions are swept.
	DefaultCleanupInterval = time.Minute

	// DefaultIdleTimeout is how long a session may sit idle before eviction.
	DefaultIdleTimeout = time.Hour
)

// EvictFunc is called for every evicted session after it ended and was
// removed from the registry, while the customer's lock is still held.
type EvictFunc func(ctx context.Context, s *Session)

// CleanupService periodically evicts idle sessions.
type CleanupService struct {
	registry *Registry
	locks    *LockManager
	idle     time.Duration
	interval time.Duration
	onEvict  EvictFunc
	logger   *logger.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewCleanupService creates a cleanup service.
func NewCleanupService(registry *Registry, locks *LockManager, idle, interval time.Duration, onEvict EvictFunc, log *logger.Logger) *CleanupService {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		registry: registry,
		locks:    locks,
		idle:     idle,
		interval: interval,
		onEvict:  onEvict,
		logger:   log.Named("cleanup"),
	}
}

// Start begins the periodic sweep.
func (c *CleanupService) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(cleanupCtx)

	return nil
}

// Stop halts the sweep and waits for it to exit.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the sweep loop is active.
func (c *CleanupService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CleanupService) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup service stopping")
			return
		case <-ticker.C:
			start := time.Now()
			if removed := c.Sweep(ctx); removed > 0 {
				c.logger.Info("evicted idle sessions",
					zap.Int("removed", removed),
					zap.Int("remaining", c.registry.Len()),
					zap.Duration("duration", time.Since(start)),
				)
			}
		}
	}
}

// Sweep evicts every session idle for longer than the idle timeout and
// returns how many were removed. Each session is handled under its own
// lock, one at a time. Sessions that are busy are skipped until the next
// sweep.
func (c *CleanupService) Sweep(ctx context.Context) int {
	removed := 0
	for _, key := range c.registry.Keys() {
		s, ok := c.registry.Get(key)
		if !ok || !s.IdleFor(c.idle) {
			continue
		}

		release, err := c.locks.Acquire(ctx, key)
		if err != nil {
			if errors.Is(err, model.ErrBusy) {
				continue
			}
			return removed
		}
		if c.evictLocked(ctx, key) {
			removed++
		}
		release()
	}
	return removed
}

func (c *CleanupService) evictLocked(ctx context.Context, key string) bool {
	// Re-read under the lock: a message may have arrived or ended the session.
	s, ok := c.registry.Get(key)
	if !ok || !s.IdleFor(c.idle) {
		return false
	}
	s.End()
	if !c.registry.Remove(key, s) {
		return false
	}
	metrics.SessionsEvictedTotal.WithLabelValues("idle").Inc()
	c.logger.Debug("session evicted",
		zap.String("customer_id", key),
		zap.String("conversation_id", s.ConversationID),
		zap.Time("last_activity", s.LastActivity()),
	)
	if c.onEvict != nil {
		c.onEvict(ctx, s)
	}
	return true
}
