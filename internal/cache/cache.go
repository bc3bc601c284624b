// Package cache provides a generic time-boxed cache cell for externally
// sourced values with single-flight refresh.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/ordering-assistant/internal/clock"
)

// ErrEmpty is returned when the cache has never been populated and the fetch failed.
var ErrEmpty = errors.New("cache empty")

// FetchFunc loads a fresh value from the source.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Policy decides what concurrent callers see while an expired entry is refreshed.
type Policy int

const (
	// PolicyWait makes every caller of an expired entry join the single
	// in-flight fetch and receive its result.
	PolicyWait Policy = iota

	// PolicyServeStale returns the previous value, tagged stale, to callers
	// while one background fetch refreshes the entry. Callers of a never
	// populated cache still wait.
	PolicyServeStale
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "wait":
		return PolicyWait, nil
	case "stale":
		return PolicyServeStale, nil
	default:
		return PolicyWait, fmt.Errorf("unknown cache policy %q", s)
	}
}

// Result is a value returned by Get.
type Result[T any] struct {
	Value T
	// Stale is set when Value is the last good value served after a failed
	// or still running refresh.
	Stale bool
	// FetchedAt is when Value was fetched from the source.
	FetchedAt time.Time
	// Generation increments with every successful fetch.
	Generation uint64
}

// Options configures a Cache.
type Options struct {
	TTL    time.Duration
	Policy Policy
	Clock  clock.Clock
	// OnFetch is called after every underlying fetch.
	OnFetch func(err error)
	// FetchTimeout bounds one underlying fetch. Zero means 30s.
	FetchTimeout time.Duration
}

// Cache holds one value with an expiry.
type Cache[T any] struct {
	fetch   FetchFunc[T]
	ttl     time.Duration
	policy  Policy
	clock   clock.Clock
	onFetch func(error)
	timeout time.Duration

	group singleflight.Group

	mu        sync.Mutex
	value     T
	has       bool
	fetchedAt time.Time
	expiry    time.Time
	// epoch increments on Invalidate so fetches started before it are not reused.
	epoch      uint64
	generation uint64
}

// New creates a cache around fetch.
func New[T any](fetch FetchFunc[T], opts Options) *Cache[T] {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Cache[T]{
		fetch:   fetch,
		ttl:     opts.TTL,
		policy:  opts.Policy,
		clock:   opts.Clock,
		onFetch: opts.OnFetch,
		timeout: opts.FetchTimeout,
	}
}

// Get returns the cached value while fresh, otherwise refreshes it.
//
// If the refresh fails and a previous value exists it is returned with
// Stale set and a nil error. If the cache was never populated the fetch
// error is returned wrapped with ErrEmpty.
//
// The shared fetch is detached from ctx: a caller that gives up gets
// ctx.Err() without failing the fetch for the callers that joined it.
func (c *Cache[T]) Get(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	now := c.clock.Now()
	if c.has && now.Before(c.expiry) {
		res := c.resultLocked(false)
		c.mu.Unlock()
		return res, nil
	}
	epoch := c.epoch
	if c.has && c.policy == PolicyServeStale {
		res := c.resultLocked(true)
		c.mu.Unlock()
		c.group.DoChan(c.key(epoch), func() (any, error) {
			return c.refresh(context.WithoutCancel(ctx), epoch)
		})
		return res, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(c.key(epoch), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), epoch)
	})
	var err error
	select {
	case r := <-ch:
		if r.Err == nil {
			return r.Val.(Result[T]), nil
		}
		err = r.Err
	case <-ctx.Done():
		var zero Result[T]
		return zero, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.has {
		return c.resultLocked(true), nil
	}
	var zero Result[T]
	return zero, fmt.Errorf("%w: %w", ErrEmpty, err)
}

// Invalidate forces the next Get to refetch. A fetch already running is not
// shared with callers arriving after the invalidation.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry = time.Time{}
	c.epoch++
}

func (c *Cache[T]) refresh(ctx context.Context, epoch uint64) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	v, err := c.fetch(ctx)
	if c.onFetch != nil {
		c.onFetch(err)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	res := Result[T]{Value: v, FetchedAt: now}
	if epoch != c.epoch {
		// Invalidated while fetching: hand the value to the callers that
		// joined this flight but keep the cell expired.
		return res, nil
	}
	c.value = v
	c.has = true
	c.fetchedAt = now
	c.expiry = now.Add(c.ttl)
	c.generation++
	res.Generation = c.generation
	return res, nil
}

func (c *Cache[T]) resultLocked(stale bool) Result[T] {
	return Result[T]{
		Value:      c.value,
		Stale:      stale,
		FetchedAt:  c.fetchedAt,
		Generation: c.generation,
	}
}

func (c *Cache[T]) key(epoch uint64) string {
	return strconv.FormatUint(epoch, 10)
}
