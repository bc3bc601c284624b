package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
)

func counter(values ...int) (cache.FetchFunc[int], *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if int(n) <= len(values) {
			return values[n-1], nil
		}
		return values[len(values)-1], nil
	}, &calls
}

func TestCache_ServesFreshValueWithoutRefetch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fetch, calls := counter(1, 2)
	c := cache.New(fetch, cache.Options{TTL: time.Minute, Clock: clk})

	res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	assert.False(t, res.Stale)

	clk.Advance(59 * time.Second)
	res, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_RefetchesAfterExpiry(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fetch, calls := counter(1, 2)
	c := cache.New(fetch, cache.Options{TTL: time.Minute, Clock: clk})

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clk.Advance(time.Minute)
	res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)
	assert.Equal(t, uint64(2), res.Generation)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fetch, calls := counter(1, 2)
	c := cache.New(fetch, cache.Options{TTL: time.Hour, Clock: clk})

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_FailedRefreshServesLastGoodValueAsStale(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fail := false
	c := cache.New(func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("store down")
		}
		return "inventory-v1", nil
	}, cache.Options{TTL: time.Minute, Clock: clk})

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	fail = true
	clk.Advance(2 * time.Minute)
	res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inventory-v1", res.Value)
	assert.True(t, res.Stale)
}

func TestCache_FailedFirstFetchReturnsErrEmpty(t *testing.T) {
	c := cache.New(func(ctx context.Context) ([]string, error) {
		return nil, errors.New("store down")
	}, cache.Options{TTL: time.Minute})

	res, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrEmpty)
	assert.Nil(t, res.Value)
}

func TestCache_SingleFlightOnExpiredEntry(t *testing.T) {
	const callers = 50

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := cache.New(func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}, cache.Options{TTL: time.Hour})

	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Get(context.Background())
			if err == nil {
				results[i] = res.Value
			}
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCache_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := cache.New(func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, cache.Options{TTL: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		firstErr <- err
	}()
	<-started

	second := make(chan cache.Result[int], 1)
	secondErr := make(chan error, 1)
	go func() {
		res, err := c.Get(context.Background())
		second <- res
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, 7, (<-second).Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_ServeStalePolicyReturnsPreviousValueDuringRefresh(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var calls atomic.Int32
	release := make(chan struct{})
	c := cache.New(func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if n > 1 {
			<-release
		}
		return int(n), nil
	}, cache.Options{TTL: time.Minute, Clock: clk, Policy: cache.PolicyServeStale})

	res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)

	clk.Advance(2 * time.Minute)
	for i := 0; i < 10; i++ {
		res, err = c.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Value)
		assert.True(t, res.Stale)
	}

	close(release)
	assert.Eventually(t, func() bool {
		res, _ := c.Get(context.Background())
		return res.Value == 2 && !res.Stale
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestParsePolicy(t *testing.T) {
	p, err := cache.ParsePolicy("stale")
	require.NoError(t, err)
	assert.Equal(t, cache.PolicyServeStale, p)

	p, err = cache.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, cache.PolicyWait, p)

	_, err = cache.ParsePolicy("eventually")
	assert.Error(t, err)
}
