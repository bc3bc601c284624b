package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	f := newFixture(t, stock("Milk", 50, 10))
	r := NewRegistry()

	var built atomic.Int32
	factory := func(ctx context.Context, id string) (*Session, error) {
		built.Add(1)
		return f.session(t, id), nil
	}

	s1, created, err := r.GetOrCreate(context.Background(), "111", factory)
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := r.GetOrCreate(context.Background(), "111", factory)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.GetOrCreate(context.Background(), "111", func(context.Context, string) (*Session, error) {
		return nil, errors.New("store down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RemoveOnlyMatchingSession(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	old := f.session(t, "111")
	_, _, err := r.GetOrCreate(context.Background(), "111", func(context.Context, string) (*Session, error) {
		return old, nil
	})
	require.NoError(t, err)

	assert.False(t, r.Remove("111", f.session(t, "111")))
	assert.True(t, r.Remove("111", old))
	assert.False(t, r.Remove("111", nil))
	_, ok := r.Get("111")
	assert.False(t, ok)
}

func TestRegistry_KeysIsSnapshot(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	for _, id := range []string{"333", "111", "222"} {
		_, _, err := r.GetOrCreate(context.Background(), id, func(_ context.Context, id string) (*Session, error) {
			return f.session(t, id), nil
		})
		require.NoError(t, err)
	}

	keys := r.Keys()
	assert.Equal(t, []string{"111", "222", "333"}, keys)

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			r.Remove(k, nil)
		}(k)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
	assert.Len(t, keys, 3)
}
