package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/store/storetest"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

type settled struct {
	mu      sync.Mutex
	items   map[string]int
	tracked map[string]int
}

func (s *settled) Track(name string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracked == nil {
		s.tracked = make(map[string]int)
	}
	s.tracked[name] += qty
}

func (s *settled) Settle(name string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string]int)
	}
	s.items[name] += qty
}

func (s *settled) get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[name]
}

func delta(order, item string, n int) model.InventoryDelta {
	return model.InventoryDelta{Key: model.DeltaKey(order, item), ShopID: "shop", OrderID: order, Item: item, Delta: -n}
}

func fastOptions() Options {
	return Options{Workers: 1, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, PollWait: 5 * time.Millisecond}
}

func TestMemoryQueue_DedupesFirstAttempts(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	d := delta("0001", "Milk", 2)
	require.NoError(t, q.Push(ctx, Task{Delta: d}))
	require.NoError(t, q.Push(ctx, Task{Delta: d}))
	require.NoError(t, q.Push(ctx, Task{Delta: d, Attempts: 1}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	task, ok, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, task.Attempts)

	_, _, _ = q.Pop(ctx, 0)
	_, ok, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryQueue_PopWaitsForPush(t *testing.T) {
	q := NewMemoryQueue()
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = q.Push(context.Background(), Task{Delta: delta("0001", "Milk", 1)})
	}()

	task, ok, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Milk", task.Delta.Item)
}

func TestReconciler_DrainAppliesAndSettles(t *testing.T) {
	ctx := context.Background()
	st := &storetest.Mock{}
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(nil)
	s := &settled{}

	r := New(NewMemoryQueue(), st, s, fastOptions(), logger.NewNop())
	require.NoError(t, r.Enqueue(ctx, delta("0001", "Milk", 2), delta("0001", "Bread", 1)))
	require.NoError(t, r.Enqueue(ctx, delta("0001", "Milk", 2)))

	assert.Equal(t, 2, r.Drain(ctx))
	assert.Equal(t, 2, s.get("Milk"))
	assert.Equal(t, 1, s.get("Bread"))
	st.AssertNumberOfCalls(t, "ApplyInventoryDelta", 2)
}

func TestReconciler_TransientFailureRetried(t *testing.T) {
	ctx := context.Background()
	st := &storetest.Mock{}
	d := delta("0001", "Milk", 2)
	st.On("ApplyInventoryDelta", mock.Anything, d).Return(errors.New("conn reset")).Once()
	st.On("ApplyInventoryDelta", mock.Anything, d).Return(nil).Once()
	s := &settled{}
	q := NewMemoryQueue()

	r := New(q, st, s, fastOptions(), logger.NewNop())
	require.NoError(t, r.Enqueue(ctx, d))

	assert.Equal(t, 0, r.Drain(ctx))
	assert.Equal(t, 0, s.get("Milk"), "not settled until the store applies it")
	n, _ := q.Len(ctx)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, r.Drain(ctx))
	assert.Equal(t, 2, s.get("Milk"))
	st.AssertExpectations(t)
}

func TestReconciler_AbandonsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	st := &storetest.Mock{}
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(errors.New("down"))
	q := NewMemoryQueue()

	r := New(q, st, nil, fastOptions(), logger.NewNop())
	require.NoError(t, r.Enqueue(ctx, delta("0001", "Milk", 2)))
	for i := 0; i < 5; i++ {
		r.Drain(ctx)
	}

	st.AssertNumberOfCalls(t, "ApplyInventoryDelta", 3)
	n, _ := q.Len(ctx)
	assert.Equal(t, 0, n)
}

func TestReconciler_NotFoundDropped(t *testing.T) {
	ctx := context.Background()
	st := &storetest.Mock{}
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(model.NotFoundf("item"))
	s := &settled{}
	q := NewMemoryQueue()

	r := New(q, st, s, fastOptions(), logger.NewNop())
	require.NoError(t, r.Enqueue(ctx, delta("0001", "Milk", 2)))
	assert.Equal(t, 0, r.Drain(ctx))

	n, _ := q.Len(ctx)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, s.get("Milk"))
}

func TestReconciler_RunUntilCancelled(t *testing.T) {
	st := &storetest.Mock{}
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(errors.New("blip")).Once()
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(nil)
	s := &settled{}

	r := New(NewMemoryQueue(), st, s, fastOptions(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, r.Enqueue(context.Background(), delta("0001", "Milk", 3)))
	assert.Eventually(t, func() bool { return s.get("Milk") == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconciler_TaskNotDueDoesNotBlockFreshDeltas(t *testing.T) {
	st := &storetest.Mock{}
	st.On("ApplyInventoryDelta", mock.Anything, mock.Anything).Return(nil)
	s := &settled{}
	q := NewMemoryQueue()

	opts := fastOptions()
	opts.MaxBackoff = time.Hour
	r := New(q, st, s, opts, logger.NewNop())

	later := time.Now().Add(time.Hour)
	require.NoError(t, q.Push(context.Background(), Task{Delta: delta("0001", "Rice", 1), Attempts: 1, NotBefore: later}))
	require.NoError(t, q.Push(context.Background(), Task{Delta: delta("0002", "Dal", 1), Attempts: 2, NotBefore: later}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, r.Enqueue(context.Background(), delta("0003", "Milk", 2)))
	assert.Eventually(t, func() bool { return s.get("Milk") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, s.get("Rice"))
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "tasks not yet due stay queued")
	st.AssertNumberOfCalls(t, "ApplyInventoryDelta", 1)
}

func TestReconciler_RestoreTracksQueuedSales(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	require.NoError(t, q.Push(ctx, Task{Delta: delta("0001", "Milk", 2)}))
	require.NoError(t, q.Push(ctx, Task{Delta: delta("0002", "Milk", 1), Attempts: 3}))
	require.NoError(t, q.Push(ctx, Task{Delta: model.InventoryDelta{Key: "restock:rice", Item: "Rice", Delta: 5}}))
	s := &settled{}

	r := New(q, &storetest.Mock{}, s, fastOptions(), logger.NewNop())
	n, err := r.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, s.tracked["Milk"])
	assert.Zero(t, s.tracked["Rice"])

	left, _ := q.Len(ctx)
	assert.Equal(t, 3, left)
}

func TestReconciler_Backoff(t *testing.T) {
	r := New(NewMemoryQueue(), &storetest.Mock{}, nil, Options{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}, logger.NewNop())
	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 8*time.Second, r.backoff(4))
	assert.Equal(t, 10*time.Second, r.backoff(6))
}
