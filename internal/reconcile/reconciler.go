package reconcile

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

// Applier applies a delta to the canonical inventory.
type Applier interface {
	ApplyInventoryDelta(ctx context.Context, d model.InventoryDelta) error
}

// Settler keeps the in-memory ledger of sales the store has not applied.
type Settler interface {
	// Settle is called when the store acknowledged a committed sale.
	Settle(name string, qty int)
	// Track is called at startup for sales still queued from a previous run.
	Track(name string, qty int)
}

// Options configures a Reconciler.
type Options struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// PollWait bounds how long an idle worker blocks on the queue.
	PollWait time.Duration
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.PollWait <= 0 {
		o.PollWait = time.Second
	}
}

// Reconciler drains the delta queue into the store.
type Reconciler struct {
	queue   Queue
	store   Applier
	settler Settler
	opts    Options
	logger  *logger.Logger
}

// New creates a reconciler. settler may be nil.
func New(queue Queue, store Applier, settler Settler, opts Options, log *logger.Logger) *Reconciler {
	opts.defaults()
	return &Reconciler{
		queue:   queue,
		store:   store,
		settler: settler,
		opts:    opts,
		logger:  log.Named("reconcile"),
	}
}

// Enqueue queues deltas for the store. Deltas whose key was already queued
// are ignored.
func (r *Reconciler) Enqueue(ctx context.Context, deltas ...model.InventoryDelta) error {
	var errs []error
	for _, d := range deltas {
		if err := r.queue.Push(ctx, Task{Delta: d}); err != nil {
			errs = append(errs, err)
			r.logger.Error("failed to enqueue inventory delta",
				zap.String("key", d.Key),
				zap.String("item", d.Item),
				zap.Int("delta", d.Delta),
				zap.Error(err),
			)
		}
	}
	return errors.Join(errs...)
}

// Restore tells the settler about every delta still queued, so a restart
// does not count unapplied sales as available. Call it before Run.
func (r *Reconciler) Restore(ctx context.Context) (int, error) {
	tasks, err := r.queue.Pending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if r.settler != nil && t.Delta.Delta < 0 {
			r.settler.Track(t.Delta.Item, -t.Delta.Delta)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("restored queued inventory deltas", zap.Int("count", n))
	}
	return n, nil
}

// Run processes the queue with the configured number of workers until ctx
// is done.
func (r *Reconciler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.workerLoop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (r *Reconciler) workerLoop(ctx context.Context, id int) {
	// skipped counts consecutive tasks returned to the queue as not due.
	skipped := 0
	for ctx.Err() == nil {
		task, ok, err := r.queue.Pop(ctx, r.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("queue pop failed", zap.Int("worker", id), zap.Error(err))
			sleep(ctx, r.opts.BaseBackoff)
			continue
		}
		if !ok {
			continue
		}
		if wait := time.Until(task.NotBefore); wait > 0 {
			// Not due: return it to the back so fresh deltas are not held up.
			if err := r.queue.Push(context.WithoutCancel(ctx), task); err != nil {
				r.logger.Error("failed to requeue inventory delta", zap.String("key", task.Delta.Key), zap.Error(err))
			}
			skipped++
			if n, err := r.queue.Len(ctx); err != nil || skipped >= n {
				// Went round the whole queue without finding due work.
				sleep(ctx, min(wait, r.opts.PollWait))
				skipped = 0
			}
			continue
		}
		skipped = 0
		r.process(ctx, task)
	}
}

// Drain processes every queued task once, ignoring backoff, and returns how
// many deltas were applied. Failed tasks are re-queued.
func (r *Reconciler) Drain(ctx context.Context) int {
	n, err := r.queue.Len(ctx)
	if err != nil {
		r.logger.Warn("queue length failed", zap.Error(err))
		return 0
	}
	applied := 0
	for i := 0; i < n; i++ {
		task, ok, err := r.queue.Pop(ctx, 0)
		if err != nil || !ok {
			break
		}
		if r.process(ctx, task) {
			applied++
		}
	}
	return applied
}

// process applies one task and reports whether it succeeded.
func (r *Reconciler) process(ctx context.Context, task Task) bool {
	d := task.Delta
	log := r.logger.With(
		zap.String("key", d.Key),
		zap.String("item", d.Item),
		zap.Int("delta", d.Delta),
		zap.Int("attempt", task.Attempts+1),
	)

	err := r.store.ApplyInventoryDelta(ctx, d)
	switch {
	case err == nil:
		metrics.ReconcileDeltasTotal.WithLabelValues("applied").Inc()
		r.settle(d)
		log.Debug("inventory delta applied")
		return true

	case errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrValidation):
		metrics.ReconcileDeltasTotal.WithLabelValues("dropped").Inc()
		r.settle(d)
		log.Error("inventory delta rejected by store, dropping", zap.Error(err))
		return false
	}

	task.Attempts++
	if task.Attempts >= r.opts.MaxAttempts {
		metrics.ReconcileDeltasTotal.WithLabelValues("abandoned").Inc()
		log.Error("inventory delta abandoned after retries", zap.Error(err))
		return false
	}

	task.NotBefore = time.Now().Add(r.backoff(task.Attempts))
	metrics.ReconcileDeltasTotal.WithLabelValues("retried").Inc()
	log.Warn("inventory delta failed, will retry", zap.Time("not_before", task.NotBefore), zap.Error(err))
	if err := r.queue.Push(context.WithoutCancel(ctx), task); err != nil {
		log.Error("failed to requeue inventory delta", zap.Error(err))
	}
	return false
}

func (r *Reconciler) settle(d model.InventoryDelta) {
	if r.settler != nil && d.Delta < 0 {
		r.settler.Settle(d.Item, -d.Delta)
	}
}

func (r *Reconciler) backoff(attempts int) time.Duration {
	d := r.opts.BaseBackoff
	for i := 1; i < attempts && d < r.opts.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, r.opts.MaxBackoff)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
