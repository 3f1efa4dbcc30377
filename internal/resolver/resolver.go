// Package resolver fills gaps in the entity store. Registered scanners
// report the foreign keys their collections reference but the store lacks,
// the executor fetches them, and the scheduler coalesces triggers so only
// one pass runs at a time.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"refcache/internal/cache"
)

type Resolver struct {
	store     *cache.Store
	registry  *Registry
	executor  *Executor
	scheduler *Scheduler
	logger    *slog.Logger

	// exclusive is held by a running pass and by Reset.
	exclusive *semaphore.Weighted

	mu   sync.RWMutex
	last *Report
}

// New wires registry and executor behind a debounced scheduler. ctx bounds
// every pass the resolver runs.
func New(ctx context.Context, store *cache.Store, registry *Registry, executor *Executor, debounce time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Resolver {
	r := &Resolver{
		store:     store,
		registry:  registry,
		executor:  executor,
		logger:    logger.With("component", "resolver"),
		exclusive: semaphore.NewWeighted(1),
	}
	r.scheduler = NewScheduler(ctx, func(ctx context.Context) { r.RunPass(ctx) }, debounce, logger, opts...)
	return r
}

// TriggerResolution requests a pass. It returns immediately and never
// fails; callers do not need to coordinate.
func (r *Resolver) TriggerResolution() {
	r.executor.metrics.recordTrigger()
	r.scheduler.Trigger()
}

// RunPass collects and resolves synchronously, bypassing the scheduler.
// It waits for any other pass or reset to finish first.
func (r *Resolver) RunPass(ctx context.Context) Report {
	if err := r.exclusive.Acquire(ctx, 1); err != nil {
		r.logger.Warn("Resolution pass abandoned", "operation", "run_pass", "error", err)
		return Report{}
	}
	defer r.exclusive.Release(1)

	start := time.Now()

	missing := r.registry.Collect(ctx, r.store.Has)
	missing.Merge(r.executor.Dependencies(r.store.Has))
	r.executor.metrics.recordMissing(missing)

	report := r.executor.Execute(ctx, missing)
	r.executor.metrics.recordPass(time.Since(start))

	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()

	if !missing.IsEmpty() {
		r.logger.Info("Resolution pass completed",
			"operation", "run_pass",
			"missing", missing.Counts(),
			"persisted", report.Persisted,
			"failed_jobs", len(report.Failures()),
			"duration", time.Since(start))
	}
	return report
}

// Reset empties the store once no pass is running and schedules a pass to
// rebuild what the scanners still reference. Passes wait for the clear.
func (r *Resolver) Reset(ctx context.Context) error {
	if err := r.exclusive.Acquire(ctx, 1); err != nil {
		return err
	}
	err := r.store.Clear(ctx)
	r.exclusive.Release(1)
	if err != nil {
		return err
	}

	r.logger.Info("Entity store reset", "operation", "reset")
	r.TriggerResolution()
	return nil
}

// LastReport returns the report of the most recent pass, if any.
func (r *Resolver) LastReport() (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

func (r *Resolver) State() State { return r.scheduler.State() }

func (r *Resolver) Passes() uint64 { return r.scheduler.Passes() }

func (r *Resolver) WaitIdle(ctx context.Context) error {
	return r.scheduler.WaitIdle(ctx)
}

func (r *Resolver) Close() {
	r.scheduler.Close()
}
