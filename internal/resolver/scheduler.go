package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateRunning
	StateRunningQueued
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateRunningQueued:
		return "running_queued"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PassFunc runs one complete resolution pass.
type PassFunc func(ctx context.Context)

type SchedulerOption func(*Scheduler)

// WithClock replaces the wall clock driving the debounce timer.
func WithClock(c clock.WithDelayedExecution) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// Scheduler coalesces triggers into passes. Bursts of triggers collapse
// into one pass after the debounce delay, at most one pass runs at a time,
// and a trigger that arrives during a pass schedules exactly one more.
type Scheduler struct {
	ctx    context.Context
	pass   PassFunc
	delay  time.Duration
	clock  clock.WithDelayedExecution
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	timer  clock.Timer
	gen    uint64
	idle   chan struct{}
	passes uint64
	closed bool
}

func NewScheduler(ctx context.Context, pass PassFunc, delay time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	idle := make(chan struct{})
	close(idle)

	s := &Scheduler{
		ctx:    ctx,
		pass:   pass,
		delay:  delay,
		clock:  clock.RealClock{},
		logger: logger.With("component", "resolution_scheduler"),
		idle:   idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger requests a pass. It never blocks and is safe from any goroutine.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch s.state {
	case StateIdle:
		s.idle = make(chan struct{})
		s.arm()
		s.state = StatePending
	case StatePending:
		s.timer.Stop()
		s.arm()
	case StateRunning:
		s.state = StateRunningQueued
		s.logger.Debug("Pass queued behind running pass")
	case StateRunningQueued:
	}
}

// arm must be called with mu held. The generation guards against a timer
// that fired concurrently with its own Stop.
func (s *Scheduler) arm() {
	s.gen++
	gen := s.gen
	// The callback may run while the clock holds its own lock, so the state
	// transition happens on a fresh goroutine.
	s.timer = s.clock.AfterFunc(s.delay, func() { go s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || s.state != StatePending || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.timer = nil
	s.mu.Unlock()

	s.loop()
}

func (s *Scheduler) loop() {
	for {
		s.runPass()

		s.mu.Lock()
		if s.state == StateRunningQueued && !s.closed {
			s.state = StateRunning
			s.mu.Unlock()
			continue
		}
		s.state = StateIdle
		close(s.idle)
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) runPass() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Resolution pass panicked", "panic", r)
		}
	}()

	s.mu.Lock()
	s.passes++
	n := s.passes
	s.mu.Unlock()

	s.logger.Debug("Starting resolution pass", "pass", n)
	s.pass(s.ctx)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Passes returns how many passes have been started.
func (s *Scheduler) Passes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// WaitIdle blocks until no pass is pending or running.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disarms a pending timer and ignores later triggers. A running pass
// is never interrupted; it finishes without a follow-up.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.state == StatePending {
		s.timer.Stop()
		s.timer = nil
		s.state = StateIdle
		close(s.idle)
	}
}
