// Package scheduler provides cron-based scheduling for the periodic
// ingestion pipeline.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc is the callback invoked on every scheduled tick. It runs one
// ingestion cycle and reports whether a new export was applied.
type RunFunc func(ctx context.Context) (bool, error)

// Status describes the scheduler's current state for the API and CLI.
type Status struct {
	Running       bool      `json:"running"`
	Interval      string    `json:"interval"`
	LastRun       time.Time `json:"last_run,omitempty"`
	NextRun       time.Time `json:"next_run,omitempty"`
	LastProcessed bool      `json:"last_processed"`
	LastError     string    `json:"last_error,omitempty"`
}

// Scheduler fires the ingestion pipeline on a fixed interval. A tick that
// arrives while the previous run is still going is dropped, not queued; the
// rebuild orchestrator's own single-flight guard backs this up.
type Scheduler struct {
	cron     *cron.Cron
	runFunc  RunFunc
	interval time.Duration
	logger   *slog.Logger

	mu            sync.RWMutex
	entryID       cron.EntryID
	running       bool // a cycle is currently executing
	lastRun       time.Time
	lastProcessed bool
	lastErr       error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks the running cycle goroutine
	started bool
	stopped bool
}

// Option is a functional option for Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler that invokes runFunc every interval.
func New(runFunc RunFunc, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid sync interval %v", interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(),
		runFunc:  runFunc,
		interval: interval,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.mu.Lock()
		if s.stopped || s.running {
			s.mu.Unlock()
			s.logger.Warn("previous ingestion cycle still running, skipping tick")
			return
		}
		s.running = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runCycle()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("schedule ingestion job: %w", err)
	}
	s.entryID = entryID
	return s, nil
}

// Start begins executing scheduled ticks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval)
}

// IsRunning returns true if the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels a running cycle, and waits for it to
// finish. The returned context is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runCycle executes one ingestion cycle. The caller must have called
// wg.Add(1) and set running = true.
func (s *Scheduler) runCycle() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	processed, err := s.runFunc(s.ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastProcessed = processed
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("ingestion cycle failed",
			"duration", time.Since(start),
			"error", err)
		return
	}
	s.logger.Info("ingestion cycle finished",
		"duration", time.Since(start),
		"processed", processed)
}

// TriggerNow manually starts a cycle outside the schedule. It returns an
// error when a cycle is already running or the scheduler is stopped.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.running {
		return fmt.Errorf("ingestion cycle already running")
	}

	s.running = true
	s.wg.Add(1)
	go s.runCycle()
	return nil
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:       s.started && !s.stopped,
		Interval:      s.interval.String(),
		LastRun:       s.lastRun,
		LastProcessed: s.lastProcessed,
	}
	if s.started && !s.stopped {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
