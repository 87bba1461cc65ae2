// Package scheduler runs the recurring reminder tick: find eligible reminders,
// dispatch them, then purge expired ones.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pathakanu/myJournal/internal/dispatch"
	"github.com/pathakanu/myJournal/internal/lock"
	"github.com/pathakanu/myJournal/internal/metrics"
	"github.com/pathakanu/myJournal/internal/model"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSpec fires once per minute.
	DefaultSpec = "*/1 * * * *"

	// LockKey guards ticks across replicas sharing one store.
	LockKey = "myjournal:scheduler:tick"

	// DefaultTickTimeout bounds one tick. It stays below both the one minute
	// interval and lock.DefaultTTL.
	DefaultTickTimeout = 50 * time.Second

	cleanupTimeout = 10 * time.Second
)

// Tick results reported to metrics.
const (
	tickOK      = "ok"
	tickError   = "error"
	tickSkipped = "skipped"
)

// Store finds reminders that are due for delivery.
type Store interface {
	FindEligible(ctx context.Context, now time.Time) ([]model.Reminder, error)
}

// Dispatcher delivers a set of reminders.
type Dispatcher interface {
	Dispatch(ctx context.Context, reminders []model.Reminder) ([]dispatch.Result, dispatch.Summary)
}

// Cleaner removes reminders past their retention window.
type Cleaner interface {
	Run(ctx context.Context, now time.Time) int64
}

// Status describes the scheduler loop.
type Status struct {
	Running      bool       `json:"running"`
	NextFireTime *time.Time `json:"nextFireTime,omitempty"`
}

// Scheduler owns a cron engine with a single tick entry.
type Scheduler struct {
	spec        string
	location    *time.Location
	tickTimeout time.Duration
	store       Store
	dispatcher  Dispatcher
	cleaner     Cleaner
	locker      lock.Locker
	now         func() time.Time
	metrics     metrics.Recorder
	logger      *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithSpec sets the cron expression of the tick.
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithLocation sets the zone the cron expression is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLocker makes every tick acquire LockKey first. Ticks that lose the race are skipped.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithTickTimeout overrides DefaultTickTimeout.
func WithTickTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.tickTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a stopped scheduler.
func New(store Store, dispatcher Dispatcher, cleaner Cleaner, logger *log.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		spec:        DefaultSpec,
		location:    time.Local,
		tickTimeout: DefaultTickTimeout,
		store:       store,
		dispatcher:  dispatcher,
		cleaner:     cleaner,
		now:         time.Now,
		metrics:     metrics.Prometheus{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the tick and starts the cron loop. Calling Start on a running
// scheduler is a no-op. A registration failure leaves the scheduler stopped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	id, err := c.AddFunc(s.spec, s.tick)
	if err != nil {
		s.cron = nil
		s.running = false
		return fmt.Errorf("scheduler: register tick %q: %w", s.spec, err)
	}

	c.Start()
	s.cron = c
	s.entry = id
	s.running = true
	s.logger.Printf("scheduler: started with schedule %q (%s)", s.spec, s.location)
	return nil
}

// Stop prevents future ticks. The returned context is done once a running tick
// has finished. Stopping a stopped scheduler returns an already-done context.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx := s.cron.Stop()
	s.cron = nil
	s.running = false
	s.logger.Printf("scheduler: stopped")
	return ctx
}

// Status reports whether the loop runs and when it fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return Status{}
	}

	entry := s.cron.Entry(s.entry)
	next := entry.Next
	if next.IsZero() && entry.Schedule != nil {
		// The cron goroutine has not computed the first activation yet.
		next = entry.Schedule.Next(s.now().In(s.location))
	}
	if next.IsZero() {
		return Status{Running: true}
	}
	return Status{Running: true, NextFireTime: &next}
}

// RunOnce executes one tick synchronously. It may overlap a timer tick: the
// dispatcher never hands a reminder to the channel twice at the same time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runTick(ctx)
}

func (s *Scheduler) tick() {
	_ = s.runTick(context.Background())
}

func (s *Scheduler) runTick(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scheduler: tick panic: %v", p)
			s.logger.Printf("scheduler: [%s] tick panicked: %v", s.now().Format(time.RFC3339), p)
			s.metrics.Tick(tickError)
		}
	}()

	if s.locker != nil {
		release, ok, lockErr := s.locker.TryLock(ctx, LockKey)
		if lockErr != nil {
			s.logger.Printf("scheduler: [%s] acquire tick lock: %v", s.now().Format(time.RFC3339), lockErr)
			s.metrics.Tick(tickError)
			return lockErr
		}
		if !ok {
			s.metrics.Tick(tickSkipped)
			return nil
		}
		defer release()
	}

	now := s.now()
	reminders, err := s.store.FindEligible(ctx, now)
	if err != nil {
		s.logger.Printf("scheduler: [%s] find eligible reminders: %v", now.Format(time.RFC3339), err)
		s.metrics.Tick(tickError)
		return fmt.Errorf("scheduler: find eligible reminders: %w", err)
	}

	if len(reminders) > 0 {
		_, summary := s.dispatcher.Dispatch(ctx, reminders)
		s.logger.Printf("scheduler: dispatched %d reminders (sent=%d failed=%d exhausted=%d in-flight=%d)",
			summary.Attempted, summary.Sent, summary.Failed, summary.Exhausted, summary.Skipped)
	}

	// Cleanup still runs when dispatch used up the tick deadline.
	cleanCtx, cancelClean := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancelClean()
	s.cleaner.Run(cleanCtx, now)
	s.metrics.Tick(tickOK)
	return nil
}
