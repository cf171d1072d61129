package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazypower/rapport/internal/engine"
	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/rs/zerolog"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// ErrCycleInProgress is returned by RunOnce when another cycle holds the
// snapshot. Overlapping cycles are skipped, never run concurrently.
var ErrCycleInProgress = errors.New("evaluation cycle already in progress")

// Config controls how often and how the scheduler evaluates.
type Config struct {
	EvaluationInterval time.Duration
	BatchSize          int
	EnableLogging      bool
	Cooldown           time.Duration
}

// DefaultConfig evaluates hourly in batches of 100 with a 24h cooldown.
func DefaultConfig() Config {
	return Config{
		EvaluationInterval: time.Hour,
		BatchSize:          100,
		EnableLogging:      true,
		Cooldown:           DefaultCooldown,
	}
}

// Sink receives each cycle's new reminders. It owns persistence and must make
// the reminders visible to the cooldown lookup for later cycles.
type Sink func(ctx context.Context, reminders []Reminder) error

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used when EnableLogging is on.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Refresher rebuilds the evaluation context at the start of a cycle.
type Refresher func(ctx context.Context) (ContextUpdate, error)

// WithRefresh makes every cycle merge a fresh update before it snapshots the
// context, so time-dependent scores and data written elsewhere are current.
// A failing refresh is reported in the cycle error and the cycle proceeds
// on the held context.
func WithRefresh(fn Refresher) Option {
	return func(s *Scheduler) { s.refresh = fn }
}

// Scheduler periodically evaluates every rule against every contact.
//
// It is a two-state machine: Start moves idle -> running, Stop moves
// running -> idle. Stop only prevents future ticks; a cycle in flight
// finishes against the snapshot it started with.
type Scheduler struct {
	cfg  Config
	eval *Evaluator
	log  zerolog.Logger
	now  func() time.Time

	refresh Refresher

	ctxMu sync.Mutex // serializes UpdateContext writers
	snap  atomic.Pointer[Context]
	busy  atomic.Bool

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	cycles atomic.Int64
}

// New validates cfg and returns an idle scheduler holding ec.
func New(cfg Config, scorer *engine.Scorer, ec Context, opts ...Option) (*Scheduler, error) {
	if cfg.EvaluationInterval <= 0 {
		return nil, rerrors.NewInvalidParameter("evaluationInterval", float64(cfg.EvaluationInterval.Milliseconds()), "> 0ms")
	}
	if cfg.BatchSize < 0 {
		return nil, rerrors.NewInvalidParameter("batchSize", float64(cfg.BatchSize), ">= 0")
	}
	if cfg.Cooldown < 0 {
		return nil, rerrors.NewInvalidParameter("cooldown", cfg.Cooldown.Hours(), ">= 0h")
	}

	s := &Scheduler{
		cfg:   cfg,
		log:   zerolog.Nop(),
		now:   time.Now,
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.EnableLogging {
		s.log = zerolog.Nop()
	}
	s.eval = NewEvaluator(scorer, cfg.Cooldown, s.log)
	s.snap.Store(&ec)
	return s, nil
}

// State reports whether the scheduler is idle or running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cycles returns how many cycles have completed.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// Context returns the snapshot the next cycle will use.
func (s *Scheduler) Context() Context {
	return *s.snap.Load()
}

// UpdateContext merges u into the held context. The change is visible from
// the next cycle on; a cycle in flight keeps its snapshot.
func (s *Scheduler) UpdateContext(u ContextUpdate) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	next := s.snap.Load().merge(u)
	s.snap.Store(&next)
}

// Start runs one cycle immediately and then one every EvaluationInterval
// until Stop is called or ctx is done. No-op if already running.
func (s *Scheduler) Start(ctx context.Context, sink Sink) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.cfg.EvaluationInterval).Msg("scheduler: started")

	s.runCycle(ctx, sink)

	go func() {
		ticker := time.NewTicker(s.cfg.EvaluationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runCycle(ctx, sink)
			case <-stopCh:
				return
			case <-ctx.Done():
				s.stop(stopCh)
				return
			}
		}
	}()
}

// Stop disarms the timer and returns to idle. It does not wait for or cancel
// a cycle in flight. No-op when idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()
	s.stop(stopCh)
}

func (s *Scheduler) stop(stopCh chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.stopCh != stopCh {
		return
	}
	s.state = StateIdle
	close(stopCh)
	s.stopCh = nil
	s.log.Info().Msg("scheduler: stopped")
}

// RunOnce runs a single cycle synchronously and returns its candidates along
// with any evaluation or sink errors. Returns ErrCycleInProgress if another
// cycle is running.
func (s *Scheduler) RunOnce(ctx context.Context, sink Sink) ([]Reminder, error) {
	return s.cycle(ctx, sink)
}

// runCycle is the timer's entry point: errors are logged, never propagated.
func (s *Scheduler) runCycle(ctx context.Context, sink Sink) {
	if _, err := s.cycle(ctx, sink); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.log.Warn().Msg("scheduler: previous cycle still running, skipping tick")
			return
		}
		s.log.Error().Err(err).Msg("scheduler: cycle error")
	}
}

func (s *Scheduler) cycle(ctx context.Context, sink Sink) ([]Reminder, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.busy.Store(false)

	var (
		candidates []Reminder
		errs       []error
	)
	if s.refresh != nil {
		u, err := s.refresh(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("scheduler: refresh failed, using held context")
			errs = append(errs, fmt.Errorf("refresh: %w", err))
		} else {
			s.UpdateContext(u)
		}
	}

	snap := s.snap.Load()
	now := s.now()
	start := time.Now()

	for i, batch := range BatchContacts(snap.Contacts, s.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", i, err))
			break
		}
		view := *snap
		view.Contacts = batch
		rs, err := s.eval.EvaluateAllContacts(ctx, &view, now)
		candidates = append(candidates, rs...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(candidates) > 0 && sink != nil {
		if err := deliver(ctx, sink, candidates); err != nil {
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}

	s.cycles.Add(1)
	s.log.Info().
		Int("contacts", len(snap.Contacts)).
		Int("reminders", len(candidates)).
		Int("errors", len(errs)).
		Dur("took", time.Since(start)).
		Msg("scheduler: cycle complete")

	return candidates, errors.Join(errs...)
}

// deliver calls the sink, converting a panic into an error.
func deliver(ctx context.Context, sink Sink, reminders []Reminder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink(ctx, reminders)
}
