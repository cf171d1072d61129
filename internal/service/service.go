// Package service wires the store, scorer, cooldown index and scheduler
// together. It is the host side of the reminder engine: it loads snapshots,
// persists what the scheduler produces and keeps the scheduler's context
// current as data changes.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/rapport/internal/cooldown"
	"github.com/lazypower/rapport/internal/engine"
	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
	"github.com/lazypower/rapport/internal/scheduler"
	"github.com/lazypower/rapport/internal/store"
	"github.com/rs/zerolog"
)

// Service orchestrates reminder evaluation over the store.
type Service struct {
	db       *store.DB
	scorer   *engine.Scorer
	cooldown *cooldown.Index
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	sched *scheduler.Scheduler
}

// Option customizes a Service.
type Option func(*Service)

// WithCooldownIndex routes cooldown lookups through Redis instead of SQLite.
func WithCooldownIndex(idx *cooldown.Index) Option {
	return func(s *Service) { s.cooldown = idx }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service over db using scorer.
func New(db *store.DB, scorer *engine.Scorer, opts ...Option) *Service {
	s := &Service{
		db:     db,
		scorer: scorer,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scorer returns the scorer the service computes scores with.
func (s *Service) Scorer() *engine.Scorer {
	return s.scorer
}

// lookup is the cooldown source attached to every snapshot.
func (s *Service) lookup() scheduler.ReminderLookup {
	if s.cooldown != nil {
		return &cooldownLookup{index: s.cooldown, db: s.db, log: s.log}
	}
	return s.db
}

// cooldownLookup answers from Redis and falls back to SQLite on a miss or a
// Redis error. SQLite is written first, so it holds every reminder Redis
// may have failed to record.
type cooldownLookup struct {
	index *cooldown.Index
	db    *store.DB
	log   zerolog.Logger
}

var _ scheduler.ReminderLookup = (*cooldownLookup)(nil)

func (l *cooldownLookup) LatestReminder(ctx context.Context, contactID, ruleID string) (*scheduler.Reminder, error) {
	r, err := l.index.Latest(ctx, contactID, ruleID)
	if err != nil {
		l.log.Warn().Err(err).Str("contact", contactID).Str("rule", ruleID).Msg("service: cooldown index unavailable, reading store")
	} else if r != nil {
		return r, nil
	}
	return l.db.LatestReminder(ctx, contactID, ruleID)
}

// Snapshot loads contacts, interactions and enabled rules, scores every
// contact as of now and persists the scores.
func (s *Service) Snapshot(ctx context.Context) (scheduler.Context, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Context{}, err
	}
	contacts, err := s.db.ListContacts()
	if err != nil {
		return scheduler.Context{}, fmt.Errorf("snapshot contacts: %w", err)
	}
	interactions, err := s.db.InteractionsByContact()
	if err != nil {
		return scheduler.Context{}, fmt.Errorf("snapshot interactions: %w", err)
	}
	enabled, err := s.db.ListRules(true)
	if err != nil {
		return scheduler.Context{}, fmt.Errorf("snapshot rules: %w", err)
	}

	scores := s.scorer.ScoreAll(contacts, interactions, s.now())
	if err := s.db.SaveScores(scores); err != nil {
		return scheduler.Context{}, fmt.Errorf("snapshot scores: %w", err)
	}

	return scheduler.Context{
		Contacts:     nonNil(contacts),
		Interactions: interactions,
		Rules:        nonNil(enabled),
		Scores:       scores,
		Reminders:    s.lookup(),
	}, nil
}

// nonNil keeps "no rows" distinct from "leave unchanged" in a ContextUpdate.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// NewScheduler builds a scheduler seeded with a fresh snapshot and attaches
// it to the service so later changes refresh its context.
func (s *Service) NewScheduler(ctx context.Context, cfg scheduler.Config) (*scheduler.Scheduler, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(cfg, s.scorer, snap,
		scheduler.WithLogger(s.log),
		scheduler.WithClock(s.now),
		scheduler.WithRefresh(s.contextUpdate),
	)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
	return sched, nil
}

func (s *Service) attached() *scheduler.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

// contextUpdate is a fresh snapshot as a full replacement update. The
// attached scheduler calls it at the start of every cycle, so scores are
// recomputed against the cycle's clock.
func (s *Service) contextUpdate(ctx context.Context) (scheduler.ContextUpdate, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return scheduler.ContextUpdate{}, err
	}
	return scheduler.ContextUpdate{
		Contacts:     snap.Contacts,
		Interactions: snap.Interactions,
		Rules:        snap.Rules,
		Scores:       snap.Scores,
		Reminders:    snap.Reminders,
	}, nil
}

// Refresh reloads the snapshot into the attached scheduler. No-op without one.
func (s *Service) Refresh(ctx context.Context) error {
	sched := s.attached()
	if sched == nil {
		return nil
	}
	u, err := s.contextUpdate(ctx)
	if err != nil {
		return err
	}
	sched.UpdateContext(u)
	return nil
}

func (s *Service) refreshQuietly(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("service: refresh scheduler context")
	}
}

// Sink persists a cycle's reminders, mirrors them into the cooldown index
// and refreshes the scheduler. It is the scheduler.Sink for this service.
func (s *Service) Sink(ctx context.Context, reminders []scheduler.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	if err := s.db.CreateReminders(ctx, reminders); err != nil {
		return err
	}
	s.log.Info().Int("count", len(reminders)).Msg("service: reminders stored")
	s.refreshQuietly(ctx)
	if s.cooldown != nil {
		if err := s.cooldown.Record(ctx, reminders); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateNow runs one cycle and persists its reminders.
func (s *Service) EvaluateNow(ctx context.Context) ([]scheduler.Reminder, error) {
	return s.evaluate(ctx, s.Sink)
}

// Preview runs one cycle without persisting anything.
func (s *Service) Preview(ctx context.Context) ([]scheduler.Reminder, error) {
	return s.evaluate(ctx, nil)
}

func (s *Service) evaluate(ctx context.Context, sink scheduler.Sink) ([]scheduler.Reminder, error) {
	sched := s.attached()
	if sched == nil {
		// One-shot: a throwaway scheduler over a fresh snapshot.
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		cfg := scheduler.DefaultConfig()
		cfg.EnableLogging = false
		sched, err = scheduler.New(cfg, s.scorer, snap, scheduler.WithClock(s.now))
		if err != nil {
			return nil, err
		}
	}
	return sched.RunOnce(ctx, sink)
}

// CreateContact stores a new contact.
func (s *Service) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	if c.Name == "" {
		return nil, rerrors.NewInvalidRequest("name is required")
	}
	created, err := s.db.CreateContact(c)
	if err != nil {
		return nil, err
	}
	s.refreshQuietly(ctx)
	return created, nil
}

// Contacts lists every contact.
func (s *Service) Contacts() ([]model.Contact, error) {
	return s.db.ListContacts()
}

func (s *Service) contact(id string) (*model.Contact, error) {
	c, err := s.db.GetContact(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, rerrors.NewNotFound("contact", id)
	}
	return c, nil
}

// LogInteraction appends an interaction, fills its quality from the signal
// extractor when unrated (zero), advances the contact's last-contacted time
// and rescores the contact.
func (s *Service) LogInteraction(ctx context.Context, i model.Interaction) (*model.Interaction, error) {
	if _, err := s.contact(i.ContactID); err != nil {
		return nil, err
	}
	if i.Type == "" {
		text := ""
		if i.Notes != nil {
			text = *i.Notes
		}
		i.Type = engine.ClassifyInteractionType(text)
	}
	if !i.Type.Valid() {
		return nil, rerrors.NewInvalidRequest(fmt.Sprintf("unknown interaction type %q", i.Type))
	}
	if i.Quality < 0 || i.Quality > 100 {
		return nil, rerrors.NewInvalidParameter("quality", i.Quality, "within [0,100]")
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = s.now()
	}
	if i.Quality == 0 {
		i.Quality = engine.ExtractQualityScore(i)
	}

	stored, err := s.db.AddInteraction(i)
	if err != nil {
		return nil, err
	}
	if err := s.db.TouchContact(i.ContactID, i.Timestamp); err != nil {
		return nil, err
	}
	if _, err := s.Score(i.ContactID); err != nil {
		return nil, err
	}

	s.log.Debug().Str("contact", i.ContactID).Str("type", string(i.Type)).Float64("quality", i.Quality).Msg("service: interaction logged")
	s.refreshQuietly(ctx)
	return stored, nil
}

// IngestResult reports what an ingest stored.
type IngestResult struct {
	Stored  int
	Unknown int // interactions whose contact does not exist
}

// Ingest stores parsed interactions, skipping ones for unknown contacts.
func (s *Service) Ingest(ctx context.Context, interactions []model.Interaction) (IngestResult, error) {
	var res IngestResult
	known := make(map[string]bool)
	for _, i := range interactions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, seen := known[i.ContactID]
		if !seen {
			c, err := s.db.GetContact(i.ContactID)
			if err != nil {
				return res, err
			}
			ok = c != nil
			known[i.ContactID] = ok
		}
		if !ok {
			res.Unknown++
			continue
		}
		if _, err := s.db.AddInteraction(i); err != nil {
			return res, err
		}
		if err := s.db.TouchContact(i.ContactID, i.Timestamp); err != nil {
			return res, err
		}
		res.Stored++
	}
	s.refreshQuietly(ctx)
	return res, nil
}

// Score computes, stores and returns a contact's current score.
func (s *Service) Score(contactID string) (*model.RelationshipScore, error) {
	c, err := s.contact(contactID)
	if err != nil {
		return nil, err
	}
	interactions, err := s.db.ListInteractions(contactID)
	if err != nil {
		return nil, err
	}
	score := s.scorer.Score(*c, interactions, s.now())
	if err := s.db.SaveScore(score); err != nil {
		return nil, err
	}
	return &score, nil
}

// AddRule validates and stores a rule.
func (s *Service) AddRule(ctx context.Context, spec rules.Spec) (*rules.Rule, error) {
	r, err := rules.New(spec)
	if err != nil {
		return nil, err
	}
	if err := s.db.SaveRule(r); err != nil {
		return nil, err
	}
	s.refreshQuietly(ctx)
	return &r, nil
}

// Rules lists every rule, enabled or not.
func (s *Service) Rules() ([]rules.Rule, error) {
	return s.db.ListRules(false)
}

// Reminders lists reminders with the given status; empty lists all.
func (s *Service) Reminders(status model.ReminderStatus) ([]scheduler.Reminder, error) {
	if status != "" && !status.Valid() {
		return nil, rerrors.NewInvalidRequest(fmt.Sprintf("unknown reminder status %q", status))
	}
	return s.db.ListReminders(status)
}

// DismissReminder marks a reminder dismissed, lifting its cooldown.
func (s *Service) DismissReminder(ctx context.Context, id string) (*scheduler.Reminder, error) {
	r, err := s.setStatus(id, model.ReminderDismissed)
	if err != nil {
		return nil, err
	}
	if s.cooldown != nil {
		if err := s.cooldown.Dismiss(ctx, r.ContactID, r.Rule.ID); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MarkSent records that a reminder was delivered.
func (s *Service) MarkSent(id string) (*scheduler.Reminder, error) {
	return s.setStatus(id, model.ReminderSent)
}

func (s *Service) setStatus(id string, status model.ReminderStatus) (*scheduler.Reminder, error) {
	r, err := s.db.GetReminder(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, rerrors.NewNotFound("reminder", id)
	}
	if err := s.db.UpdateReminderStatus(id, status, s.now()); err != nil {
		return nil, err
	}
	return s.db.GetReminder(id)
}
