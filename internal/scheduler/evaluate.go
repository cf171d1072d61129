package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
	"github.com/rs/zerolog"
)

// DefaultCooldown is how long a fired rule stays quiet for the same contact.
const DefaultCooldown = 24 * time.Hour

// Context is the immutable-per-cycle input to evaluation. It is replaced
// wholesale between cycles, never mutated in place.
type Context struct {
	Contacts     []model.Contact
	Interactions map[string][]model.Interaction
	Rules        []rules.Rule
	Scores       map[string]model.RelationshipScore
	Reminders    ReminderLookup
}

// ContextUpdate carries the fields to replace in a Context. Nil fields are
// left unchanged; pass an empty non-nil value to clear one.
type ContextUpdate struct {
	Contacts     []model.Contact
	Interactions map[string][]model.Interaction
	Rules        []rules.Rule
	Scores       map[string]model.RelationshipScore
	Reminders    ReminderLookup
}

// merge returns a new Context with u applied over c.
func (c Context) merge(u ContextUpdate) Context {
	if u.Contacts != nil {
		c.Contacts = u.Contacts
	}
	if u.Interactions != nil {
		c.Interactions = u.Interactions
	}
	if u.Rules != nil {
		c.Rules = u.Rules
	}
	if u.Scores != nil {
		c.Scores = u.Scores
	}
	if u.Reminders != nil {
		c.Reminders = u.Reminders
	}
	return c
}

// Evaluator runs every enabled rule against contacts and applies the
// cooldown filter. It holds no per-cycle state.
type Evaluator struct {
	scorer   *engine.Scorer
	cooldown time.Duration
	log      zerolog.Logger
}

// NewEvaluator returns an Evaluator. scorer computes scores missing from the
// context; cooldown <= 0 selects DefaultCooldown.
func NewEvaluator(scorer *engine.Scorer, cooldown time.Duration, log zerolog.Logger) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{scorer: scorer, cooldown: cooldown, log: log}
}

// EvaluateContact returns the new reminder candidates for one contact.
func (e *Evaluator) EvaluateContact(ctx context.Context, c model.Contact, ec *Context, now time.Time) ([]Reminder, error) {
	interactions := ec.Interactions[c.ID]
	score, err := e.currentScore(c, interactions, ec, now)
	if err != nil {
		return nil, err
	}

	in := rules.Input{
		Contact:      c,
		Interactions: interactions,
		Score:        score,
		Now:          now,
	}

	var out []Reminder
	for _, r := range ec.Rules {
		if !r.Enabled {
			continue
		}

		if ec.Reminders != nil {
			prev, err := ec.Reminders.LatestReminder(ctx, c.ID, r.ID)
			if err != nil {
				return out, fmt.Errorf("cooldown lookup %s: %w", Key(c.ID, r.ID), err)
			}
			if e.inCooldown(prev, now) {
				e.log.Debug().Str("contact", c.ID).Str("rule", r.ID).Msg("scheduler: rule in cooldown")
				continue
			}
		}

		res := rules.Evaluate(r, in)
		if !res.Triggered {
			continue
		}

		out = append(out, Reminder{
			ID:        model.NewID(),
			ContactID: c.ID,
			Message:   res.Message,
			DueDate:   dueDate(r, now),
			Status:    model.ReminderPending,
			Rule:      r,
			CreatedAt: now,
		})
	}
	return out, nil
}

// EvaluateAllContacts evaluates each contact independently and concatenates
// the candidates. A failing or panicking contact is skipped; its error is
// joined into the returned error while other contacts still produce output.
func (e *Evaluator) EvaluateAllContacts(ctx context.Context, ec *Context, now time.Time) ([]Reminder, error) {
	var (
		out  []Reminder
		errs []error
	)
	for _, c := range ec.Contacts {
		rs, err := e.evaluateIsolated(ctx, c, ec, now)
		if err != nil {
			e.log.Warn().Err(err).Str("contact", c.ID).Msg("scheduler: contact evaluation failed")
			errs = append(errs, fmt.Errorf("contact %s: %w", c.ID, err))
			continue
		}
		out = append(out, rs...)
	}
	return out, errors.Join(errs...)
}

func (e *Evaluator) evaluateIsolated(ctx context.Context, c model.Contact, ec *Context, now time.Time) (rs []Reminder, err error) {
	defer func() {
		if r := recover(); r != nil {
			rs, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return e.EvaluateContact(ctx, c, ec, now)
}

func (e *Evaluator) currentScore(c model.Contact, interactions []model.Interaction, ec *Context, now time.Time) (float64, error) {
	if s, ok := ec.Scores[c.ID]; ok {
		return s.Overall, nil
	}
	if e.scorer == nil {
		return 0, fmt.Errorf("no score for contact %s and no scorer configured", c.ID)
	}
	return e.scorer.Score(c, interactions, now).Overall, nil
}

// inCooldown reports whether prev still suppresses its rule. Dismissed
// reminders never suppress.
func (e *Evaluator) inCooldown(prev *Reminder, now time.Time) bool {
	if prev == nil || prev.Status == model.ReminderDismissed {
		return false
	}
	return now.Sub(prev.CreatedAt) < e.cooldown
}

// dueDate is now for every rule except date rules, which are due on the next
// occurrence of their month/day.
func dueDate(r rules.Rule, now time.Time) time.Time {
	if dc, ok := r.Config.(rules.DateConfig); ok {
		return dc.NextOccurrence(now)
	}
	return now
}

// BatchContacts splits contacts into consecutive chunks of at most size.
// A non-positive size yields a single chunk.
func BatchContacts(contacts []model.Contact, size int) [][]model.Contact {
	if len(contacts) == 0 {
		return nil
	}
	if size <= 0 || size >= len(contacts) {
		return [][]model.Contact{contacts}
	}
	batches := make([][]model.Contact, 0, (len(contacts)+size-1)/size)
	for start := 0; start < len(contacts); start += size {
		end := min(start+size, len(contacts))
		batches = append(batches, contacts[start:end])
	}
	return batches
}
