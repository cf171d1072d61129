package rules

import (
	"time"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/model"
)

// Input is everything a rule looks at for one contact.
type Input struct {
	Contact      model.Contact
	Interactions []model.Interaction
	Score        float64 // current overall relationship score
	Now          time.Time
}

// Result is the outcome of evaluating one rule against one contact.
type Result struct {
	Triggered bool
	Message   string
}

// Evaluate runs the gates and, if they pass, the variant's predicate. The
// message is only generated for triggered rules.
func Evaluate(r Rule, in Input) Result {
	if !r.ShouldTrigger(in) {
		return Result{}
	}
	return Result{Triggered: true, Message: r.Message(in)}
}

// ShouldTrigger reports whether the rule fires for in. Failing a gate
// short-circuits without consulting the predicate.
func (r Rule) ShouldTrigger(in Input) bool {
	if r.Config == nil || !r.Applies(in) {
		return false
	}
	return r.Config.triggered(in)
}

// Applies evaluates the gates: at least one matching tag when a tag filter is
// set, and a score at or above MinRelationshipScore when set.
func (r Rule) Applies(in Input) bool {
	if len(r.Tags) > 0 {
		matched := false
		for _, tag := range r.Tags {
			if in.Contact.HasTag(tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if r.MinRelationshipScore != nil && in.Score < *r.MinRelationshipScore {
		return false
	}
	return true
}

// Message renders the human-readable reminder text for the rule.
func (r Rule) Message(in Input) string {
	if r.Config == nil {
		return ""
	}
	return r.Config.message(in)
}

func (c InactivityConfig) triggered(in Input) bool {
	if in.Contact.LastContactedAt == nil {
		return true
	}
	return engine.DaysBetween(*in.Contact.LastContactedAt, in.Now) >= float64(c.InactivityDays)
}

func (c RecurringConfig) triggered(in Input) bool {
	ref, ok := referenceDate(in)
	if !ok {
		return true
	}
	return engine.DaysBetween(ref, in.Now) >= float64(c.RecurringDays)
}

func (c DateConfig) triggered(in Input) bool {
	if len(c.Pattern) < 5 {
		return false
	}
	return in.Now.Format("01-02") == c.Pattern[:5]
}

func (c DecayConfig) triggered(in Input) bool {
	return in.Score < c.ScoreThreshold
}

// referenceDate is the latest interaction timestamp, falling back to the
// contact's last-contacted time. ok is false when neither exists.
func referenceDate(in Input) (time.Time, bool) {
	if in.Contact.LastContactedAt == nil {
		return time.Time{}, false
	}
	if len(in.Interactions) == 0 {
		return *in.Contact.LastContactedAt, true
	}
	latest := in.Interactions[0].Timestamp
	for _, i := range in.Interactions[1:] {
		if i.Timestamp.After(latest) {
			latest = i.Timestamp
		}
	}
	return latest, true
}
