// Package rules decides when a contact is due a reminder. A Rule pairs gating
// preconditions (tag filter, minimum relationship score) with one of four
// sealed configuration variants, each carrying its own trigger predicate.
package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/model"
)

// Type names a rule variant.
type Type string

const (
	TypeInactivity Type = "inactivity"
	TypeRecurring  Type = "recurring"
	TypeDate       Type = "date"
	TypeDecay      Type = "decay"
)

// Defaults applied when a variant's parameter is omitted.
const (
	DefaultInactivityDays = 30
	DefaultRecurringDays  = 14
	DefaultScoreThreshold = 30.0
)

// datePatternRe matches "MM-DD" with an optional trailing time component.
var datePatternRe = regexp.MustCompile(`^(\d{2})-(\d{2})(?:[T ].*)?$`)

// Config is the per-variant configuration. The set of implementations is
// closed: adding a variant means implementing every method below.
type Config interface {
	Type() Type
	triggered(in Input) bool
	message(in Input) string
	params() Params
}

// InactivityConfig fires once a contact has gone quiet for InactivityDays.
type InactivityConfig struct {
	InactivityDays int
}

// RecurringConfig fires every RecurringDays since the last interaction.
type RecurringConfig struct {
	RecurringDays int
}

// DateConfig fires on a fixed month/day each year.
type DateConfig struct {
	Pattern string // "MM-DD", optionally followed by a time component
}

// DecayConfig fires while the relationship score sits below ScoreThreshold.
type DecayConfig struct {
	ScoreThreshold float64
}

func (InactivityConfig) Type() Type { return TypeInactivity }
func (RecurringConfig) Type() Type  { return TypeRecurring }
func (DateConfig) Type() Type       { return TypeDate }
func (DecayConfig) Type() Type      { return TypeDecay }

// MonthDay returns the month and day encoded in the pattern. ok is false when
// the pattern is empty or malformed.
func (c DateConfig) MonthDay() (month time.Month, day int, ok bool) {
	m := datePatternRe.FindStringSubmatch(c.Pattern)
	if m == nil {
		return 0, 0, false
	}
	mm, _ := strconv.Atoi(m[1])
	dd, _ := strconv.Atoi(m[2])
	return time.Month(mm), dd, true
}

// NextOccurrence returns the start of the next day matching the pattern:
// this year if that day has not passed yet (today counts), else next year.
// Impossible dates such as 02-30 normalize the way time.Date does.
func (c DateConfig) NextOccurrence(now time.Time) time.Time {
	month, day, ok := c.MonthDay()
	if !ok {
		return now
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
	if next.Before(today) {
		next = time.Date(now.Year()+1, month, day, 0, 0, 0, 0, now.Location())
	}
	return next
}

// Params is the loosely typed, serializable form of a rule configuration.
// Only the field matching the rule's type is consulted.
type Params struct {
	InactivityDays *int     `json:"inactivityDays,omitempty"`
	RecurringDays  *int     `json:"recurringDays,omitempty"`
	DatePattern    *string  `json:"datePattern,omitempty"`
	ScoreThreshold *float64 `json:"scoreThreshold,omitempty"`
}

// Spec describes a rule before validation.
type Spec struct {
	ID                   string   `json:"id"`
	Type                 Type     `json:"type"`
	Enabled              bool     `json:"enabled"`
	Config               Params   `json:"config"`
	Tags                 []string `json:"tags,omitempty"`
	MinRelationshipScore *float64 `json:"minRelationshipScore,omitempty"`
}

// Rule is a validated reminder rule. Build one with New; a Rule's Config has
// always passed validation for its type.
type Rule struct {
	ID                   string
	Enabled              bool
	Config               Config
	Tags                 []string
	MinRelationshipScore *float64
}

// Type returns the rule's variant.
func (r Rule) Type() Type {
	if r.Config == nil {
		return ""
	}
	return r.Config.Type()
}

// New validates spec and builds a Rule. Invalid configurations fail with
// INVALID_RULE_CONFIG. An empty id is replaced with a fresh one.
func New(spec Spec) (Rule, error) {
	cfg, err := buildConfig(spec.Type, spec.Config)
	if err != nil {
		return Rule{}, err
	}
	if spec.MinRelationshipScore != nil {
		if v := *spec.MinRelationshipScore; v < 0 || v > 100 {
			return Rule{}, rerrors.NewInvalidRuleConfig(string(spec.Type),
				fmt.Sprintf("minRelationshipScore must be within [0,100], got %v", v))
		}
	}

	id := spec.ID
	if id == "" {
		id = model.NewID()
	}

	return Rule{
		ID:                   id,
		Enabled:              spec.Enabled,
		Config:               cfg,
		Tags:                 spec.Tags,
		MinRelationshipScore: spec.MinRelationshipScore,
	}, nil
}

func buildConfig(t Type, p Params) (Config, error) {
	switch t {
	case TypeInactivity:
		days := DefaultInactivityDays
		if p.InactivityDays != nil {
			days = *p.InactivityDays
		}
		if days <= 0 {
			return nil, rerrors.NewInvalidRuleConfig(string(t), fmt.Sprintf("inactivityDays must be > 0, got %d", days))
		}
		return InactivityConfig{InactivityDays: days}, nil

	case TypeRecurring:
		days := DefaultRecurringDays
		if p.RecurringDays != nil {
			days = *p.RecurringDays
		}
		if days <= 0 {
			return nil, rerrors.NewInvalidRuleConfig(string(t), fmt.Sprintf("recurringDays must be > 0, got %d", days))
		}
		return RecurringConfig{RecurringDays: days}, nil

	case TypeDate:
		if p.DatePattern == nil || *p.DatePattern == "" {
			return nil, rerrors.NewInvalidRuleConfig(string(t), "datePattern is required")
		}
		if err := validateDatePattern(*p.DatePattern); err != nil {
			return nil, rerrors.NewInvalidRuleConfig(string(t), err.Error())
		}
		return DateConfig{Pattern: *p.DatePattern}, nil

	case TypeDecay:
		threshold := DefaultScoreThreshold
		if p.ScoreThreshold != nil {
			threshold = *p.ScoreThreshold
		}
		if threshold < 0 || threshold > 100 {
			return nil, rerrors.NewInvalidRuleConfig(string(t), fmt.Sprintf("scoreThreshold must be within [0,100], got %v", threshold))
		}
		return DecayConfig{ScoreThreshold: threshold}, nil

	default:
		return nil, rerrors.NewInvalidRuleConfig(string(t), "unknown rule type")
	}
}

// validateDatePattern checks field ranges only. Calendar validity is not
// checked, so "02-30" is accepted.
func validateDatePattern(pattern string) error {
	m := datePatternRe.FindStringSubmatch(pattern)
	if m == nil {
		return fmt.Errorf("datePattern %q must look like MM-DD", pattern)
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return fmt.Errorf("datePattern month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("datePattern day %d out of range", day)
	}
	return nil
}

func (c InactivityConfig) params() Params { return Params{InactivityDays: &c.InactivityDays} }
func (c RecurringConfig) params() Params  { return Params{RecurringDays: &c.RecurringDays} }
func (c DateConfig) params() Params       { return Params{DatePattern: &c.Pattern} }
func (c DecayConfig) params() Params      { return Params{ScoreThreshold: &c.ScoreThreshold} }

// Spec returns the serializable form of the rule.
func (r Rule) Spec() Spec {
	s := Spec{
		ID:                   r.ID,
		Enabled:              r.Enabled,
		Tags:                 r.Tags,
		MinRelationshipScore: r.MinRelationshipScore,
	}
	if r.Config != nil {
		s.Type = r.Config.Type()
		s.Config = r.Config.params()
	}
	return s
}

// MarshalJSON encodes the rule as its Spec.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Spec())
}

// UnmarshalJSON decodes a Spec and validates it.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	built, err := New(spec)
	if err != nil {
		return err
	}
	*r = built
	return nil
}
