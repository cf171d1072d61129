package engine

import (
	"math"
	"time"

	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/model"
)

// trendWindow splits interactions into "recent" and "older" for trend
// classification.
const trendWindow = 45 * day

const (
	improvingRatio = 1.2
	decliningRatio = 0.8
)

// ScorerConfig weights the three score components and sets the decay and
// frequency horizons. Weights need not sum to 1; they are normalized.
type ScorerConfig struct {
	RecencyWeight    float64 `yaml:"recency_weight"`
	FrequencyWeight  float64 `yaml:"frequency_weight"`
	EngagementWeight float64 `yaml:"engagement_weight"`
	HalfLife         float64 `yaml:"half_life_days"`        // days
	FrequencyWindow  float64 `yaml:"frequency_window_days"` // days
}

// DefaultScorerConfig returns the 0.4/0.3/0.3 weighting with a 30-day
// half-life and a 90-day frequency window.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		RecencyWeight:    0.4,
		FrequencyWeight:  0.3,
		EngagementWeight: 0.3,
		HalfLife:         30,
		FrequencyWindow:  90,
	}
}

// Validate rejects configurations that would make scoring undefined.
func (c ScorerConfig) Validate() error {
	if c.HalfLife <= 0 {
		return rerrors.NewInvalidParameter("halfLife", c.HalfLife, "> 0")
	}
	if c.FrequencyWindow <= 0 {
		return rerrors.NewInvalidParameter("frequencyWindow", c.FrequencyWindow, "> 0")
	}
	for name, w := range map[string]float64{
		"recencyWeight":    c.RecencyWeight,
		"frequencyWeight":  c.FrequencyWeight,
		"engagementWeight": c.EngagementWeight,
	} {
		if w < 0 {
			return rerrors.NewInvalidParameter(name, w, ">= 0")
		}
	}
	if c.RecencyWeight+c.FrequencyWeight+c.EngagementWeight <= 0 {
		return rerrors.NewInvalidParameter("weights", 0, "summing to > 0")
	}
	return nil
}

// Scorer computes relationship scores under a validated configuration.
// Safe for concurrent use.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() ScorerConfig {
	return s.cfg
}

// Score computes the relationship score for a contact as of now.
func (s *Scorer) Score(contact model.Contact, interactions []model.Interaction, now time.Time) model.RelationshipScore {
	windowStart := now.Add(-time.Duration(s.cfg.FrequencyWindow * float64(day)))
	inWindow := 0
	for _, i := range interactions {
		if !i.Timestamp.Before(windowStart) {
			inWindow++
		}
	}

	recency := RecencyScore(contact.LastContactedAt, s.cfg.HalfLife, now)
	frequency := FrequencyScore(inWindow, s.cfg.FrequencyWindow)
	engagement := EngagementScore(interactions)

	return model.RelationshipScore{
		ContactID:   contact.ID,
		Overall:     CombineScores(recency, frequency, engagement, s.cfg),
		Recency:     recency,
		Frequency:   frequency,
		Engagement:  engagement,
		Trend:       CalculateTrend(interactions, now),
		LastUpdated: now,
	}
}

// ScoreAll scores every contact, looking up interactions by contact id.
// Contacts without an entry are scored with no interactions.
func (s *Scorer) ScoreAll(contacts []model.Contact, interactions map[string][]model.Interaction, now time.Time) map[string]model.RelationshipScore {
	out := make(map[string]model.RelationshipScore, len(contacts))
	for _, c := range contacts {
		out[c.ID] = s.Score(c, interactions[c.ID], now)
	}
	return out
}

// CalculateRelationshipScore validates cfg and scores one contact as of the
// current time.
func CalculateRelationshipScore(contact model.Contact, interactions []model.Interaction, cfg ScorerConfig) (model.RelationshipScore, error) {
	s, err := NewScorer(cfg)
	if err != nil {
		return model.RelationshipScore{}, err
	}
	return s.Score(contact, interactions, time.Now()), nil
}

// RecencyScore decays from 100 since the last contact. Zero when the contact
// was never reached. halfLife must be positive.
func RecencyScore(lastContactedAt *time.Time, halfLife float64, now time.Time) float64 {
	if lastContactedAt == nil {
		return 0
	}
	score, err := ExponentialDecay(DaysBetween(*lastContactedAt, now), halfLife)
	if err != nil {
		return 0
	}
	return score
}

// FrequencyScore maps an interaction rate to 0-100. Roughly one interaction
// a week (~0.14/day) lands near the maximum.
func FrequencyScore(countInWindow int, windowDays float64) float64 {
	if countInWindow <= 0 || windowDays <= 0 {
		return 0
	}
	return clamp(float64(countInWindow)/windowDays*1000, 0, 100)
}

// EngagementScore is the mean quality over all interactions, capped at 100.
func EngagementScore(interactions []model.Interaction) float64 {
	if len(interactions) == 0 {
		return 0
	}
	var total float64
	for _, i := range interactions {
		total += i.Quality
	}
	return clamp(total/float64(len(interactions)), 0, 100)
}

// CombineScores takes the weighted sum after normalizing the weights, so the
// result is invariant under uniform scaling of all three. Falls back to the
// default weights when they sum to zero.
func CombineScores(recency, frequency, engagement float64, cfg ScorerConfig) float64 {
	wr, wf, we := cfg.RecencyWeight, cfg.FrequencyWeight, cfg.EngagementWeight
	total := wr + wf + we
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		d := DefaultScorerConfig()
		wr, wf, we = d.RecencyWeight, d.FrequencyWeight, d.EngagementWeight
		total = wr + wf + we
	}
	sum := recency*wr/total + frequency*wf/total + engagement*we/total
	return clamp(sum, 0, 100)
}

// CalculateTrend compares interactions after the 45-day cutoff against those
// at or before it. With nothing older, the relationship can only be
// improving.
func CalculateTrend(interactions []model.Interaction, now time.Time) model.Trend {
	cutoff := now.Add(-trendWindow)
	recent, older := 0, 0
	for _, i := range interactions {
		if i.Timestamp.After(cutoff) {
			recent++
		} else {
			older++
		}
	}

	if older == 0 {
		return model.TrendImproving
	}

	ratio := float64(recent) / float64(older)
	switch {
	case ratio > improvingRatio:
		return model.TrendImproving
	case ratio < decliningRatio:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}
