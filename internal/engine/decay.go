package engine

// Decay curves map elapsed days to a 0-100 score:
//   - exponential: 100 * 0.5^(days/halfLife), default half-life 30 days
//   - linear:      100 * (1 - days/maxAge), default max age 365 days
//   - custom:      power law 100 * (1+days)^-curve, default curve 0.5
//
// All curves return 100 for non-positive (exponential) or negative elapsed
// time and are clamped to [0,100]. They are pure and safe for concurrent use.

import (
	"math"
	"time"

	rerrors "github.com/lazypower/rapport/internal/errors"
)

// DecayType selects the curve used by ApplyDecay.
type DecayType string

const (
	DecayExponential DecayType = "exponential"
	DecayLinear      DecayType = "linear"
	DecayCustom      DecayType = "custom"
)

const (
	defaultHalfLife = 30.0
	defaultMaxAge   = 365.0
	defaultCurve    = 0.5
)

const day = 24 * time.Hour

// DecayConfig parameterises ApplyDecay. Zero parameters fall back to the
// per-curve defaults.
type DecayConfig struct {
	Type     DecayType `yaml:"type" json:"type"`
	HalfLife float64   `yaml:"half_life" json:"half_life,omitempty"`
	MaxAge   float64   `yaml:"max_age" json:"max_age,omitempty"`
	Curve    float64   `yaml:"curve" json:"curve,omitempty"`
}

// ExponentialDecay halves the score every halfLife days.
func ExponentialDecay(daysSince, halfLife float64) (float64, error) {
	if halfLife <= 0 {
		return 0, rerrors.NewInvalidParameter("halfLife", halfLife, "> 0")
	}
	if daysSince <= 0 {
		return 100, nil
	}
	return clamp(100*math.Pow(0.5, daysSince/halfLife), 0, 100), nil
}

// LinearDecay falls from 100 to 0 over maxAge days.
func LinearDecay(daysSince, maxAge float64) (float64, error) {
	if maxAge <= 0 {
		return 0, rerrors.NewInvalidParameter("maxAge", maxAge, "> 0")
	}
	if daysSince < 0 {
		return 100, nil
	}
	return clamp(100*(1-daysSince/maxAge), 0, 100), nil
}

// PowerLawDecay drops quickly at first and then flattens out.
func PowerLawDecay(daysSince, curve float64) (float64, error) {
	if curve <= 0 {
		return 0, rerrors.NewInvalidParameter("curve", curve, "> 0")
	}
	if daysSince < 0 {
		return 100, nil
	}
	return clamp(100*math.Pow(1+daysSince, -curve), 0, 100), nil
}

// ApplyDecay dispatches to the curve named by cfg.Type.
func ApplyDecay(daysSince float64, cfg DecayConfig) (float64, error) {
	switch cfg.Type {
	case DecayExponential:
		return ExponentialDecay(daysSince, orDefault(cfg.HalfLife, defaultHalfLife))
	case DecayLinear:
		return LinearDecay(daysSince, orDefault(cfg.MaxAge, defaultMaxAge))
	case DecayCustom:
		return PowerLawDecay(daysSince, orDefault(cfg.Curve, defaultCurve))
	default:
		return 0, rerrors.NewUnknownDecayType(string(cfg.Type))
	}
}

// DaysBetween returns the real-valued number of days from from to to.
// Negative when to is before from.
func DaysBetween(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(day)
}

// DaysSince returns the days elapsed between t and now.
func DaysSince(t time.Time) float64 {
	return DaysBetween(t, time.Now())
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
