package rules

import (
	"encoding/json"
	"testing"

	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNewDefaults(t *testing.T) {
	r, err := New(Spec{ID: "r1", Type: TypeInactivity, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, InactivityConfig{InactivityDays: 30}, r.Config)

	r, err = New(Spec{ID: "r2", Type: TypeRecurring})
	require.NoError(t, err)
	assert.Equal(t, RecurringConfig{RecurringDays: 14}, r.Config)

	r, err = New(Spec{ID: "r3", Type: TypeDecay})
	require.NoError(t, err)
	assert.Equal(t, DecayConfig{ScoreThreshold: 30}, r.Config)
}

func TestNewAssignsID(t *testing.T) {
	r, err := New(Spec{Type: TypeInactivity})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"zero inactivity", Spec{Type: TypeInactivity, Config: Params{InactivityDays: ptr(0)}}},
		{"negative recurring", Spec{Type: TypeRecurring, Config: Params{RecurringDays: ptr(-3)}}},
		{"missing date", Spec{Type: TypeDate}},
		{"empty date", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("")}}},
		{"malformed date", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("6-15")}}},
		{"month 13", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("13-01")}}},
		{"month 0", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("00-10")}}},
		{"day 32", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("01-32")}}},
		{"day 0", Spec{Type: TypeDate, Config: Params{DatePattern: ptr("01-00")}}},
		{"threshold above 100", Spec{Type: TypeDecay, Config: Params{ScoreThreshold: ptr(101.0)}}},
		{"threshold below 0", Spec{Type: TypeDecay, Config: Params{ScoreThreshold: ptr(-1.0)}}},
		{"unknown type", Spec{Type: "weekly"}},
		{"min score out of range", Spec{Type: TypeDecay, MinRelationshipScore: ptr(120.0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			require.Error(t, err)
			assert.True(t, rerrors.Is(err, rerrors.ErrInvalidRuleConfig), "got %v", err)
		})
	}
}

func TestNewAcceptsDatePatterns(t *testing.T) {
	for _, p := range []string{"06-15", "12-31", "01-01", "02-30", "06-15T09:00:00", "03-04 birthday"} {
		r, err := New(Spec{Type: TypeDate, Config: Params{DatePattern: ptr(p)}})
		require.NoError(t, err, "pattern %q", p)
		assert.Equal(t, DateConfig{Pattern: p}, r.Config)
	}
}

func TestThresholdBoundsInclusive(t *testing.T) {
	for _, v := range []float64{0, 100} {
		_, err := New(Spec{Type: TypeDecay, Config: Params{ScoreThreshold: ptr(v)}})
		assert.NoError(t, err, "threshold %v", v)
	}
}

func TestRuleJSONRoundTripValidates(t *testing.T) {
	r, err := New(Spec{
		ID:                   "r1",
		Type:                 TypeRecurring,
		Enabled:              true,
		Config:               Params{RecurringDays: ptr(7)},
		Tags:                 []string{"family"},
		MinRelationshipScore: ptr(10.0),
	})
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recurringDays":7`)

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)

	var bad Rule
	err = json.Unmarshal([]byte(`{"id":"x","type":"inactivity","config":{"inactivityDays":0}}`), &bad)
	assert.True(t, rerrors.Is(err, rerrors.ErrInvalidRuleConfig))
}
