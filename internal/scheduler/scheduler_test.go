package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rerrors "github.com/lazypower/rapport/internal/errors"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return now }

func newScheduler(t *testing.T, cfg Config, ec Context) *Scheduler {
	t.Helper()
	s, err := New(cfg, testScorer(t), ec, WithClock(fixedClock))
	require.NoError(t, err)
	return s
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableLogging = false
	return cfg
}

// indexSink persists delivered reminders into idx, the way a store would.
func indexSink(idx *ReminderIndex) Sink {
	return func(_ context.Context, rs []Reminder) error {
		idx.Add(rs...)
		return nil
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.EvaluationInterval = 0
	_, err := New(cfg, testScorer(t), Context{})
	assert.True(t, rerrors.Is(err, rerrors.ErrInvalidParameter))

	cfg = quietConfig()
	cfg.BatchSize = -1
	_, err = New(cfg, testScorer(t), Context{})
	assert.True(t, rerrors.Is(err, rerrors.ErrInvalidParameter))
}

func TestRunOnceEndToEnd(t *testing.T) {
	idx := NewReminderIndex()
	s := newScheduler(t, quietConfig(), Context{
		Contacts:  []model.Contact{{ID: "c1", Name: "Ana"}},
		Rules:     []rules.Rule{inactivityRule(t, "r1", 30)},
		Reminders: idx,
	})

	got, err := s.RunOnce(context.Background(), indexSink(idx))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ReminderPending, got[0].Status)
	assert.Contains(t, got[0].Message, "haven't connected")
	assert.Equal(t, 1, idx.Len())

	// Same instant: the persisted reminder now holds the rule in cooldown.
	again, err := s.RunOnce(context.Background(), indexSink(idx))
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.EqualValues(t, 2, s.Cycles())
}

func TestRunOnceBatches(t *testing.T) {
	cfg := quietConfig()
	cfg.BatchSize = 2
	contacts := []model.Contact{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	s := newScheduler(t, cfg, Context{
		Contacts: contacts,
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	})

	var delivered []Reminder
	got, err := s.RunOnce(context.Background(), func(_ context.Context, rs []Reminder) error {
		delivered = append(delivered, rs...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Len(t, delivered, 5)
}

func TestRunOnceCancelled(t *testing.T) {
	s := newScheduler(t, quietConfig(), Context{
		Contacts: []model.Contact{{ID: "a"}},
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := s.RunOnce(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestRunOnceSinkErrorReported(t *testing.T) {
	s := newScheduler(t, quietConfig(), Context{
		Contacts: []model.Contact{{ID: "a"}},
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	})

	got, err := s.RunOnce(context.Background(), func(context.Context, []Reminder) error {
		return errors.New("disk full")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, got, 1, "candidates still returned")

	_, err = s.RunOnce(context.Background(), func(context.Context, []Reminder) error {
		panic("sink exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink exploded")
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	s := newScheduler(t, quietConfig(), Context{
		Contacts: []model.Contact{{ID: "a"}},
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.RunOnce(context.Background(), func(context.Context, []Reminder) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	_, err := s.RunOnce(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	wg.Wait()
	_, err = s.RunOnce(context.Background(), nil)
	assert.NoError(t, err)
}

func TestStartStopIdempotent(t *testing.T) {
	s := newScheduler(t, quietConfig(), Context{})
	assert.Equal(t, StateIdle, s.State())

	s.Stop()
	assert.Equal(t, StateIdle, s.State(), "stop while idle is a no-op")

	s.Start(context.Background(), nil)
	assert.Equal(t, StateRunning, s.State())
	assert.EqualValues(t, 1, s.Cycles(), "first cycle runs synchronously")

	s.Start(context.Background(), nil)
	assert.EqualValues(t, 1, s.Cycles(), "second start is a no-op")

	s.Stop()
	assert.Equal(t, StateIdle, s.State())
	s.Stop()
	assert.Equal(t, StateIdle, s.State())

	// Restart works after a stop.
	s.Start(context.Background(), nil)
	assert.Equal(t, StateRunning, s.State())
	assert.EqualValues(t, 2, s.Cycles())
	s.Stop()
}

func TestTimerSurvivesFailingSink(t *testing.T) {
	cfg := quietConfig()
	cfg.EvaluationInterval = 5 * time.Millisecond
	cfg.Cooldown = time.Nanosecond
	s := newScheduler(t, cfg, Context{
		Contacts: []model.Contact{{ID: "a"}},
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	})

	var calls atomic.Int32
	s.Start(context.Background(), func(context.Context, []Reminder) error {
		if calls.Add(1)%2 == 0 {
			panic("flaky sink")
		}
		return errors.New("flaky sink")
	})
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, s.State())
}

func TestStartStopsOnContextDone(t *testing.T) {
	cfg := quietConfig()
	cfg.EvaluationInterval = 5 * time.Millisecond
	s := newScheduler(t, cfg, Context{})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, nil)
	cancel()

	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestUpdateContextAppliesNextCycle(t *testing.T) {
	s := newScheduler(t, quietConfig(), Context{
		Contacts: []model.Contact{{ID: "a"}},
	})

	got, err := s.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got, "no rules yet")

	s.UpdateContext(ContextUpdate{Rules: []rules.Rule{inactivityRule(t, "r1", 30)}})
	assert.Len(t, s.Context().Contacts, 1, "contacts untouched")

	got, err = s.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	s.UpdateContext(ContextUpdate{Contacts: []model.Contact{}})
	got, err = s.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunOnceComputesMissingScores(t *testing.T) {
	decay, err := rules.New(rules.Spec{ID: "d", Type: rules.TypeDecay, Enabled: true})
	require.NoError(t, err)

	recent := now.Add(-time.Hour)
	s := newScheduler(t, quietConfig(), Context{
		Contacts: []model.Contact{
			{ID: "cold"},
			{ID: "warm", LastContactedAt: &recent},
		},
		Interactions: map[string][]model.Interaction{
			"warm": {
				{ContactID: "warm", Type: model.InteractionMeeting, Timestamp: recent, Quality: 90},
				{ContactID: "warm", Type: model.InteractionCall, Timestamp: now.Add(-48 * time.Hour), Quality: 80},
			},
		},
		Rules: []rules.Rule{decay},
	})

	got, err := s.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cold", got[0].ContactID)
}

func TestRefreshRunsBeforeEachCycle(t *testing.T) {
	var calls atomic.Int32
	s, err := New(quietConfig(), testScorer(t), Context{}, WithClock(fixedClock),
		WithRefresh(func(context.Context) (ContextUpdate, error) {
			calls.Add(1)
			return ContextUpdate{
				Contacts: []model.Contact{{ID: "ana"}},
				Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
			}, nil
		}))
	require.NoError(t, err)

	got, err := s.RunOnce(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ana", got[0].ContactID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, s.Context().Contacts, 1, "refreshed data is kept")
}

func TestRefreshFailureKeepsHeldContext(t *testing.T) {
	s, err := New(quietConfig(), testScorer(t), Context{
		Contacts: []model.Contact{{ID: "ana"}},
		Rules:    []rules.Rule{inactivityRule(t, "r1", 30)},
	}, WithClock(fixedClock), WithRefresh(func(context.Context) (ContextUpdate, error) {
		return ContextUpdate{}, errors.New("database is locked")
	}))
	require.NoError(t, err)

	got, err := s.RunOnce(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh: database is locked")
	assert.Len(t, got, 1, "cycle still evaluates the held context")
}
