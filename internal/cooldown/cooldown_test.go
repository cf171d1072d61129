package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
	"github.com/lazypower/rapport/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Index) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, "test", time.Hour)
}

func inactivity(t *testing.T) rules.Rule {
	t.Helper()
	r, err := rules.New(rules.Spec{ID: "r1", Type: rules.TypeInactivity, Enabled: true})
	require.NoError(t, err)
	return r
}

func TestRecordAndLatest(t *testing.T) {
	mr, idx := setup(t)
	ctx := context.Background()
	rule := inactivity(t)
	created := time.Now().Add(-10 * time.Minute).Truncate(time.Millisecond)

	err := idx.Record(ctx, []scheduler.Reminder{{
		ID:        "rem1",
		ContactID: "c1",
		Message:   "Time to reach out",
		DueDate:   created,
		Status:    model.ReminderPending,
		Rule:      rule,
		CreatedAt: created,
	}})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:c1:r1"))
	ttl := mr.TTL("test:c1:r1")
	assert.True(t, ttl > 45*time.Minute && ttl <= 50*time.Minute, "ttl %v runs from creation", ttl)

	got, err := idx.Latest(ctx, "c1", "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rem1", got.ID)
	assert.Equal(t, rules.TypeInactivity, got.Rule.Type())
	assert.True(t, got.CreatedAt.Equal(created))

	none, err := idx.Latest(ctx, "c1", "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRecordSkipsExpired(t *testing.T) {
	mr, idx := setup(t)
	err := idx.Record(context.Background(), []scheduler.Reminder{{
		ID: "old", ContactID: "c1", Rule: inactivity(t), CreatedAt: time.Now().Add(-2 * time.Hour),
	}})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:c1:r1"))
}

func TestEntryExpires(t *testing.T) {
	mr, idx := setup(t)
	ctx := context.Background()
	require.NoError(t, idx.Record(ctx, []scheduler.Reminder{{
		ID: "rem1", ContactID: "c1", Rule: inactivity(t), CreatedAt: time.Now(),
	}}))

	mr.FastForward(61 * time.Minute)

	got, err := idx.Latest(ctx, "c1", "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDismissKeepsTTL(t *testing.T) {
	mr, idx := setup(t)
	ctx := context.Background()
	require.NoError(t, idx.Record(ctx, []scheduler.Reminder{{
		ID: "rem1", ContactID: "c1", Status: model.ReminderPending, Rule: inactivity(t), CreatedAt: time.Now(),
	}}))

	require.NoError(t, idx.Dismiss(ctx, "c1", "r1"))

	got, err := idx.Latest(ctx, "c1", "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ReminderDismissed, got.Status)
	assert.True(t, mr.TTL("test:c1:r1") > 0)

	assert.NoError(t, idx.Dismiss(ctx, "c1", "missing"))
}

func TestIndexDrivesScheduler(t *testing.T) {
	_, idx := setup(t)
	ctx := context.Background()
	now := time.Now()

	ec := &scheduler.Context{
		Contacts:  []model.Contact{{ID: "c1"}},
		Rules:     []rules.Rule{inactivity(t)},
		Scores:    map[string]model.RelationshipScore{"c1": {ContactID: "c1"}},
		Reminders: idx,
	}
	eval := scheduler.NewEvaluator(nil, time.Hour, zerolog.Nop())

	first, err := eval.EvaluateAllContacts(ctx, ec, now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, idx.Record(ctx, first))

	second, err := eval.EvaluateAllContacts(ctx, ec, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, second, "held by cooldown")

	require.NoError(t, idx.Dismiss(ctx, "c1", "r1"))
	third, err := eval.EvaluateAllContacts(ctx, ec, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, third, 1, "dismissed lifts cooldown")
}

func TestNewDefaults(t *testing.T) {
	idx := New(nil, "", 0)
	assert.Equal(t, DefaultPrefix, idx.prefix)
	assert.Equal(t, scheduler.DefaultCooldown, idx.ttl)
}
