// Package cooldown keeps the latest reminder per (contact, rule) in Redis so
// several rapport processes can share one cooldown window.
package cooldown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces cooldown keys.
const DefaultPrefix = "rapport:cooldown"

// Index is a Redis-backed scheduler.ReminderLookup. Entries expire after the
// cooldown window, so an expired key reads as "no recent reminder".
type Index struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// New returns an index storing keys under prefix with the given TTL. An empty
// prefix selects DefaultPrefix; ttl <= 0 selects scheduler.DefaultCooldown.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Index {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = scheduler.DefaultCooldown
	}
	return &Index{client: client, prefix: prefix, ttl: ttl}
}

func (idx *Index) key(contactID, ruleID string) string {
	return idx.prefix + ":" + scheduler.Key(contactID, ruleID)
}

// Record stores each reminder as the latest for its key. The TTL runs from
// the reminder's creation, so a reminder already past its window is skipped.
func (idx *Index) Record(ctx context.Context, reminders []scheduler.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	now := time.Now()
	pipe := idx.client.Pipeline()
	queued := 0
	for _, r := range reminders {
		ttl := idx.ttl - now.Sub(r.CreatedAt)
		if ttl > idx.ttl {
			ttl = idx.ttl
		}
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode reminder %s: %w", r.ID, err)
		}
		pipe.Set(ctx, idx.key(r.ContactID, r.Rule.ID), data, ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record cooldowns: %w", err)
	}
	return nil
}

// Latest returns the stored reminder for a (contact, rule) pair, or nil if
// none is live.
func (idx *Index) Latest(ctx context.Context, contactID, ruleID string) (*scheduler.Reminder, error) {
	data, err := idx.client.Get(ctx, idx.key(contactID, ruleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	var r scheduler.Reminder
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode cooldown: %w", err)
	}
	return &r, nil
}

// LatestReminder implements scheduler.ReminderLookup.
func (idx *Index) LatestReminder(ctx context.Context, contactID, ruleID string) (*scheduler.Reminder, error) {
	return idx.Latest(ctx, contactID, ruleID)
}

// Dismiss marks the stored reminder dismissed, lifting the cooldown while
// keeping the entry's remaining TTL. A missing entry is not an error.
func (idx *Index) Dismiss(ctx context.Context, contactID, ruleID string) error {
	r, err := idx.Latest(ctx, contactID, ruleID)
	if err != nil || r == nil {
		return err
	}
	r.Status = model.ReminderDismissed
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reminder %s: %w", r.ID, err)
	}
	if err := idx.client.Set(ctx, idx.key(contactID, ruleID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("dismiss cooldown: %w", err)
	}
	return nil
}

var _ scheduler.ReminderLookup = (*Index)(nil)
