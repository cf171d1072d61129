// Package model holds the plain records shared by the scoring engine, the
// rule engine, the scheduler and the store.
package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// InteractionType is the channel an interaction happened over.
type InteractionType string

const (
	InteractionCall    InteractionType = "call"
	InteractionMessage InteractionType = "message"
	InteractionMeeting InteractionType = "meeting"
	InteractionEmail   InteractionType = "email"
	InteractionOther   InteractionType = "other"
)

// InteractionTypes lists every known interaction type.
var InteractionTypes = []InteractionType{
	InteractionCall,
	InteractionMessage,
	InteractionMeeting,
	InteractionEmail,
	InteractionOther,
}

// Valid reports whether t is one of the known interaction types.
func (t InteractionType) Valid() bool {
	for _, known := range InteractionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Contact is a person the user keeps in touch with. The core reads contacts,
// it never mutates them.
type Contact struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Notes           *string    `json:"notes,omitempty"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
}

// HasTag reports whether the contact carries the given tag.
func (c Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DisplayName falls back to the id when the contact has no name.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Interaction is a single logged contact event. Immutable once created.
type Interaction struct {
	ID        string          `json:"id"`
	ContactID string          `json:"contact_id"`
	Type      InteractionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  *float64        `json:"duration,omitempty"` // minutes
	Notes     *string         `json:"notes,omitempty"`
	Quality   float64         `json:"quality"` // 0-100
}

// HasNotes reports whether the interaction carries non-empty notes.
func (i Interaction) HasNotes() bool {
	return i.Notes != nil && *i.Notes != ""
}

// Trend classifies how interaction frequency is moving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// RelationshipScore is the derived health of a relationship. All component
// scores lie in [0,100].
type RelationshipScore struct {
	ContactID   string    `json:"contact_id"`
	Overall     float64   `json:"overall"`
	Recency     float64   `json:"recency"`
	Frequency   float64   `json:"frequency"`
	Engagement  float64   `json:"engagement"`
	Trend       Trend     `json:"trend"`
	LastUpdated time.Time `json:"last_updated"`
}

// ReminderStatus is the lifecycle state of a reminder. Transitions are owned
// by the reminder store.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderDismissed ReminderStatus = "dismissed"
)

// Valid reports whether s is a known reminder status.
func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderPending, ReminderSent, ReminderDismissed:
		return true
	}
	return false
}

// NewID returns a new lexically sortable id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
