package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/rules"
)

// Reminder is a prompt to re-engage with a contact. The scheduler only ever
// creates pending reminders; status transitions belong to the reminder store.
type Reminder struct {
	ID        string               `json:"id"`
	ContactID string               `json:"contact_id"`
	Message   string               `json:"message"`
	DueDate   time.Time            `json:"due_date"`
	Status    model.ReminderStatus `json:"status"`
	Rule      rules.Rule           `json:"rule"`
	CreatedAt time.Time            `json:"created_at"`
	SentAt    *time.Time           `json:"sent_at,omitempty"`
}

// Key is the cooldown key for a (contact, rule) pair.
func Key(contactID, ruleID string) string {
	return contactID + ":" + ruleID
}

// ReminderLookup answers "what is the most recent reminder this rule produced
// for this contact". Implementations return nil, nil when there is none.
type ReminderLookup interface {
	LatestReminder(ctx context.Context, contactID, ruleID string) (*Reminder, error)
}

// ReminderIndex is an in-memory ReminderLookup safe for concurrent use.
type ReminderIndex struct {
	mu     sync.RWMutex
	latest map[string]Reminder
}

// NewReminderIndex returns an index seeded with the given reminders.
func NewReminderIndex(reminders ...Reminder) *ReminderIndex {
	idx := &ReminderIndex{latest: make(map[string]Reminder)}
	idx.Add(reminders...)
	return idx
}

// Add records reminders, keeping only the newest per key.
func (idx *ReminderIndex) Add(reminders ...Reminder) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range reminders {
		key := Key(r.ContactID, r.Rule.ID)
		if prev, ok := idx.latest[key]; ok && prev.CreatedAt.After(r.CreatedAt) {
			continue
		}
		idx.latest[key] = r
	}
}

// SetStatus updates the status of the indexed reminder with the given id.
func (idx *ReminderIndex) SetStatus(id string, status model.ReminderStatus) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, r := range idx.latest {
		if r.ID == id {
			r.Status = status
			idx.latest[key] = r
			return true
		}
	}
	return false
}

// LatestReminder implements ReminderLookup.
func (idx *ReminderIndex) LatestReminder(_ context.Context, contactID, ruleID string) (*Reminder, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.latest[Key(contactID, ruleID)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Len returns the number of keys in the index.
func (idx *ReminderIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.latest)
}
