package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/scheduler"
)

const reminderColumns = `id, contact_id, message, due_date, status, rule, created_at, sent_at`

func scanReminder(row rowScanner) (scheduler.Reminder, error) {
	var (
		r         scheduler.Reminder
		due       int64
		created   int64
		sent      *int64
		ruleBytes string
	)
	if err := row.Scan(&r.ID, &r.ContactID, &r.Message, &due, &r.Status, &ruleBytes, &created, &sent); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(ruleBytes), &r.Rule); err != nil {
		return r, fmt.Errorf("decode reminder rule: %w", err)
	}
	r.DueDate = fromMillis(due)
	r.CreatedAt = fromMillis(created)
	r.SentAt = fromMillisPtr(sent)
	return r, nil
}

// CreateReminder stores a reminder along with a snapshot of the rule that
// produced it.
func (db *DB) CreateReminder(r scheduler.Reminder) error {
	return createReminder(db.Exec, r)
}

// CreateReminders stores a batch of reminders in one transaction.
func (db *DB) CreateReminders(ctx context.Context, reminders []scheduler.Reminder) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reminders: %w", err)
	}
	for _, r := range reminders {
		if err := createReminder(tx.Exec, r); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reminders: %w", err)
	}
	return nil
}

type execFunc func(query string, args ...any) (sql.Result, error)

func createReminder(exec execFunc, r scheduler.Reminder) error {
	if r.ID == "" {
		r.ID = model.NewID()
	}
	if r.Status == "" {
		r.Status = model.ReminderPending
	}
	ruleBytes, err := json.Marshal(r.Rule)
	if err != nil {
		return fmt.Errorf("encode reminder rule: %w", err)
	}
	_, err = exec(`
		INSERT INTO reminders (id, contact_id, rule_id, message, due_date, status, rule, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ContactID, r.Rule.ID, r.Message, toMillis(r.DueDate), r.Status, string(ruleBytes),
		toMillis(r.CreatedAt), toMillisPtr(r.SentAt))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// GetReminder returns a reminder by id, or nil if it does not exist.
func (db *DB) GetReminder(id string) (*scheduler.Reminder, error) {
	r, err := scanReminder(db.QueryRow(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &r, nil
}

// ListReminders returns reminders, newest first. An empty status lists all.
func (db *DB) ListReminders(status model.ReminderStatus) ([]scheduler.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var out []scheduler.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReminderStatus moves a reminder to status. Marking it sent stamps
// sent_at once; later updates keep the first stamp.
func (db *DB) UpdateReminderStatus(id string, status model.ReminderStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update reminder: unknown status %q", status)
	}

	var sentAt *int64
	if status == model.ReminderSent {
		sentAt = toMillisPtr(&at)
	}
	result, err := db.Exec(`
		UPDATE reminders SET status = ?, sent_at = COALESCE(sent_at, ?)
		WHERE id = ?
	`, status, sentAt, id)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("no reminder found for %s", id)
	}
	return nil
}

// LatestReminder returns the most recent reminder a rule produced for a
// contact, or nil if there is none. It satisfies scheduler.ReminderLookup.
func (db *DB) LatestReminder(ctx context.Context, contactID, ruleID string) (*scheduler.Reminder, error) {
	r, err := scanReminder(db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders WHERE contact_id = ? AND rule_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, contactID, ruleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reminder: %w", err)
	}
	return &r, nil
}

var _ scheduler.ReminderLookup = (*DB)(nil)
