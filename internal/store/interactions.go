package store

import (
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/model"
)

const interactionColumns = `id, contact_id, type, timestamp, duration, notes, quality`

func scanInteraction(row rowScanner) (model.Interaction, error) {
	var (
		i  model.Interaction
		ts int64
	)
	if err := row.Scan(&i.ID, &i.ContactID, &i.Type, &ts, &i.Duration, &i.Notes, &i.Quality); err != nil {
		return i, err
	}
	i.Timestamp = fromMillis(ts)
	return i, nil
}

// AddInteraction appends an interaction. Interactions are never updated.
func (db *DB) AddInteraction(i model.Interaction) (*model.Interaction, error) {
	if i.ID == "" {
		i.ID = model.NewID()
	}
	if !i.Type.Valid() {
		return nil, fmt.Errorf("add interaction: unknown type %q", i.Type)
	}
	_, err := db.Exec(`
		INSERT INTO interactions (id, contact_id, type, timestamp, duration, notes, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, i.ID, i.ContactID, i.Type, toMillis(i.Timestamp), i.Duration, i.Notes, i.Quality, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("add interaction: %w", err)
	}
	return &i, nil
}

// ListInteractions returns a contact's interactions, oldest first.
func (db *DB) ListInteractions(contactID string) ([]model.Interaction, error) {
	rows, err := db.Query(`
		SELECT `+interactionColumns+`
		FROM interactions WHERE contact_id = ? ORDER BY timestamp, id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// InteractionsByContact returns every interaction grouped by contact id,
// each group oldest first.
func (db *DB) InteractionsByContact() (map[string][]model.Interaction, error) {
	rows, err := db.Query(`
		SELECT ` + interactionColumns + `
		FROM interactions ORDER BY contact_id, timestamp, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Interaction)
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out[i.ContactID] = append(out[i.ContactID], i)
	}
	return out, rows.Err()
}
