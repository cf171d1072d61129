package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/model"
)

const contactColumns = `id, name, notes, last_contacted_at, tags`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (model.Contact, error) {
	var (
		c    model.Contact
		last *int64
		tags string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Notes, &last, &tags); err != nil {
		return c, err
	}
	c.LastContactedAt = fromMillisPtr(last)
	decoded, err := decodeTags(tags)
	if err != nil {
		return c, err
	}
	c.Tags = decoded
	return c, nil
}

// CreateContact inserts a contact. An empty ID is replaced with a new one;
// the stored contact is returned.
func (db *DB) CreateContact(c model.Contact) (*model.Contact, error) {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, notes, last_contacted_at, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Notes, toMillisPtr(c.LastContactedAt), encodeTags(c.Tags), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return &c, nil
}

// GetContact returns a contact by id, or nil if it does not exist.
func (db *DB) GetContact(id string) (*model.Contact, error) {
	c, err := scanContact(db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

// ListContacts returns every contact ordered by name.
func (db *DB) ListContacts() ([]model.Contact, error) {
	rows, err := db.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// TouchContact advances last_contacted_at to at. An older timestamp leaves
// the stored value unchanged.
func (db *DB) TouchContact(id string, at time.Time) error {
	result, err := db.Exec(`
		UPDATE contacts SET last_contacted_at = ?
		WHERE id = ? AND (last_contacted_at IS NULL OR last_contacted_at < ?)
	`, toMillis(at), id, toMillis(at))
	if err != nil {
		return fmt.Errorf("touch contact: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	var exists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("touch contact: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("no contact found for %s", id)
	}
	return nil
}
