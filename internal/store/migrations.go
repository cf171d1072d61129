package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "contacts: people to keep in touch with",
		SQL: `
CREATE TABLE contacts (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL DEFAULT '',
    notes             TEXT,
    last_contacted_at INTEGER,
    tags              TEXT NOT NULL DEFAULT '[]',
    created_at        INTEGER NOT NULL
);

CREATE INDEX idx_contacts_last_contacted ON contacts(last_contacted_at);
`,
	},
	{
		Version:     2,
		Description: "interactions: append-only contact log",
		SQL: `
CREATE TABLE interactions (
    id          TEXT PRIMARY KEY,
    contact_id  TEXT NOT NULL,
    type        TEXT NOT NULL CHECK (type IN ('call', 'message', 'meeting', 'email', 'other')),
    timestamp   INTEGER NOT NULL,
    duration    REAL,
    notes       TEXT,
    quality     REAL NOT NULL DEFAULT 0 CHECK (quality >= 0 AND quality <= 100),
    created_at  INTEGER NOT NULL,

    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);

CREATE INDEX idx_interactions_contact ON interactions(contact_id, timestamp);
`,
	},
	{
		Version:     3,
		Description: "rules: reminder rule definitions",
		SQL: `
CREATE TABLE rules (
    id                     TEXT PRIMARY KEY,
    type                   TEXT NOT NULL CHECK (type IN ('inactivity', 'recurring', 'date', 'decay')),
    enabled                INTEGER NOT NULL DEFAULT 1,
    config                 TEXT NOT NULL,
    tags                   TEXT NOT NULL DEFAULT '[]',
    min_relationship_score REAL,
    created_at             INTEGER NOT NULL,
    updated_at             INTEGER NOT NULL
);

CREATE INDEX idx_rules_enabled ON rules(enabled);
`,
	},
	{
		Version:     4,
		Description: "reminders: generated prompts and their lifecycle",
		SQL: `
CREATE TABLE reminders (
    id          TEXT PRIMARY KEY,
    contact_id  TEXT NOT NULL,
    rule_id     TEXT NOT NULL,
    message     TEXT NOT NULL,
    due_date    INTEGER NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent', 'dismissed')),
    rule        TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    sent_at     INTEGER,

    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);

CREATE INDEX idx_reminders_cooldown ON reminders(contact_id, rule_id, created_at DESC);
CREATE INDEX idx_reminders_status   ON reminders(status);
`,
	},
	{
		Version:     5,
		Description: "relationship_scores: last computed score per contact",
		SQL: `
CREATE TABLE relationship_scores (
    contact_id   TEXT PRIMARY KEY,
    overall      REAL NOT NULL,
    recency      REAL NOT NULL,
    frequency    REAL NOT NULL,
    engagement   REAL NOT NULL,
    trend        TEXT NOT NULL CHECK (trend IN ('improving', 'stable', 'declining')),
    last_updated INTEGER NOT NULL,

    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
