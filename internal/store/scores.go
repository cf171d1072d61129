package store

import (
	"database/sql"
	"fmt"

	"github.com/lazypower/rapport/internal/model"
)

const upsertScoreSQL = `
	INSERT INTO relationship_scores (contact_id, overall, recency, frequency, engagement, trend, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(contact_id) DO UPDATE SET
		overall = excluded.overall,
		recency = excluded.recency,
		frequency = excluded.frequency,
		engagement = excluded.engagement,
		trend = excluded.trend,
		last_updated = excluded.last_updated
`

// SaveScore upserts the cached score for a contact.
func (db *DB) SaveScore(s model.RelationshipScore) error {
	_, err := db.Exec(upsertScoreSQL, s.ContactID, s.Overall, s.Recency, s.Frequency, s.Engagement, s.Trend, toMillis(s.LastUpdated))
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return nil
}

// SaveScores upserts many scores in one transaction.
func (db *DB) SaveScores(scores map[string]model.RelationshipScore) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin scores: %w", err)
	}
	for _, s := range scores {
		if _, err := tx.Exec(upsertScoreSQL, s.ContactID, s.Overall, s.Recency, s.Frequency, s.Engagement, s.Trend, toMillis(s.LastUpdated)); err != nil {
			tx.Rollback()
			return fmt.Errorf("save score %s: %w", s.ContactID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scores: %w", err)
	}
	return nil
}

// GetScore returns the cached score for a contact, or nil if none is stored.
func (db *DB) GetScore(contactID string) (*model.RelationshipScore, error) {
	var (
		s       model.RelationshipScore
		updated int64
	)
	err := db.QueryRow(`
		SELECT contact_id, overall, recency, frequency, engagement, trend, last_updated
		FROM relationship_scores WHERE contact_id = ?
	`, contactID).Scan(&s.ContactID, &s.Overall, &s.Recency, &s.Frequency, &s.Engagement, &s.Trend, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	s.LastUpdated = fromMillis(updated)
	return &s, nil
}
