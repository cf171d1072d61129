package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/rules"
)

const ruleColumns = `id, type, enabled, config, tags, min_relationship_score`

// scanRule rebuilds a rule through rules.New so stored rows are revalidated.
func scanRule(row rowScanner) (rules.Rule, error) {
	var (
		spec    rules.Spec
		config  string
		tags    string
		enabled int
	)
	if err := row.Scan(&spec.ID, &spec.Type, &enabled, &config, &tags, &spec.MinRelationshipScore); err != nil {
		return rules.Rule{}, err
	}
	spec.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(config), &spec.Config); err != nil {
		return rules.Rule{}, fmt.Errorf("decode rule config: %w", err)
	}
	decoded, err := decodeTags(tags)
	if err != nil {
		return rules.Rule{}, err
	}
	spec.Tags = decoded
	return rules.New(spec)
}

// SaveRule inserts or replaces a rule.
func (db *DB) SaveRule(r rules.Rule) error {
	spec := r.Spec()
	config, err := json.Marshal(spec.Config)
	if err != nil {
		return fmt.Errorf("encode rule config: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO rules (id, type, enabled, config, tags, min_relationship_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			enabled = excluded.enabled,
			config = excluded.config,
			tags = excluded.tags,
			min_relationship_score = excluded.min_relationship_score,
			updated_at = excluded.updated_at
	`, spec.ID, spec.Type, boolInt(spec.Enabled), string(config), encodeTags(spec.Tags), spec.MinRelationshipScore, now, now)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

// GetRule returns a rule by id, or nil if it does not exist.
func (db *DB) GetRule(id string) (*rules.Rule, error) {
	r, err := scanRule(db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &r, nil
}

// ListRules returns rules in creation order, optionally only enabled ones.
func (db *DB) ListRules(enabledOnly bool) ([]rules.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRuleEnabled toggles a rule.
func (db *DB) SetRuleEnabled(id string, enabled bool) error {
	result, err := db.Exec(`
		UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?
	`, boolInt(enabled), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("no rule found for %s", id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
