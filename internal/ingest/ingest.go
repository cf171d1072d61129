// Package ingest reads interaction logs written one JSON object per line.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/model"
)

// Entry is one line of an interaction log.
type Entry struct {
	ContactID       string          `json:"contact_id"`
	Type            string          `json:"type,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp"` // RFC 3339 string or unix millis
	DurationMinutes *float64        `json:"duration_minutes,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Quality         *float64        `json:"quality,omitempty"`
}

// Result holds the parsed interactions and how many lines were skipped.
type Result struct {
	Interactions []model.Interaction
	Skipped      int
}

// ParseFile reads a JSONL interaction log from disk.
func ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open interaction log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// ParseLines parses interaction log content from a string.
func ParseLines(content string) (Result, error) {
	return Parse(strings.NewReader(content))
}

// Parse reads JSONL from r. Blank lines are ignored; malformed or invalid
// lines are skipped and counted.
func Parse(r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		i, err := parseLine([]byte(line))
		if err != nil {
			res.Skipped++
			continue
		}
		res.Interactions = append(res.Interactions, i)
	}

	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan interaction log: %w", err)
	}
	return res, nil
}

func parseLine(line []byte) (model.Interaction, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return model.Interaction{}, err
	}
	return e.Interaction()
}

// Interaction converts the entry into an Interaction. A missing type is
// classified from summary and notes; a missing quality is scored by the
// signal extractor. Summary stands in for notes when notes are absent.
func (e Entry) Interaction() (model.Interaction, error) {
	if e.ContactID == "" {
		return model.Interaction{}, errors.New("contact_id is required")
	}
	ts, err := parseTimestamp(e.Timestamp)
	if err != nil {
		return model.Interaction{}, err
	}
	if e.DurationMinutes != nil && *e.DurationMinutes < 0 {
		return model.Interaction{}, fmt.Errorf("duration_minutes must be >= 0, got %v", *e.DurationMinutes)
	}

	notes := e.Notes
	if (notes == nil || *notes == "") && e.Summary != "" {
		s := e.Summary
		notes = &s
	}

	typ := model.InteractionType(strings.ToLower(e.Type))
	if e.Type == "" {
		text := e.Summary
		if e.Notes != nil {
			text += " " + *e.Notes
		}
		typ = engine.ClassifyInteractionType(text)
	} else if !typ.Valid() {
		return model.Interaction{}, fmt.Errorf("unknown interaction type %q", e.Type)
	}

	i := model.Interaction{
		ID:        model.NewID(),
		ContactID: e.ContactID,
		Type:      typ,
		Timestamp: ts,
		Duration:  e.DurationMinutes,
		Notes:     notes,
	}

	if e.Quality != nil {
		if q := *e.Quality; q < 0 || q > 100 {
			return model.Interaction{}, fmt.Errorf("quality must be within [0,100], got %v", q)
		}
		i.Quality = *e.Quality
	} else {
		i.Quality = engine.ExtractQualityScore(i)
	}
	return i, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("timestamp is required")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return t, nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
