package engine

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lazypower/rapport/internal/model"
)

// Base quality per interaction type. Synchronous, effortful contact is worth
// more than async text.
var baseQuality = map[model.InteractionType]float64{
	model.InteractionMeeting: 80,
	model.InteractionCall:    75,
	model.InteractionMessage: 40,
	model.InteractionEmail:   35,
	model.InteractionOther:   20,
}

const unknownTypeQuality = 25

const (
	maxDurationBonus = 20
	maxNotesBonus    = 15
)

// contextKeywords maps a context tag to the note keywords that imply it.
var contextKeywords = []struct {
	tag      string
	keywords []string
}{
	{"context:professional", []string{"project", "work"}},
	{"context:personal", []string{"personal", "family"}},
	{"context:milestone", []string{"birthday", "anniversary"}},
	{"context:urgent", []string{"emergency", "urgent"}},
}

// typeKeywords is checked in order; first matching rule wins.
var typeKeywords = []struct {
	typ      model.InteractionType
	keywords []string
}{
	{model.InteractionCall, []string{"call", "phone", "spoke"}},
	{model.InteractionMeeting, []string{"meeting", "met", "discuss"}},
	{model.InteractionMessage, []string{"message", "text", "sms"}},
	{model.InteractionEmail, []string{"email", "sent"}},
}

// Signals is everything the extractor derives from one interaction.
type Signals struct {
	InteractionType model.InteractionType `json:"interaction_type"`
	ContextTags     []string              `json:"context_tags"`
	QualityScore    float64               `json:"quality_score"`
	Confidence      float64               `json:"confidence"`
}

// ExtractQualityScore rates an interaction 0-100 from its type plus
// diminishing bonuses for call/meeting duration and note length.
func ExtractQualityScore(i model.Interaction) float64 {
	score, ok := baseQuality[i.Type]
	if !ok {
		score = unknownTypeQuality
	}

	if (i.Type == model.InteractionCall || i.Type == model.InteractionMeeting) && i.Duration != nil {
		score += math.Min(maxDurationBonus, *i.Duration/5)
	}

	if i.HasNotes() {
		score += math.Min(maxNotesBonus, float64(utf8.RuneCountInString(*i.Notes))/50)
	}

	return clamp(score, 0, 100)
}

// ExtractContextTags returns the sorted, deduplicated context tags for an
// interaction.
func ExtractContextTags(i model.Interaction) []string {
	tags := map[string]bool{
		"type:" + string(i.Type): true,
	}

	if h := i.Timestamp.Hour(); h >= 9 && h < 17 {
		tags["time:business-hours"] = true
	} else {
		tags["time:after-hours"] = true
	}

	if i.Duration != nil {
		switch d := *i.Duration; {
		case d <= 15:
			tags["duration:short"] = true
		case d <= 60:
			tags["duration:medium"] = true
		default:
			tags["duration:long"] = true
		}
	}

	if i.HasNotes() {
		notes := strings.ToLower(*i.Notes)
		for _, ck := range contextKeywords {
			for _, kw := range ck.keywords {
				if strings.Contains(notes, kw) {
					tags[ck.tag] = true
					break
				}
			}
		}
	}

	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExtractSignals bundles quality, tags and a completeness-based confidence.
// Confidence is a heuristic of how much the record tells us, not a
// statistical estimate.
func ExtractSignals(i model.Interaction) Signals {
	tags := ExtractContextTags(i)

	confidence := 0.5
	if i.HasNotes() {
		confidence += 0.2
	}
	if i.Duration != nil {
		confidence += 0.2
	}
	if len(tags) > 3 {
		confidence += 0.1
	}

	return Signals{
		InteractionType: i.Type,
		ContextTags:     tags,
		QualityScore:    ExtractQualityScore(i),
		Confidence:      math.Min(1.0, confidence),
	}
}

// ClassifyInteractionType guesses an interaction type from free text by
// case-insensitive keyword containment, so "telephoned" counts as a call and
// "resent" as an email. Keyword families are checked in priority order;
// defaults to other.
func ClassifyInteractionType(text string) model.InteractionType {
	lower := strings.ToLower(text)
	for _, tk := range typeKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				return tk.typ
			}
		}
	}
	return model.InteractionOther
}
