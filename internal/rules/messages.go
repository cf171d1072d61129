package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/lazypower/rapport/internal/engine"
)

func (c InactivityConfig) message(in Input) string {
	name := in.Contact.DisplayName()
	if in.Contact.LastContactedAt == nil {
		return fmt.Sprintf("Time to reach out to %s! You haven't connected yet.", name)
	}
	days := wholeDays(engine.DaysBetween(*in.Contact.LastContactedAt, in.Now))
	return fmt.Sprintf("Time to reach out to %s! You haven't connected in %d days.", name, days)
}

func (c RecurringConfig) message(in Input) string {
	name := in.Contact.DisplayName()
	ref, ok := referenceDate(in)
	if !ok {
		return fmt.Sprintf("Time for your first check-in with %s.", name)
	}
	days := wholeDays(engine.DaysBetween(ref, in.Now))
	return fmt.Sprintf("Time for your regular check-in with %s. It's been %d days (every %d days).", name, days, c.RecurringDays)
}

func (c DateConfig) message(in Input) string {
	name := in.Contact.DisplayName()
	if c.isBirthday(in) {
		return fmt.Sprintf("It's %s's birthday today! Send them your wishes.", name)
	}
	return fmt.Sprintf("Today is a special date for %s. Reach out and mark the occasion.", name)
}

func (c DecayConfig) message(in Input) string {
	return fmt.Sprintf("Your connection with %s is fading (score %.0f, below %.0f). A quick hello could help.",
		in.Contact.DisplayName(), in.Score, c.ScoreThreshold)
}

func (c DateConfig) isBirthday(in Input) bool {
	if strings.Contains(strings.ToLower(c.Pattern), "birthday") {
		return true
	}
	return in.Contact.Notes != nil && strings.Contains(strings.ToLower(*in.Contact.Notes), "birthday")
}

func wholeDays(d float64) int {
	if d < 0 {
		return 0
	}
	return int(math.Floor(d))
}
