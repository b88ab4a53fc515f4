package duration

import (
	"fmt"
	"math"
	"time"
)

// FormatRelative renders t relative to now: "in 5 min", "in 3 hours",
// "12 min ago", "2 days ago".
func FormatRelative(t, now time.Time) string {
	diff := t.Sub(now)
	mins := roundHalfUp(diff.Minutes())
	hours := roundHalfUp(diff.Hours())
	days := roundHalfUp(diff.Hours() / 24)

	if mins < 0 {
		switch {
		case -mins < 60:
			return fmt.Sprintf("%d min ago", -mins)
		case -hours < 24:
			return plural(-hours, "hour") + " ago"
		default:
			return plural(-days, "day") + " ago"
		}
	}
	switch {
	case mins < 60:
		return fmt.Sprintf("in %d min", mins)
	case hours < 24:
		return "in " + plural(hours, "hour")
	default:
		return "in " + plural(days, "day")
	}
}

// roundHalfUp rounds x.5 toward +Inf, matching how the presentation layer rounds.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
