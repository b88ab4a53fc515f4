// Package duration encodes and decodes the restricted ISO 8601 duration
// tokens (PT[nH][nM]) used for role activation requests and for display.
//
// Decoding never fails: malformed input is returned unchanged by Format and
// falls back to DefaultHours in Hours.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// DefaultHours is used when a token carries no hour component.
const DefaultHours = 8

var tokenPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?$`)

// Parts is a decoded token.
type Parts struct {
	Hours   int
	Minutes int
	HasH    bool
	HasM    bool
}

// Largest components whose sum still fits in a time.Duration.
const (
	maxHours   = math.MaxInt64 / int64(time.Hour)
	maxMinutes = math.MaxInt64 / int64(time.Minute)
)

// Parse decodes a token. ok is false when the token does not match PT[nH][nM]
// or the span it describes does not fit in a time.Duration.
func Parse(token string) (Parts, bool) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return Parts{}, false
	}
	var p Parts
	if m[1] != "" {
		h, err := strconv.Atoi(m[1])
		if err != nil {
			return Parts{}, false
		}
		p.Hours, p.HasH = h, true
	}
	if m[2] != "" {
		mins, err := strconv.Atoi(m[2])
		if err != nil {
			return Parts{}, false
		}
		p.Minutes, p.HasM = mins, true
	}
	if !fits(p) {
		return Parts{}, false
	}
	return p, true
}

func fits(p Parts) bool {
	h, m := int64(p.Hours), int64(p.Minutes)
	if h > maxHours || m > maxMinutes {
		return false
	}
	return time.Duration(h)*time.Hour <= time.Duration(math.MaxInt64)-time.Duration(m)*time.Minute
}

// Valid reports whether token is syntactically valid and describes a non-zero span.
func Valid(token string) bool {
	p, ok := Parse(token)
	return ok && (p.Hours > 0 || p.Minutes > 0)
}

// Format renders a token for humans: "1 hour", "30 minutes", "4h 30m".
// Anything it cannot render is returned unchanged.
func Format(token string) string {
	p, ok := Parse(token)
	if !ok {
		return token
	}
	switch {
	case p.Hours > 0 && p.Minutes > 0:
		return fmt.Sprintf("%dh %dm", p.Hours, p.Minutes)
	case p.Hours > 0:
		return plural(p.Hours, "hour")
	case p.Minutes > 0:
		return plural(p.Minutes, "minute")
	}
	return token
}

// Hours extracts the hour component, defaulting to DefaultHours when absent
// or unparseable.
func Hours(token string) int {
	p, ok := Parse(token)
	if !ok || !p.HasH {
		return DefaultHours
	}
	return p.Hours
}

// ToDuration converts a valid token to a time.Duration.
func ToDuration(token string) (time.Duration, bool) {
	if !Valid(token) {
		return 0, false
	}
	p, _ := Parse(token)
	return time.Duration(p.Hours)*time.Hour + time.Duration(p.Minutes)*time.Minute, true
}

// FromDuration encodes d as a token, truncated to whole minutes.
func FromDuration(d time.Duration) string {
	total := int(d / time.Minute)
	h, m := total/60, total%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("PT%dH", h)
	default:
		return fmt.Sprintf("PT%dM", m)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
