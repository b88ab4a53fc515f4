package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"PT1H", "1 hour"},
		{"PT2H", "2 hours"},
		{"PT8H", "8 hours"},
		{"PT30M", "30 minutes"},
		{"PT1M", "1 minute"},
		{"PT4H30M", "4h 30m"},
		{"PT0H45M", "45 minutes"},
		{"bogus", "bogus"},
		{"PT", "PT"},
		{"PT0H", "PT0H"},
		{"P1D", "P1D"},
		{"PT1H30", "PT1H30"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.token))
		})
	}
}

// TestFormat_RoundTrip checks that every valid token encodes back to an
// equivalent token and formats consistently.
func TestFormat_RoundTrip(t *testing.T) {
	for h := 0; h <= 24; h++ {
		for _, m := range []int{0, 1, 15, 30, 59} {
			d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
			if d == 0 {
				continue
			}
			token := FromDuration(d)
			assert.True(t, Valid(token), token)

			got, ok := ToDuration(token)
			assert.True(t, ok, token)
			assert.Equal(t, d, got, token)
			assert.Equal(t, Format(token), Format(FromDuration(got)), token)
			assert.NotEqual(t, token, Format(token), token)
		}
	}
}

func TestValid(t *testing.T) {
	for _, tok := range []string{"PT30M", "PT1H", "PT2H", "PT4H", "PT8H", "PT4H30M", "PT12H"} {
		assert.True(t, Valid(tok), tok)
	}
	for _, tok := range []string{"", "PT", "PT0H", "PT0M", "PT0H0M", "1H", "pt1h", "PT-1H", "PT1.5H", "P1DT1H", " PT1H"} {
		assert.False(t, Valid(tok), tok)
	}
}

func TestHours(t *testing.T) {
	assert.Equal(t, 1, Hours("PT1H"))
	assert.Equal(t, 4, Hours("PT4H30M"))
	assert.Equal(t, 8, Hours("PT8H"))
	assert.Equal(t, DefaultHours, Hours("PT30M"))
	assert.Equal(t, DefaultHours, Hours("bogus"))
	assert.Equal(t, 0, Hours("PT0H"))
}

func TestParse(t *testing.T) {
	p, ok := Parse("PT4H30M")
	assert.True(t, ok)
	assert.Equal(t, Parts{Hours: 4, Minutes: 30, HasH: true, HasM: true}, p)

	p, ok = Parse("PT30M")
	assert.True(t, ok)
	assert.Equal(t, Parts{Minutes: 30, HasM: true}, p)

	_, ok = Parse("bogus")
	assert.False(t, ok)
}

func TestParse_RejectsSpansBeyondTimeDuration(t *testing.T) {
	tests := []struct {
		token string
		ok    bool
	}{
		{"PT2562047H", true},
		{"PT2562048H", false},
		{"PT3000000H", false},
		{"PT153722867M", true},
		{"PT153722868M", false},
		{"PT2562047H59M", false},
		{"PT99999999999999999999H", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			_, ok := Parse(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ok, Valid(tt.token))

			d, ok := ToDuration(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.GreaterOrEqual(t, d, time.Duration(0))
		})
	}
	assert.Equal(t, "PT3000000H", Format("PT3000000H"))
	assert.Equal(t, DefaultHours, Hours("PT3000000H"))
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"soon", now.Add(5 * time.Minute), "in 5 min"},
		{"now", now, "in 0 min"},
		{"one hour", now.Add(time.Hour), "in 1 hour"},
		{"hours", now.Add(7 * time.Hour), "in 7 hours"},
		{"days", now.Add(49 * time.Hour), "in 2 days"},
		{"just past", now.Add(-12 * time.Minute), "12 min ago"},
		{"hour past", now.Add(-90 * time.Minute), "1 hour ago"},
		{"hours past", now.Add(-150 * time.Minute), "2 hours ago"},
		{"day past", now.Add(-30 * time.Hour), "1 day ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRelative(tt.at, now))
		})
	}
}

func TestOptions(t *testing.T) {
	opts := Options()
	assert.Equal(t, []Option{
		{Token: "PT30M", Label: "30 minutes"},
		{Token: "PT1H", Label: "1 hour"},
		{Token: "PT2H", Label: "2 hours"},
		{Token: "PT4H", Label: "4 hours"},
		{Token: "PT8H", Label: "8 hours"},
	}, opts)
	assert.True(t, Valid(DefaultToken))
}
