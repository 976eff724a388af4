package timeparse

import (
	"regexp"
	"strings"
	"time"
)

var timeKeywordRe = regexp.MustCompile(`(?i)\b(?:at|tomorrow|today|tonight|next|am|pm|morning|afternoon|evening|noon|breakfast|lunch|dinner|monday|tuesday|wednesday|thursday|friday|saturday|sunday|naale|nale|innu)\b|\d|:`)

// ContainsTimeRequest is a cheap check run before Parse: it reports whether
// text mentions a day, a clock word or any digit.
func ContainsTimeRequest(text string) bool {
	if timeKeywordRe.MatchString(text) {
		return true
	}
	return strings.Contains(text, "നാളെ") || strings.Contains(text, "ഇന്ന്")
}

// FormatAppointmentTime renders t as "Mon, Jan 2 at 3:04 PM" in loc.
func FormatAppointmentTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "Invalid Date"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Mon, Jan 2") + " at " + t.Format("3:04 PM")
}
