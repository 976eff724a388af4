// Package timeparse turns free-form date and time phrases into instants.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Result is a parsed instant. IsTimeCertain is false when only the date was given.
type Result struct {
	Instant       time.Time
	IsTimeCertain bool
	Confidence    Confidence
	Text          string
}

var (
	clockRe     = regexp.MustCompile(`(?i)\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)|\d{1,2}:\d{2}|\bnoon\b|\bmidnight\b|o'?clock`)
	weekdayRe   = regexp.MustCompile(`(?i)\b(?:mon|tues?|wed(?:nes)?|thu(?:rs)?|fri|sat(?:ur)?|sun)(?:day)?\b`)
	explicitDay = regexp.MustCompile(`(?i)\b(?:today|tonight|tomorrow|tmr|yesterday|next|last|this|week|month|year|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)|\d{1,2}(?:st|nd|rd|th)\b|\d{1,2}[/.-]\d{1,2}`)

	twelveHourRe = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	twelveAMRe   = regexp.MustCompile(`(?i)\b12(?::\d{2})?\s*a\.?m`)
	atClockRe    = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\b`)
	twentyFourRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	bareHourRe   = regexp.MustCompile(`^(\d{1,2})$`)

	relativeInRe = regexp.MustCompile(`(?i)in (\d+) (day|hour|week)s?`)
)

// colloquial day words rewritten to English before parsing
var dayWords = strings.NewReplacer(
	"നാളെ", "tomorrow",
	"ഇന്ന്", "today",
)

var manglishDayRe = regexp.MustCompile(`(?i)\b(?:naale|nale|naleh)\b|\b(?:innu|inn)\b`)

type Parser struct {
	w *when.Parser
}

func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// Parse resolves text against ref, never into the past. Phrases the
// natural-language rules cannot place after ref fall back to bare clock
// patterns like "3pm", "14:30" or "9".
func (p *Parser) Parse(text string, ref time.Time) (Result, bool) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return Result{}, false
	}

	if r, ok := p.parseNatural(normalizeDayWords(clean), ref); ok {
		r.Text = clean
		return r, true
	}

	return parseSimpleTime(clean, ref)
}

func (p *Parser) parseNatural(text string, ref time.Time) (Result, bool) {
	res, err := p.w.Parse(text, ref)
	if err != nil || res == nil {
		return Result{}, false
	}

	certain := clockRe.MatchString(res.Text)
	t := res.Time.In(ref.Location())

	switch {
	case certain:
		hour := t.Hour()
		// the en rules read "12am" as noon
		if hour == 12 && twelveAMRe.MatchString(res.Text) {
			hour = 0
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), hour, t.Minute(), 0, 0, t.Location())
	default:
		day := startOfDay(t)
		if h, m, ok := atClock(text); ok {
			t = time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
			certain = true
		} else {
			t = day
		}
	}

	rollWeekday := weekdayRe.MatchString(res.Text) && !explicitDay.MatchString(res.Text)

	if certain {
		if !t.After(ref) {
			switch {
			case rollWeekday:
				t = t.AddDate(0, 0, 7)
			case !explicitDay.MatchString(res.Text):
				t = t.AddDate(0, 0, 1)
			}
		}
		if !t.After(ref) {
			return Result{}, false
		}
	} else {
		// a date without a time only has to fall on or after ref's day
		today := startOfDay(ref)
		if t.Before(today) && rollWeekday {
			t = t.AddDate(0, 0, 7)
		}
		if t.Before(today) {
			return Result{}, false
		}
	}

	conf := ConfidenceMedium
	if certain {
		conf = ConfidenceHigh
	}
	return Result{Instant: t, IsTimeCertain: certain, Confidence: conf}, true
}

func parseSimpleTime(text string, ref time.Time) (Result, bool) {
	for _, re := range []*regexp.Regexp{twelveHourRe, atClockRe, twentyFourRe, bareHourRe} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		hours, _ := strconv.Atoi(m[1])
		minutes := 0
		if len(m) > 2 && m[2] != "" {
			minutes, _ = strconv.Atoi(m[2])
		}
		if len(m) > 3 {
			switch strings.ToLower(m[3]) {
			case "pm":
				if hours != 12 {
					hours += 12
				}
			case "am":
				if hours == 12 {
					hours = 0
				}
			}
		}

		if hours < 0 || hours >= 24 || minutes < 0 || minutes >= 60 {
			continue
		}

		day := startOfDay(ref)
		t := time.Date(day.Year(), day.Month(), day.Day(), hours, minutes, 0, 0, day.Location())
		if t.Before(ref) {
			t = t.AddDate(0, 0, 1)
		}

		return Result{
			Instant:       t,
			IsTimeCertain: true,
			Confidence:    ConfidenceMedium,
			Text:          text,
		}, true
	}

	return Result{}, false
}

// atClock reads "at 10" or "at 10:30" as a 24-hour clock time.
func atClock(text string) (int, int, bool) {
	m := atClockRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	if hours >= 24 || minutes >= 60 {
		return 0, 0, false
	}
	return hours, minutes, true
}

// ParseRelative handles only "today", "tomorrow" and "in N days|hours|weeks".
func ParseRelative(text string, ref time.Time) (time.Time, bool) {
	lower := strings.ToLower(normalizeDayWords(text))

	if strings.Contains(lower, "tomorrow") {
		return startOfDay(ref).AddDate(0, 0, 1), true
	}
	if strings.Contains(lower, "today") {
		return startOfDay(ref), true
	}

	if m := relativeInRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "day":
			return ref.AddDate(0, 0, n), true
		case "hour":
			return ref.Add(time.Duration(n) * time.Hour), true
		case "week":
			return ref.AddDate(0, 0, 7*n), true
		}
	}

	return time.Time{}, false
}

func normalizeDayWords(text string) string {
	text = dayWords.Replace(text)
	return manglishDayRe.ReplaceAllStringFunc(text, func(w string) string {
		switch strings.ToLower(w) {
		case "innu", "inn":
			return "today"
		default:
			return "tomorrow"
		}
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time { return startOfDay(t) }
