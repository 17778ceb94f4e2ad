package lifecycle

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthNames maps every accepted month spelling to its month. Full names are listed
// before abbreviations in monthAlternation so the longest spelling matches.
var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sept": time.September,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|` +
	`jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

// dateFormat is one accepted textual date shape.
type dateFormat struct {
	re    *regexp.Regexp
	parse func(m []string) (time.Time, bool)
}

// dateFormats are tried in order; the first valid match wins.
var dateFormats = []dateFormat{
	{
		// Month D, YYYY
		re: regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2}),?\s+(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return calendarDate(atoi(m[3]), monthNames[strings.ToLower(m[1])], atoi(m[2]))
		},
	},
	{
		// YYYY-MM-DD
		re: regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`),
		parse: func(m []string) (time.Time, bool) {
			return calendarDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
		},
	},
	{
		// MM/DD/YYYY
		re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return calendarDate(atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2]))
		},
	},
	{
		// Month YYYY, day defaults to 1
		re: regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{4})\b`),
		parse: func(m []string) (time.Time, bool) {
			return calendarDate(atoi(m[2]), monthNames[strings.ToLower(m[1])], 1)
		},
	},
}

// ParseDate extracts the first calendar date from free text.
func ParseDate(text string) (time.Time, bool) {
	for _, f := range dateFormats {
		for _, m := range f.re.FindAllStringSubmatch(text, -1) {
			if t, ok := f.parse(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// calendarDate builds a UTC midnight date, rejecting values time.Date would normalize.
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
