package resolver

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layouts tried before falling back to the lenient parser. Publication
// pages overwhelmingly use one of these.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
	"02/01/2006",
}

// ParseDate runs the two-stage date parse: the configured regex list first
// narrows the raw string to a date/time substring (named groups "date" and
// optional "time"), then the result goes through the strict layouts and
// finally the lenient parser. Both stages failing yields "" while the caller
// keeps the raw string.
func ParseDate(patterns []string, raw string) string {
	candidate := MatchDateValue(patterns, raw)
	if candidate == "" {
		candidate = raw
	}
	return parseISO(candidate)
}

// MatchDateValue applies the regex list in order and returns the first
// match's date (and time, when captured) or "".
func MatchDateValue(patterns []string, raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		var date, clock string
		for i, name := range re.SubexpNames() {
			if i >= len(m) {
				break
			}
			switch name {
			case "date":
				date = m[i]
			case "time":
				clock = m[i]
			}
		}
		if date != "" {
			return strings.TrimSpace(date + " " + clock)
		}
	}
	return ""
}

func parseISO(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format(time.RFC3339)
		}
	}
	if ts, err := dateparse.ParseAny(value); err == nil {
		return ts.Format(time.RFC3339)
	}
	return ""
}
