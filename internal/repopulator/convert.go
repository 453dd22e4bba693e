package repopulator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// numericDate matches day, month and year separated by dots or dashes, which
// are rewritten with slashes so the day-first preference applies to them.
var numericDate = regexp.MustCompile(`^(\d{1,2})[.-](\d{1,2})[.-](\d{2,4})(.*)$`)

// timeLayouts are the accepted spellings of a time of day. dateparse needs
// a date, so TM values are matched here.
var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"150405",
	"1504",
	"15:04:05.000",
	"150405.000000",
	"3:04:05 PM",
	"3:04 PM",
}

// ConvertValue turns a mapping-table cell into the text stored in a field
// with the given value representation. Dates (DA), date-times (DT) and
// times (TM) are normalized; other VRs keep the text as is. A blank cell
// clears the field.
func ConvertValue(raw, vr string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", nil
	}

	switch vr {
	case "DA":
		t, err := parseDate(value)
		if err != nil {
			return "", err
		}
		return t.Format("20060102"), nil
	case "DT":
		if len(value) == len("20060102150405") && isDigits(value) {
			return value, nil
		}
		t, err := parseDate(value)
		if err != nil {
			return "", err
		}
		return t.Format("20060102150405"), nil
	case "TM":
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.Format("150405"), nil
			}
		}
		return "", fmt.Errorf("unrecognised time %q", raw)
	default:
		return raw, nil
	}
}

// parseDate reads a calendar date, with an optional time of day, in any
// layout dateparse understands. Ambiguous numeric dates are read day first.
// Bare digit strings other than YYYYMMDD are rejected rather than taken as
// Unix timestamps.
func parseDate(value string) (time.Time, error) {
	if isDigits(value) && len(value) != len("20060102") {
		return time.Time{}, fmt.Errorf("unrecognised date %q", value)
	}
	normalized := numericDate.ReplaceAllString(value, "$1/$2/$3$4")

	t, err := dateparse.ParseIn(normalized, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q: %w", value, err)
	}
	return t, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
