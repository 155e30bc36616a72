package table

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when coercing raw cells to dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseTime coerces a raw cell to a timestamp. Unparseable values report
// ok=false; callers turn those into missing cells rather than failing
// the row.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseFloat coerces a raw cell to a float. Unparseable values report
// ok=false.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
