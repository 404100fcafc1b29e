package importer

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the day-month-year form every parseable date is rewritten to.
const CanonicalDateLayout = "02-01-2006"

// dateLayouts are tried in order; day-first layouts come before month-first so
// ambiguous values such as 03/04/2024 resolve to 3 April.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2006-1-2",
	"1/2/2006",
}

// NormalizeDate rewrites a date into CanonicalDateLayout. Values matching no
// layout are returned trimmed but otherwise untouched, so callers must not
// assume the result is canonical.
func NormalizeDate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}
	return trimmed
}
