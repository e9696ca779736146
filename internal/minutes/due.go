package minutes

import (
	"strings"
	"time"
)

// dueFormats lists the accepted due-date notations, tried in order. The
// month/day form is interpreted in the current year.
var dueFormats = []struct {
	layout   string
	dateOnly bool
	yearless bool
}{
	{layout: "2006-01-02 15:04"},
	{layout: "2006/01/02 15:04"},
	{layout: "2006-01-02", dateOnly: true},
	{layout: "2006/01/02", dateOnly: true},
	{layout: "1/2", dateOnly: true, yearless: true},
}

// ParseDue interprets a due string in the configured timezone. Date-only
// forms get defaultHour:00 as their time of day. Unparseable or empty
// strings return nil; callers treat those tasks as having no deadline.
func ParseDue(raw string, loc *time.Location, defaultHour int, now time.Time) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == UnassignedLabel {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, format := range dueFormats {
		parsed, err := time.ParseInLocation(format.layout, trimmed, loc)
		if err != nil {
			continue
		}
		year := parsed.Year()
		if format.yearless {
			year = now.In(loc).Year()
		}
		hour := parsed.Hour()
		minute := parsed.Minute()
		if format.dateOnly {
			hour = defaultHour
			minute = 0
		}
		due := time.Date(year, parsed.Month(), parsed.Day(), hour, minute, 0, 0, loc)
		return &due
	}
	return nil
}
