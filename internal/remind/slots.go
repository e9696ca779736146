package remind

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"minuteman/internal/services"
)

// Slot is one named point in time relative to a task deadline. Two forms
// are accepted:
//
//	day-before@HH:MM  an absolute clock time on the calendar day before due
//	<duration>        a Go duration subtracted from the due instant, e.g. 1h
type Slot struct {
	Name      string
	dayBefore bool
	hour      int
	minute    int
	offset    time.Duration
}

const dayBeforePrefix = "day-before@"

// ParseSlot interprets one configured slot string.
func ParseSlot(spec string) (Slot, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return Slot{}, services.Wrap(services.ErrConfiguration, "remind", "parse_slot", "empty slot spec", nil)
	}
	if clock, ok := strings.CutPrefix(trimmed, dayBeforePrefix); ok {
		hourPart, minutePart, found := strings.Cut(clock, ":")
		if !found {
			return Slot{}, services.Wrap(services.ErrConfiguration, "remind", "parse_slot",
				fmt.Sprintf("slot %q: expected day-before@HH:MM", trimmed), nil)
		}
		hour, err := strconv.Atoi(hourPart)
		if err != nil || hour < 0 || hour > 23 {
			return Slot{}, services.Wrap(services.ErrConfiguration, "remind", "parse_slot",
				fmt.Sprintf("slot %q: bad hour", trimmed), err)
		}
		minute, err := strconv.Atoi(minutePart)
		if err != nil || minute < 0 || minute > 59 {
			return Slot{}, services.Wrap(services.ErrConfiguration, "remind", "parse_slot",
				fmt.Sprintf("slot %q: bad minute", trimmed), err)
		}
		return Slot{Name: trimmed, dayBefore: true, hour: hour, minute: minute}, nil
	}
	offset, err := time.ParseDuration(trimmed)
	if err != nil || offset <= 0 {
		return Slot{}, services.Wrap(services.ErrConfiguration, "remind", "parse_slot",
			fmt.Sprintf("slot %q: expected day-before@HH:MM or a positive duration", trimmed), err)
	}
	return Slot{Name: trimmed, offset: offset}, nil
}

// ParseSlots interprets a configured slot list, preserving order.
func ParseSlots(specs []string) ([]Slot, error) {
	slots := make([]Slot, 0, len(specs))
	for _, spec := range specs {
		slot, err := ParseSlot(spec)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// Resolve computes the slot's absolute instant for a deadline. All calendar
// arithmetic happens in the deadline's location.
func (s Slot) Resolve(due time.Time) time.Time {
	if s.dayBefore {
		loc := due.Location()
		dayBefore := due.AddDate(0, 0, -1)
		return time.Date(dayBefore.Year(), dayBefore.Month(), dayBefore.Day(), s.hour, s.minute, 0, 0, loc)
	}
	return due.Add(-s.offset)
}
