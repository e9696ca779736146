package remind_test

import (
	"testing"
	"time"

	"minuteman/internal/remind"
)

func TestParseSlotDayBefore(t *testing.T) {
	slot, err := remind.ParseSlot("day-before@10:00")
	if err != nil {
		t.Fatalf("ParseSlot failed: %v", err)
	}
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	got := slot.Resolve(due)
	want := time.Date(2025, 10, 24, 10, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestParseSlotDuration(t *testing.T) {
	slot, err := remind.ParseSlot("1h")
	if err != nil {
		t.Fatalf("ParseSlot failed: %v", err)
	}
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	got := slot.Resolve(due)
	want := time.Date(2025, 10, 25, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestParseSlotDayBeforeCrossesMonth(t *testing.T) {
	slot, err := remind.ParseSlot("day-before@09:30")
	if err != nil {
		t.Fatalf("ParseSlot failed: %v", err)
	}
	due := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	got := slot.Resolve(due)
	want := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestParseSlotRejectsBadSpecs(t *testing.T) {
	for _, spec := range []string{"", "day-before@25:00", "day-before@10", "yesterday", "-1h", "0s"} {
		if _, err := remind.ParseSlot(spec); err == nil {
			t.Fatalf("expected error for %q", spec)
		}
	}
}

func TestParseSlotsPreservesOrder(t *testing.T) {
	slots, err := remind.ParseSlots([]string{"day-before@10:00", "1h", "30m"})
	if err != nil {
		t.Fatalf("ParseSlots failed: %v", err)
	}
	if len(slots) != 3 || slots[0].Name != "day-before@10:00" || slots[2].Name != "30m" {
		t.Fatalf("unexpected slots: %#v", slots)
	}
}
