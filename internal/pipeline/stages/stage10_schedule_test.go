package stages

import (
	"testing"
	"time"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
)

func TestNextSlot_SameDayLaterHour(t *testing.T) {
	// Tuesday 09:00; preference is Tuesday 14:00, still ahead today.
	from := time.Date(2026, 7, 28, 9, 0, 0, 0, time.UTC)
	got := nextSlot(from, domain.SchedulePreference{Weekday: int(time.Tuesday), Hour: 14})
	want := time.Date(2026, 7, 28, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_SameDayPassedHourRollsAWeek(t *testing.T) {
	// Tuesday 15:00; Tuesday 14:00 already passed, so next Tuesday.
	from := time.Date(2026, 7, 28, 15, 0, 0, 0, time.UTC)
	got := nextSlot(from, domain.SchedulePreference{Weekday: int(time.Tuesday), Hour: 14})
	want := time.Date(2026, 8, 4, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_NextMatchingWeekday(t *testing.T) {
	// Wednesday; preference Saturday.
	from := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	got := nextSlot(from, domain.SchedulePreference{Weekday: int(time.Saturday), Hour: 14})
	want := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_ExactSlotIsKept(t *testing.T) {
	from := time.Date(2026, 7, 28, 14, 0, 0, 0, time.UTC) // Tuesday 14:00
	got := nextSlot(from, domain.SchedulePreference{Weekday: int(time.Tuesday), Hour: 14})
	if !got.Equal(from) {
		t.Fatalf("got %v, want the slot itself %v", got, from)
	}
}
