package stages

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSchedulePreferences_EmptyPathIsOptional(t *testing.T) {
	prefs, err := LoadSchedulePreferences("")
	if err != nil {
		t.Fatalf("expected nil error for empty path, got %v", err)
	}
	if prefs != nil {
		t.Fatalf("expected nil prefs for empty path, got %+v", prefs)
	}
}

func TestLoadSchedulePreferences_ParsesWeekdayHourPairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs.yaml")
	doc := "preferences:\n  - weekday: 2\n    hour: 14\n  - weekday: 6\n    hour: 9\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write prefs file: %v", err)
	}

	prefs, err := LoadSchedulePreferences(path)
	if err != nil {
		t.Fatalf("LoadSchedulePreferences: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("expected 2 preferences, got %d", len(prefs))
	}
	if prefs[0].Weekday != int(time.Tuesday) || prefs[0].Hour != 14 {
		t.Fatalf("unexpected first preference: %+v", prefs[0])
	}
	if prefs[1].Weekday != int(time.Saturday) || prefs[1].Hour != 9 {
		t.Fatalf("unexpected second preference: %+v", prefs[1])
	}
}

func TestLoadSchedulePreferences_RejectsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs.yaml")
	doc := "preferences:\n  - weekday: 7\n    hour: 14\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write prefs file: %v", err)
	}
	if _, err := LoadSchedulePreferences(path); err == nil {
		t.Fatalf("expected error for weekday 7")
	}
}
