package stages

import "testing"

func transcriptFixture() []TranscriptSegment {
	return []TranscriptSegment{
		{Start: 0, End: 7.12, Text: "a"},
		{Start: 7.12, End: 15.4, Text: "b"},
		{Start: 15.4, End: 31.05, Text: "c"},
		{Start: 31.05, End: 40, Text: "d"},
	}
}

// A proposed window of (7.3, 45.8) snaps to the nearest boundaries
// (7.12, 31.05), yielding a 23.93s short. The next boundary after 31.05
// sits far enough past 45.8 that 31.05 remains nearest.
func TestSnapWindow_SnapsToNearestBoundaries(t *testing.T) {
	segs := []TranscriptSegment{
		{Start: 0, End: 7.12, Text: "a"},
		{Start: 7.12, End: 15.4, Text: "b"},
		{Start: 15.4, End: 31.05, Text: "c"},
		{Start: 31.05, End: 70, Text: "d"},
	}
	snapped, ok := SnapWindow(segs, 7.3, 45.8)
	if !ok {
		t.Fatalf("expected window to be accepted")
	}
	if snapped.Start != 7.12 || snapped.End != 31.05 {
		t.Fatalf("got %+v, want {7.12 31.05}", snapped)
	}
}

func TestSnapWindow_RejectsOverlongSnappedDuration(t *testing.T) {
	// Snapping (0, 40) lands on (0, 40), a 40s short - over the 26s cap.
	_, ok := SnapWindow(transcriptFixture(), 0, 40)
	if ok {
		t.Fatalf("expected an over-long snapped window to be rejected")
	}
}

func TestSnapWindow_RejectsUndershortDuration(t *testing.T) {
	// Snapping (7.0, 7.2) lands both ends on 7.12, a zero-length window.
	_, ok := SnapWindow(transcriptFixture(), 7.0, 7.2)
	if ok {
		t.Fatalf("expected a too-short snapped window to be rejected")
	}
}

func TestSnapWindow_AcceptsExactBoundaryDurations(t *testing.T) {
	snapped, ok := SnapWindow(transcriptFixture(), 7.12, 15.4)
	if !ok {
		t.Fatalf("expected an exact-boundary window to be accepted")
	}
	if snapped.Start != 7.12 || snapped.End != 15.4 {
		t.Fatalf("got %+v", snapped)
	}
}

func TestCandidateBoundaries_DeduplicatesAndSorts(t *testing.T) {
	segs := []TranscriptSegment{
		{Start: 5, End: 10},
		{Start: 10, End: 15},
		{Start: 2, End: 5},
	}
	got := candidateBoundaries(segs)
	want := []float64{2, 5, 10, 15}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
