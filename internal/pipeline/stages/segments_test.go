package stages

import "testing"

func segsEqual(a, b []Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End {
			return false
		}
	}
	return true
}

func TestKeptSegmentsFromSilences_NoSilence(t *testing.T) {
	got := KeptSegmentsFromSilences(nil, 30, defaultPaddingSec, defaultMergeGapSec)
	want := []Segment{{Start: 0, End: 30}}
	if !segsEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestKeptSegmentsFromSilences_PaddingClampedToBounds(t *testing.T) {
	silences := []Segment{{Start: 10, End: 12}}
	got := KeptSegmentsFromSilences(silences, 20, 0.1, defaultMergeGapSec)
	want := []Segment{{Start: 0, End: 10.1}, {Start: 11.9, End: 20}}
	if !segsEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestKeptSegmentsFromSilences_MergesCloseGaps(t *testing.T) {
	// The silence between the first two kept segments is short enough
	// that, once both neighbors are padded, their gap falls under the
	// merge threshold and they collapse into one kept segment.
	silences := []Segment{{Start: 5, End: 5.6}, {Start: 7, End: 9}}
	got := KeptSegmentsFromSilences(silences, 20, 0.1, 0.5)
	want := []Segment{{Start: 0, End: 7.1}, {Start: 8.9, End: 20}}
	if !segsEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestKeptSegmentsFromSilences_UnsortedSilencesHandled(t *testing.T) {
	silences := []Segment{{Start: 15, End: 16}, {Start: 5, End: 6}}
	got := KeptSegmentsFromSilences(silences, 20, 0, 0)
	want := []Segment{{Start: 0, End: 5}, {Start: 6, End: 15}, {Start: 16, End: 20}}
	if !segsEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestKeptSegmentsFromSilences_EntireClipSilent(t *testing.T) {
	got := KeptSegmentsFromSilences([]Segment{{Start: 0, End: 30}}, 30, 0.1, 0.5)
	if len(got) != 0 {
		t.Fatalf("expected no kept segments for an entirely silent clip, got %v", got)
	}
}

// A silence of 0.99s is retained by the detector's min-duration threshold
// (not this function's concern), but once a silence IS reported here, the
// complement/merge math around it must still be exact at the boundary.
func TestComplementSegments_TouchesDurationExactly(t *testing.T) {
	got := KeptSegmentsFromSilences([]Segment{{Start: 0, End: 10}}, 10, 0, 0)
	if len(got) != 0 {
		t.Fatalf("expected empty complement when silence spans [0,duration), got %v", got)
	}
}
