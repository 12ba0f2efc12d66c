package stages

import (
	"strings"
	"testing"
)

func TestWordsInWindow_SplitsSegmentProportionally(t *testing.T) {
	segs := []TranscriptSegment{
		{Start: 0, End: 4, Text: "ab ab"},
	}
	got := wordsInWindow(segs, 0, 4)
	if len(got) != 2 {
		t.Fatalf("got %d words, want 2", len(got))
	}
	// Equal character counts split the segment evenly.
	if got[0].Start != 0 || got[0].End != 2 {
		t.Fatalf("first word span %v-%v, want 0-2", got[0].Start, got[0].End)
	}
	if got[1].Start != 2 || got[1].End != 4 {
		t.Fatalf("second word span %v-%v, want 2-4", got[1].Start, got[1].End)
	}
}

func TestWordsInWindow_ClipsToWindow(t *testing.T) {
	segs := []TranscriptSegment{
		{Start: 0, End: 10, Text: "one two"},
		{Start: 10, End: 20, Text: "three four"},
	}
	got := wordsInWindow(segs, 10, 20)
	if len(got) != 2 {
		t.Fatalf("got %d words, want 2 (first segment is outside the window)", len(got))
	}
	if got[0].Text != "three" || got[1].Text != "four" {
		t.Fatalf("got words %q %q", got[0].Text, got[1].Text)
	}
}

func TestWordsInWindow_SkipsEmptySegments(t *testing.T) {
	segs := []TranscriptSegment{
		{Start: 0, End: 2, Text: "   "},
		{Start: 2, End: 4, Text: "hi"},
	}
	got := wordsInWindow(segs, 0, 4)
	if len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("got %v, want only the non-empty segment's word", got)
	}
}

func TestBuildKaraokeASS_OneDialoguePerWord(t *testing.T) {
	words := []wordTiming{
		{Text: "alpha", Start: 0, End: 0.5},
		{Text: "beta", Start: 0.5, End: 1.0},
		{Text: "gamma", Start: 1.0, End: 1.5},
	}
	ass := BuildKaraokeASS(words, "#FFB6C1", "#FFFFFF", 64)
	if got := strings.Count(ass, "Dialogue:"); got != 3 {
		t.Fatalf("got %d Dialogue events, want one per word (3)", got)
	}
	// The highlight color must appear in the events, byte-reversed to
	// ASS's BGR ordering.
	if !strings.Contains(ass, "&H00C1B6FF&") {
		t.Fatalf("accent color missing from output:\n%s", ass)
	}
}

func TestBuildKaraokeASS_ChunksBreakIntoLines(t *testing.T) {
	words := make([]wordTiming, wordsPerChunk)
	for i := range words {
		words[i] = wordTiming{Text: "w", Start: float64(i), End: float64(i + 1)}
	}
	ass := BuildKaraokeASS(words, "#FF0000", "#FFFFFF", 64)
	// A full 2x2 chunk renders each event as two lines joined by \N.
	for _, line := range strings.Split(ass, "\n") {
		if strings.HasPrefix(line, "Dialogue:") && !strings.Contains(line, `\N`) {
			t.Fatalf("dialogue event missing line break: %s", line)
		}
	}
}

func TestAssColor(t *testing.T) {
	if got := assColor("#FFB6C1"); got != "&H00C1B6FF&" {
		t.Fatalf("got %q", got)
	}
	if got := assColor("bogus"); got != "&H00FFFFFF&" {
		t.Fatalf("malformed input should default to white, got %q", got)
	}
}

func TestAssTime(t *testing.T) {
	cases := map[float64]string{
		0:       "0:00:00.00",
		1.25:    "0:00:01.25",
		61.5:    "0:01:01.50",
		3600.01: "1:00:00.01",
		-3:      "0:00:00.00",
	}
	for in, want := range cases {
		if got := assTime(in); got != want {
			t.Fatalf("assTime(%v) = %q, want %q", in, got, want)
		}
	}
}
