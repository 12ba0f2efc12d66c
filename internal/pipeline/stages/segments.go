package stages

import "sort"

const (
	defaultSilenceThresholdDB = -30
	defaultMinSilenceSec      = 1.0
	defaultPaddingSec         = 0.1
	defaultMergeGapSec        = 0.5
)

// KeptSegmentsFromSilences implements stage 2's segment algorithm: the
// complement of the silence set (clamped to [0, duration]), each kept
// segment extended by padding on both ends, then any two segments whose
// post-padding gap is under mergeGap are merged into one.
//
// silences must already be sorted and non-overlapping, as ffmpeg's
// silencedetect log naturally produces them in timestamp order.
func KeptSegmentsFromSilences(silences []Segment, duration, padding, mergeGap float64) []Segment {
	complement := complementSegments(silences, duration)
	padded := make([]Segment, 0, len(complement))
	for _, s := range complement {
		start := s.Start - padding
		if start < 0 {
			start = 0
		}
		end := s.End + padding
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}
		padded = append(padded, Segment{Start: start, End: end})
	}
	return mergeClose(padded, mergeGap)
}

// complementSegments returns the gaps between silences within [0, duration]
// — i.e. every non-silent span.
func complementSegments(silences []Segment, duration float64) []Segment {
	sorted := make([]Segment, len(silences))
	copy(sorted, silences)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Segment
	cursor := 0.0
	for _, s := range sorted {
		start := s.Start
		if start < 0 {
			start = 0
		}
		if start > cursor {
			out = append(out, Segment{Start: cursor, End: start})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < duration {
		out = append(out, Segment{Start: cursor, End: duration})
	}
	return out
}

// mergeClose merges adjacent segments whose gap is strictly under gap,
// assuming segs is already sorted by Start (true by construction here).
func mergeClose(segs []Segment, gap float64) []Segment {
	if len(segs) == 0 {
		return segs
	}
	out := []Segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.Start-last.End < gap {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
