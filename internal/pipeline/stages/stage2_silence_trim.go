package stages

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// SilenceTrimHandler is stage 2: detect silence in original.mp4, compute
// the kept-segment set, and cut nosilence.mp4, writing segments.json as
// the single source of truth for every later "where did the talking
// happen" question.
type SilenceTrimHandler struct {
	Tools localmedia.Tools
}

func (h *SilenceTrimHandler) Type() string { return "stage_silence_trim" }

func (h *SilenceTrimHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "detecting silence")

	if !ctx.Arena.Exists("original.mp4") {
		ctx.Fail(fmt.Errorf("stage_silence_trim: original.mp4 missing"))
		return nil
	}

	duration, err := h.Tools.Probe(ctx.Ctx, ctx.Arena.Path("original.mp4"))
	if err != nil {
		ctx.Fail(fmt.Errorf("probe original.mp4: %w", err))
		return nil
	}

	silences, err := h.Tools.DetectSilence(ctx.Ctx, ctx.Arena.Path("original.mp4"), localmedia.SilenceOptions{
		NoiseDB:        defaultSilenceThresholdDB,
		MinDurationSec: defaultMinSilenceSec,
	})
	if err != nil {
		ctx.Fail(fmt.Errorf("detect silence: %w", err))
		return nil
	}
	ctx.Progress(30, "computing kept segments")

	silenceSegs := make([]Segment, 0, len(silences))
	for _, s := range silences {
		silenceSegs = append(silenceSegs, Segment{Start: s.StartSec, End: s.EndSec})
	}
	kept := KeptSegmentsFromSilences(silenceSegs, duration, defaultPaddingSec, defaultMergeGapSec)
	if len(kept) == 0 {
		ctx.Fail(fmt.Errorf("stage_silence_trim: no non-silent segments found"))
		return nil
	}

	segmentsFile := SegmentsFile{
		Segments:         kept,
		Silences:         silenceSegs,
		OriginalDuration: duration,
		ThresholdDB:      defaultSilenceThresholdDB,
		MinSilence:       defaultMinSilenceSec,
		Padding:          defaultPaddingSec,
	}
	segBytes, err := json.MarshalIndent(segmentsFile, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal segments.json: %w", err))
		return nil
	}
	// segments.json must exist before the encoded output is declared
	// complete, so it is written ahead of the (slower) trim pass.
	if err := ctx.Arena.Write("segments.json", segBytes); err != nil {
		ctx.Fail(fmt.Errorf("write segments.json: %w", err))
		return nil
	}

	ctx.Progress(50, "trimming silence")
	if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path("original.mp4"), ctx.Arena.Path("nosilence.mp4"), toMediaSegments(kept)); err != nil {
		ctx.Fail(fmt.Errorf("trim silence: %w", err))
		return nil
	}

	if err := ctx.WriteOutput("nosilence", "nosilence.mp4"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Succeed(map[string]any{"kept_segments": len(kept), "silences": len(silences)})
	return nil
}

func toMediaSegments(segs []Segment) []localmedia.Segment {
	out := make([]localmedia.Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, localmedia.Segment{StartSec: s.Start, EndSec: s.End})
	}
	return out
}
