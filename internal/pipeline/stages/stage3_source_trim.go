package stages

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// SourceTrimHandler is stage 3: apply stage 2's exact segment list to the
// individual screen/webcam sources, so stage 5 can recomposite them into
// vertical shorts without drift against the final silence cut.
//
// A missing segments.json is a hard failure here, never a silent
// re-detection — stage 2 is the sole producer of that contract.
type SourceTrimHandler struct {
	Tools localmedia.Tools
}

func (h *SourceTrimHandler) Type() string { return "stage_source_trim" }

func (h *SourceTrimHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "trimming sources")

	// A canvas recording has no separate sources to trim: succeed with
	// empty outputs so stage 5 falls back to a zero-short batch.
	if ctx.Arena.Exists("combined.webm") && !ctx.Arena.Exists("screen.mp4") {
		ctx.Succeed(map[string]any{"webcam_present": false, "segments": 0})
		return nil
	}

	if !ctx.Arena.Exists("segments.json") {
		ctx.Fail(fmt.Errorf("stage_source_trim: segments.json missing"))
		return nil
	}
	raw, err := ctx.Arena.Read("segments.json")
	if err != nil {
		ctx.Fail(fmt.Errorf("read segments.json: %w", err))
		return nil
	}
	var segmentsFile SegmentsFile
	if err := json.Unmarshal(raw, &segmentsFile); err != nil {
		ctx.Fail(fmt.Errorf("parse segments.json: %w", err))
		return nil
	}
	if len(segmentsFile.Segments) == 0 {
		ctx.Fail(fmt.Errorf("stage_source_trim: segments.json has no kept segments"))
		return nil
	}
	keep := toMediaSegments(segmentsFile.Segments)

	if !ctx.Arena.Exists("screen.mp4") {
		ctx.Fail(fmt.Errorf("stage_source_trim: screen.mp4 missing"))
		return nil
	}
	if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path("screen.mp4"), ctx.Arena.Path("screennosilence.mp4"), keep); err != nil {
		ctx.Fail(fmt.Errorf("trim screen: %w", err))
		return nil
	}
	if err := ctx.WriteOutput("screen_nosilence", "screennosilence.mp4"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Progress(50, "screen trimmed")

	webcamPresent := ctx.Arena.Exists("webcam.mp4")
	if webcamPresent {
		if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path("webcam.mp4"), ctx.Arena.Path("webcamnosilence.mp4"), keep); err != nil {
			ctx.Fail(fmt.Errorf("trim webcam: %w", err))
			return nil
		}
		if err := ctx.WriteOutput("webcam_nosilence", "webcamnosilence.mp4"); err != nil {
			ctx.Fail(err)
			return nil
		}
	}

	ctx.Succeed(map[string]any{"webcam_present": webcamPresent, "segments": len(keep)})
	return nil
}
