package stages

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// BrollIntegrationHandler is stage 7: trim each B-roll clip to at most 3 s
// (re-encoding it) and overlay it over the base video between its
// timestamp and timestamp+duration. Clips are not rescaled or letterboxed:
// each is drawn at the frame's top-left corner at its own resolution, and
// its audio is dropped from the output. With no clips, illustrated.mp4 is a straight copy
// of nosilence.mp4 so the downstream contract always has the file.
type BrollIntegrationHandler struct {
	Tools localmedia.Tools
}

func (h *BrollIntegrationHandler) Type() string { return "stage_broll_integration" }

func (h *BrollIntegrationHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "integrating B-roll")

	if !ctx.Arena.Exists("nosilence.mp4") {
		ctx.Fail(fmt.Errorf("stage_broll_integration: nosilence.mp4 missing"))
		return nil
	}

	var clipsFile BrollClipsFile
	if ctx.Arena.Exists("broll_clips.json") {
		raw, err := ctx.Arena.Read("broll_clips.json")
		if err != nil {
			ctx.Fail(fmt.Errorf("read broll_clips.json: %w", err))
			return nil
		}
		if err := json.Unmarshal(raw, &clipsFile); err != nil {
			ctx.Fail(fmt.Errorf("parse broll_clips.json: %w", err))
			return nil
		}
	}

	if len(clipsFile.Clips) == 0 {
		if err := arena.CopyFile(ctx.Arena, "nosilence.mp4", "illustrated.mp4"); err != nil {
			ctx.Fail(fmt.Errorf("passthrough copy: %w", err))
			return nil
		}
		if err := ctx.WriteOutput("illustrated", "illustrated.mp4"); err != nil {
			ctx.Fail(err)
			return nil
		}
		ctx.Succeed(map[string]any{"clips_applied": 0})
		return nil
	}

	current := "nosilence.mp4"
	for i, clip := range clipsFile.Clips {
		normalized := fmt.Sprintf("broll/clip_%02d_norm.mp4", i+1)
		keep := []localmedia.Segment{{StartSec: 0, EndSec: minFloat(clip.Duration, 3.0)}}
		if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path(clip.File), ctx.Arena.Path(normalized), keep); err != nil {
			ctx.Fail(fmt.Errorf("normalize broll clip %q: %w", clip.File, err))
			return nil
		}
		next := fmt.Sprintf("illustrated_step_%02d.mp4", i+1)
		if err := h.Tools.OverlayClip(ctx.Ctx, ctx.Arena.Path(current), ctx.Arena.Path(normalized), ctx.Arena.Path(next), clip.Timestamp, clip.Timestamp+clip.Duration); err != nil {
			ctx.Fail(fmt.Errorf("overlay broll clip %q: %w", clip.File, err))
			return nil
		}
		if current != "nosilence.mp4" {
			_ = ctx.Arena.Remove(current)
		}
		_ = ctx.Arena.Remove(normalized)
		current = next
		ctx.Progress(10+((i+1)*80)/len(clipsFile.Clips), fmt.Sprintf("applied broll clip %d/%d", i+1, len(clipsFile.Clips)))
	}

	if err := arena.CopyFile(ctx.Arena, current, "illustrated.mp4"); err != nil {
		ctx.Fail(fmt.Errorf("finalize illustrated.mp4: %w", err))
		return nil
	}
	_ = ctx.Arena.Remove(current)

	if err := ctx.WriteOutput("illustrated", "illustrated.mp4"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Succeed(map[string]any{"clips_applied": len(clipsFile.Clips)})
	return nil
}
