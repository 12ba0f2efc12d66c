package stages

import (
	"fmt"
	"strings"

	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// NormalizeHandler is stage 0: re-encode the raw screen/webcam
// recordings to the canonical 60fps CFR format every later stage
// assumes.
type NormalizeHandler struct {
	Tools localmedia.Tools
}

func (h *NormalizeHandler) Type() string { return "stage_normalize" }

func (h *NormalizeHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "normalizing raw recordings")

	screenRaw, err := findRawInput(ctx.Arena, "screen_raw")
	if err != nil {
		ctx.Fail(err)
		return nil
	}
	if err := h.Tools.Normalize(ctx.Ctx, ctx.Arena.Path(screenRaw), ctx.Arena.Path("screen.mp4"), localmedia.NormalizeOptions{FPS: 60, Mute: false}); err != nil {
		ctx.Fail(fmt.Errorf("normalize screen: %w", err))
		return nil
	}
	ctx.Progress(50, "screen normalized")

	webcamPresent := false
	if webcamRaw, err := findRawInput(ctx.Arena, "webcam_raw"); err == nil {
		webcamPresent = true
		if err := h.Tools.Normalize(ctx.Ctx, ctx.Arena.Path(webcamRaw), ctx.Arena.Path("webcam.mp4"), localmedia.NormalizeOptions{FPS: 60, Mute: true}); err != nil {
			ctx.Fail(fmt.Errorf("normalize webcam: %w", err))
			return nil
		}
		_ = ctx.Arena.Remove(webcamRaw)
	}
	_ = ctx.Arena.Remove(screenRaw)

	if err := ctx.WriteOutput("screen", "screen.mp4"); err != nil {
		ctx.Fail(err)
		return nil
	}
	if webcamPresent {
		if err := ctx.WriteOutput("webcam", "webcam.mp4"); err != nil {
			ctx.Fail(err)
			return nil
		}
	}

	ctx.Succeed(map[string]any{"webcam_present": webcamPresent})
	return nil
}

// findRawInput locates the single arena-root file whose base name starts
// with prefix, regardless of container extension (raw uploads may arrive
// in either container format).
func findRawInput(ar arena.Arena, prefix string) (string, error) {
	names, err := ar.List("")
	if err != nil {
		return "", fmt.Errorf("list arena root: %w", err)
	}
	for _, n := range names {
		if strings.HasPrefix(n, prefix+".") {
			return n, nil
		}
	}
	return "", fmt.Errorf("no %s.* input found in artifact directory", prefix)
}
