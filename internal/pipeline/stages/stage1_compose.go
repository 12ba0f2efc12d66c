package stages

import (
	"encoding/json"
	"fmt"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// ComposeHandler is stage 1: overlay the webcam onto the screen
// recording per config.json, or re-encode a pre-composited canvas
// recording, producing original.mp4.
type ComposeHandler struct {
	Tools localmedia.Tools
}

func (h *ComposeHandler) Type() string { return "stage_compose" }

func (h *ComposeHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "composing main video")

	if ctx.Arena.Exists("combined.webm") {
		if err := h.Tools.Normalize(ctx.Ctx, ctx.Arena.Path("combined.webm"), ctx.Arena.Path("original.mp4"), localmedia.NormalizeOptions{FPS: 60, Mute: false}); err != nil {
			ctx.Fail(fmt.Errorf("re-encode canvas recording: %w", err))
			return nil
		}
		if err := ctx.WriteOutput("original", "original.mp4"); err != nil {
			ctx.Fail(err)
			return nil
		}
		ctx.Succeed(map[string]any{"mode": "canvas"})
		return nil
	}

	if !ctx.Arena.Exists("screen.mp4") {
		ctx.Fail(fmt.Errorf("stage_compose: screen.mp4 missing"))
		return nil
	}

	if !ctx.Arena.Exists("webcam.mp4") {
		if err := arena.CopyFile(ctx.Arena, "screen.mp4", "original.mp4"); err != nil {
			ctx.Fail(fmt.Errorf("passthrough screen-only: %w", err))
			return nil
		}
		if err := ctx.WriteOutput("original", "original.mp4"); err != nil {
			ctx.Fail(err)
			return nil
		}
		ctx.Succeed(map[string]any{"mode": "screen_only"})
		return nil
	}

	cfg, err := readConfig(ctx.Arena)
	if err != nil {
		ctx.Fail(err)
		return nil
	}

	opts := localmedia.ComposeOptions{
		Layout:      "pip",
		WebcamX:     cfg.WebcamX,
		WebcamY:     cfg.WebcamY,
		WebcamSize:  cfg.WebcamSize,
		WebcamShape: cfg.WebcamShape,
		BorderColor: cfg.BorderColor,
		BorderWidth: cfg.BorderWidth,
	}
	for _, sw := range cfg.LayoutSwitches {
		opts.LayoutSwitches = append(opts.LayoutSwitches, localmedia.LayoutSwitch{TimestampSec: sw.Timestamp, Layout: sw.Layout})
	}

	if err := h.Tools.Compose(ctx.Ctx, ctx.Arena.Path("screen.mp4"), ctx.Arena.Path("webcam.mp4"), ctx.Arena.Path("original.mp4"), opts); err != nil {
		ctx.Fail(fmt.Errorf("compose overlay: %w", err))
		return nil
	}
	if err := ctx.WriteOutput("original", "original.mp4"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Succeed(map[string]any{"mode": "overlay"})
	return nil
}

// readConfig decodes config.json from the arena into a domain.Config. It
// is the shared entry point for the controller-authored compositing,
// shorts, B-roll and scheduling parameters (stages 1, 5, 6 and 10).
func readConfig(ar arena.Arena) (domain.Config, error) {
	var cfg domain.Config
	raw, err := ar.Read("config.json")
	if err != nil {
		return cfg, fmt.Errorf("read config.json: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config.json: %w", err)
	}
	return cfg, nil
}
