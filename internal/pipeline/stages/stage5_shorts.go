package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

const (
	defaultMaxShorts              = 6
	shortRenderBoundedConcurrency = 2
	outroFile                     = "outro.mp4"
)

var shortsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"shorts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start":       map[string]any{"type": "number"},
					"end":         map[string]any{"type": "number"},
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"start", "end", "title", "description"},
			},
		},
	},
	"required": []string{"shorts"},
}

// ShortsHandler is stage 5: ask the language model for candidate short
// windows, snap each to transcript segment boundaries, and render the
// accepted windows into vertical clips with karaoke captions. Per-short
// failure is non-fatal; a zero-short batch is a valid success.
type ShortsHandler struct {
	Tools localmedia.Tools
	LLM   llm.Client
}

func (h *ShortsHandler) Type() string { return "stage_shorts" }

func (h *ShortsHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "proposing short windows")

	transcript, err := readTranscription(ctx.Arena)
	if err != nil {
		ctx.Fail(err)
		return nil
	}
	if !ctx.Arena.Exists("screennosilence.mp4") {
		// No separate trimmed sources (canvas recording): a zero-short
		// batch is a valid success, not a chain failure.
		b, err := json.MarshalIndent(ShortsSuggestionsFile{Shorts: []ShortSuggestion{}}, "", "  ")
		if err != nil {
			ctx.Fail(fmt.Errorf("marshal shorts_suggestions.json: %w", err))
			return nil
		}
		if err := ctx.Arena.Write("shorts_suggestions.json", b); err != nil {
			ctx.Fail(fmt.Errorf("write shorts_suggestions.json: %w", err))
			return nil
		}
		ctx.Succeed(map[string]any{"shorts_rendered": 0, "proposed": 0})
		return nil
	}

	maxShorts := defaultMaxShorts
	if cfg, err := readConfig(ctx.Arena); err == nil && cfg.MaxShorts > 0 {
		maxShorts = cfg.MaxShorts
	}

	proposals := h.proposeWindows(ctx.Ctx, transcript, maxShorts)

	type accepted struct {
		idx   int
		seg   Segment
		title string
		desc  string
	}
	var acceptedWindows []accepted
	for i, p := range proposals {
		if len(acceptedWindows) >= maxShorts {
			break
		}
		snapped, ok := SnapWindow(transcript.Segments, p.Start, p.End)
		if !ok {
			continue
		}
		acceptedWindows = append(acceptedWindows, accepted{idx: i, seg: snapped, title: p.Title, desc: p.Description})
	}

	if err := ctx.Arena.MkdirAll("shorts"); err != nil {
		ctx.Fail(fmt.Errorf("mkdir shorts: %w", err))
		return nil
	}

	webcamPresent := ctx.Arena.Exists("webcamnosilence.mp4")
	hasOutro := ctx.Arena.Exists(outroFile)

	var mu sync.Mutex
	var rendered []ShortSuggestion
	sem := semaphore.NewWeighted(shortRenderBoundedConcurrency)
	var wg sync.WaitGroup
	for i, acc := range acceptedWindows {
		acc := acc
		fileName := fmt.Sprintf("shorts/short_%02d.mp4", i+1)
		wg.Add(1)
		if err := sem.Acquire(ctx.Ctx, 1); err != nil {
			wg.Done()
			break
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := h.renderShort(ctx, transcript, acc.seg, fileName, webcamPresent, hasOutro); err != nil {
				ctx.Task.Message = fmt.Sprintf("short render failed: %v", err)
				return
			}
			mu.Lock()
			rendered = append(rendered, ShortSuggestion{
				File: fileName, Start: acc.seg.Start, End: acc.seg.End,
				Title: acc.title, Description: acc.desc,
			})
			mu.Unlock()
		}()
	}
	wg.Wait()

	out := ShortsSuggestionsFile{Shorts: rendered}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal shorts_suggestions.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("shorts_suggestions.json", b); err != nil {
		ctx.Fail(fmt.Errorf("write shorts_suggestions.json: %w", err))
		return nil
	}

	ctx.Succeed(map[string]any{"shorts_rendered": len(rendered), "proposed": len(proposals)})
	return nil
}

type shortProposal struct {
	Start       float64
	End         float64
	Title       string
	Description string
}

func (h *ShortsHandler) proposeWindows(ctx context.Context, transcript TranscriptionFile, maxShorts int) []shortProposal {
	if h.LLM == nil {
		return nil
	}
	system := "You select the most engaging short-form clip windows from a video transcript. Propose distinct, non-overlapping windows likely to perform well as standalone shorts."
	user := fmt.Sprintf("Propose up to %d candidate short windows as JSON. Transcript:\n%s", maxShorts, transcript.Text)
	obj, err := h.LLM.GenerateJSON(ctx, system, user, "shorts_proposal", shortsSchema)
	if err != nil {
		return nil
	}
	rawShorts, _ := obj["shorts"].([]any)
	out := make([]shortProposal, 0, len(rawShorts))
	for _, raw := range rawShorts {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		start, _ := m["start"].(float64)
		end, _ := m["end"].(float64)
		title, _ := m["title"].(string)
		desc, _ := m["description"].(string)
		if end <= start {
			continue
		}
		out = append(out, shortProposal{Start: start, End: end, Title: title, Description: desc})
	}
	return out
}

func (h *ShortsHandler) renderShort(ctx *runtime.Context, transcript TranscriptionFile, win Segment, fileName string, webcamPresent, hasOutro bool) error {
	keep := []localmedia.Segment{{StartSec: win.Start, EndSec: win.End}}

	tmpScreen := ctx.Arena.Path(fileName + ".screen.mp4")
	if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path("screennosilence.mp4"), tmpScreen, keep); err != nil {
		return fmt.Errorf("trim screen window: %w", err)
	}
	defer func() { _ = ctx.Arena.Remove(fileName + ".screen.mp4") }()

	var tmpWebcam string
	if webcamPresent {
		tmpWebcam = ctx.Arena.Path(fileName + ".webcam.mp4")
		if err := h.Tools.TrimSegments(ctx.Ctx, ctx.Arena.Path("webcamnosilence.mp4"), tmpWebcam, keep); err != nil {
			return fmt.Errorf("trim webcam window: %w", err)
		}
		defer func() { _ = ctx.Arena.Remove(fileName + ".webcam.mp4") }()
	}

	words := wordsInWindow(transcript.Segments, win.Start, win.End)
	offset := make([]wordTiming, 0, len(words))
	for _, w := range words {
		offset = append(offset, wordTiming{Text: w.Text, Start: w.Start - win.Start, End: w.End - win.Start})
	}
	assContent := BuildKaraokeASS(offset, "#FFD700", "#FFFFFF", 64)
	assPath := ctx.Arena.Path(fileName + ".ass")
	if err := ctx.Arena.Write(fileName+".ass", []byte(assContent)); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}
	defer func() { _ = ctx.Arena.Remove(fileName + ".ass") }()

	renderTarget := ctx.Arena.Path(fileName)
	if hasOutro {
		renderTarget = ctx.Arena.Path(fileName + ".noOutro.mp4")
	}
	if err := h.Tools.RenderVertical(ctx.Ctx, tmpScreen, tmpWebcam, assPath, renderTarget, localmedia.VerticalOptions{
		Width: 1080, Height: 1920, FontSize: 64, FontColor: "#FFFFFF", HighlightColor: "#FFD700",
	}); err != nil {
		return fmt.Errorf("render vertical: %w", err)
	}

	if hasOutro {
		defer func() { _ = ctx.Arena.Remove(fileName + ".noOutro.mp4") }()
		if err := h.Tools.Concat(ctx.Ctx, ctx.Arena.Path(fileName), []string{renderTarget, ctx.Arena.Path(outroFile)}); err != nil {
			return fmt.Errorf("append outro: %w", err)
		}
	}
	return nil
}

func readTranscription(ar arena.Arena) (TranscriptionFile, error) {
	var t TranscriptionFile
	if !ar.Exists("transcription.json") {
		return t, fmt.Errorf("transcription.json missing")
	}
	raw, err := ar.Read("transcription.json")
	if err != nil {
		return t, fmt.Errorf("read transcription.json: %w", err)
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("parse transcription.json: %w", err)
	}
	return t, nil
}
