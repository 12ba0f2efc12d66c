package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/clients/stockvideo"
	"github.com/yungbote/reelforge/internal/clients/videointel"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
)

const (
	defaultMaxBrollClips            = 8
	brollDownloadBoundedConcurrency = 3
	maxBrollClipDurationSec         = 4.0
)

var brollSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"clips": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keyword":   map[string]any{"type": "string"},
					"timestamp": map[string]any{"type": "number"},
					"duration":  map[string]any{"type": "number"},
					"rationale": map[string]any{"type": "string"},
				},
				"required": []string{"keyword", "timestamp", "duration", "rationale"},
			},
		},
	},
	"required": []string{"clips"},
}

// BrollDiscoveryHandler is stage 6: ask the language model for B-roll
// insertion points, then search and download a stock clip for each
// keyword. An empty result is acceptable and non-fatal.
type BrollDiscoveryHandler struct {
	LLM           llm.Client
	StockVideo    stockvideo.Client
	LabelDetector videointel.LabelDetector // optional; nil disables the relevance filter
}

func (h *BrollDiscoveryHandler) Type() string { return "stage_broll_discovery" }

func (h *BrollDiscoveryHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "discovering B-roll candidates")

	transcript, err := readTranscription(ctx.Arena)
	if err != nil {
		ctx.Fail(err)
		return nil
	}

	maxClips := defaultMaxBrollClips
	if cfg, err := readConfig(ctx.Arena); err == nil && cfg.MaxBrollClips > 0 {
		maxClips = cfg.MaxBrollClips
	}

	suggestions := h.proposeClips(ctx.Ctx, transcript, maxClips)
	suggestionsFile := BrollSuggestionsFile{Clips: suggestions}
	sb, err := json.MarshalIndent(suggestionsFile, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal broll_suggestions.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("broll_suggestions.json", sb); err != nil {
		ctx.Fail(fmt.Errorf("write broll_suggestions.json: %w", err))
		return nil
	}

	if len(suggestions) == 0 || h.StockVideo == nil {
		if err := ctx.Arena.Write("broll_clips.json", emptyBrollClips()); err != nil {
			ctx.Fail(err)
			return nil
		}
		ctx.Succeed(map[string]any{"clips": 0})
		return nil
	}

	if err := ctx.Arena.MkdirAll("broll"); err != nil {
		ctx.Fail(fmt.Errorf("mkdir broll: %w", err))
		return nil
	}

	var mu sync.Mutex
	var clips []BrollClip
	sem := semaphore.NewWeighted(brollDownloadBoundedConcurrency)
	var wg sync.WaitGroup
	for i, s := range suggestions {
		s := s
		fileName := fmt.Sprintf("broll/clip_%02d.mp4", i+1)
		wg.Add(1)
		if err := sem.Acquire(ctx.Ctx, 1); err != nil {
			wg.Done()
			break
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			clip, ok := h.downloadAndValidate(ctx.Ctx, s, fileName, ctx.Arena.Path(fileName))
			if !ok {
				return
			}
			mu.Lock()
			clips = append(clips, clip)
			mu.Unlock()
		}()
	}
	wg.Wait()

	clipsFile := BrollClipsFile{Clips: clips}
	cb, err := json.MarshalIndent(clipsFile, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal broll_clips.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("broll_clips.json", cb); err != nil {
		ctx.Fail(fmt.Errorf("write broll_clips.json: %w", err))
		return nil
	}

	ctx.Succeed(map[string]any{"clips": len(clips), "proposed": len(suggestions)})
	return nil
}

func (h *BrollDiscoveryHandler) proposeClips(ctx context.Context, transcript TranscriptionFile, maxClips int) []BrollSuggestion {
	if h.LLM == nil {
		return nil
	}
	system := "You identify short B-roll insertion points for a talking-head video transcript. Each keyword must be a concrete, visually searchable English phrase."
	user := fmt.Sprintf("Propose up to %d B-roll insertion points (duration <= %.0fs each) as JSON. Transcript:\n%s", maxClips, maxBrollClipDurationSec, transcript.Text)
	obj, err := h.LLM.GenerateJSON(ctx, system, user, "broll_proposal", brollSchema)
	if err != nil {
		return nil
	}
	raw, _ := obj["clips"].([]any)
	out := make([]BrollSuggestion, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		keyword, _ := m["keyword"].(string)
		timestamp, _ := m["timestamp"].(float64)
		duration, _ := m["duration"].(float64)
		rationale, _ := m["rationale"].(string)
		if keyword == "" {
			continue
		}
		if duration <= 0 || duration > maxBrollClipDurationSec {
			duration = maxBrollClipDurationSec
		}
		out = append(out, BrollSuggestion{Keyword: keyword, Timestamp: timestamp, Duration: duration, Rationale: rationale})
	}
	return out
}

func (h *BrollDiscoveryHandler) downloadAndValidate(ctx context.Context, s BrollSuggestion, relPath, outPath string) (BrollClip, bool) {
	_, err := h.StockVideo.SearchAndDownload(ctx, s.Keyword, outPath, stockvideo.SearchOptions{Orientation: "landscape"})
	if err != nil {
		return BrollClip{}, false
	}
	if h.LabelDetector != nil {
		matches, _, err := h.LabelDetector.MatchesKeyword(ctx, outPath, s.Keyword)
		if err == nil && !matches {
			return BrollClip{}, false
		}
	}
	return BrollClip{Keyword: s.Keyword, Timestamp: s.Timestamp, Duration: s.Duration, File: relPath}, true
}

func emptyBrollClips() []byte {
	b, _ := json.MarshalIndent(BrollClipsFile{Clips: []BrollClip{}}, "", "  ")
	return b
}
