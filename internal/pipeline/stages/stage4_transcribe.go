package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/clients/transcribe"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/idemcache"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

const transcriptCorrectionSystemPrompt = `You correct spelling and grammar only. Do not rephrase, summarize, or add content. Preserve the word count as closely as possible and never alter proper nouns. Reply with the corrected sentence only, no commentary.`

// TranscribeHandler is stage 4: extract audio, transcribe it, and run an
// optional per-segment spelling/grammar correction pass that rejects any
// correction whose word count drifts by more than two words from the
// original.
type TranscribeHandler struct {
	Tools      localmedia.Tools
	Transcribe transcribe.Service
	LLM        llm.Client
	Cache      *idemcache.Cache
}

func (h *TranscribeHandler) Type() string { return "stage_transcribe" }

func (h *TranscribeHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "extracting audio")

	if !ctx.Arena.Exists("nosilence.mp4") {
		ctx.Fail(fmt.Errorf("stage_transcribe: nosilence.mp4 missing"))
		return nil
	}

	audioPath := ctx.Arena.Path("tmp_transcribe_audio.wav")
	if err := h.Tools.ExtractAudio(ctx.Ctx, ctx.Arena.Path("nosilence.mp4"), audioPath); err != nil {
		ctx.Fail(fmt.Errorf("extract audio: %w", err))
		return nil
	}
	defer func() { _ = ctx.Arena.Remove("tmp_transcribe_audio.wav") }()

	ctx.Progress(20, "submitting to speech-to-text")
	result, err := h.Transcribe.Transcribe(ctx.Ctx, audioPath, transcribe.Options{
		LanguageCode:   "en-US",
		WordTimestamps: true,
	})
	if err != nil {
		ctx.Fail(fmt.Errorf("transcribe: %w", err))
		return nil
	}

	duration, err := h.Tools.Probe(ctx.Ctx, ctx.Arena.Path("nosilence.mp4"))
	if err != nil {
		ctx.Fail(fmt.Errorf("probe nosilence.mp4: %w", err))
		return nil
	}

	ctx.Progress(50, "correcting transcript")
	segments := make([]TranscriptSegment, 0, len(result.Segments))
	for i, seg := range result.Segments {
		if seg.StartSec == nil || seg.EndSec == nil {
			continue
		}
		text := seg.Text
		if h.LLM != nil && strings.TrimSpace(text) != "" {
			if corrected, ok := h.correctSegment(ctx.Ctx, ctx.Task.ID.String(), i, text); ok {
				text = corrected
			}
		}
		segments = append(segments, TranscriptSegment{Start: *seg.StartSec, End: *seg.EndSec, Text: text})
	}

	transcriptionFile := TranscriptionFile{
		Text:     result.Text,
		Segments: segments,
		Language: "en-US",
		Duration: duration,
	}
	tBytes, err := json.MarshalIndent(transcriptionFile, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal transcription.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("transcription.json", tBytes); err != nil {
		ctx.Fail(fmt.Errorf("write transcription.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("transcription.txt", []byte(result.Text)); err != nil {
		ctx.Fail(fmt.Errorf("write transcription.txt: %w", err))
		return nil
	}

	if err := ctx.WriteOutput("transcription", "transcription.json"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Succeed(map[string]any{"segments": len(segments), "duration": duration})
	return nil
}

// correctSegment asks the language model to correct one transcript
// segment's spelling and grammar, rejecting the result if its word count
// drifts by more than two words from the original — preferring a
// slightly rough transcript over a hallucinated rewrite.
func (h *TranscribeHandler) correctSegment(ctx context.Context, taskID string, index int, text string) (string, bool) {
	call := func() ([]byte, error) {
		out, err := h.LLM.GenerateText(ctx, transcriptCorrectionSystemPrompt, text)
		return []byte(out), err
	}
	var (
		corrected []byte
		err       error
	)
	if h.Cache != nil {
		corrected, err = h.Cache.Once(ctx, idemcache.Key(taskID, fmt.Sprintf("transcribe-correct-%d", index)), time.Hour, call)
	} else {
		corrected, err = call()
	}
	if err != nil {
		return text, false
	}
	out := strings.TrimSpace(string(corrected))
	if out == "" {
		return text, false
	}
	if wordDrift(text, out) > 2 {
		return text, false
	}
	return out, true
}

func wordDrift(original, corrected string) int {
	a := len(strings.Fields(original))
	b := len(strings.Fields(corrected))
	if a > b {
		return a - b
	}
	return b - a
}
