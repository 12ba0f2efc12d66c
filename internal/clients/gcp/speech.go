package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	types "github.com/yungbote/reelforge/internal/domain"
	"github.com/yungbote/reelforge/internal/pkg/ctxutil"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// Speech transcribes a recording's narration track. The pipeline only
// ever feeds it the mono WAV that stage 4 extracts from nosilence.mp4,
// so the surface is a single bytes-in call; the recordings are solo
// narration, so there is no speaker attribution.
type Speech interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string
	UseEnhanced  bool

	EnableAutomaticPunctuation bool
	EnableWordTimeOffsets      bool

	SampleRateHertz   int
	AudioChannelCount int

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

type SpeechResult struct {
	Provider    string          `json:"provider"`
	PrimaryText string          `json:"primary_text"`
	Segments    []types.Segment `json:"segments,omitempty"`
	Words       []types.Segment `json:"words,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Speech")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechService{
		log:        slog,
		client:     c,
		maxRetries: 4,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// TranscribeAudioBytes runs a long-running recognize over an in-memory
// narration track. The 10-minute budget covers the longest silence-trimmed
// cut a one-hour stage slot can realistically produce.
func (s *speechService) TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{Provider: "gcp_speech", PrimaryText: ""}, nil
	}

	rcfg := buildNarrationConfig(mimeType, cfg)
	req := &speechpb.LongRunningRecognizeRequest{
		Config: rcfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}

	return parseNarrationResponse(resp, cfg.EnableWordTimeOffsets), nil
}

func buildNarrationConfig(mimeType string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}

	enc := cfg.Encoding
	if enc == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		enc = inferNarrationEncoding(mimeType)
	}

	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		UseEnhanced:                cfg.UseEnhanced,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      cfg.EnableWordTimeOffsets,
		Encoding:                   enc,
		SampleRateHertz:            int32(max0(cfg.SampleRateHertz)),
		AudioChannelCount:          int32(max0(cfg.AudioChannelCount)),
	}
}

func inferNarrationEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(m))

	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type narrationWord struct {
	w string
	s float64
	e float64
	c float64
}

// parseNarrationResponse flattens the recognizer's per-result alternatives
// into one transcript, a word list with offsets, and phrase segments
// grouped into ~10 s windows. The windows exist so downstream consumers
// (silence snapping, caption cues, SEO prompts) have usable start/end
// anchors even when the recognizer returns one giant result.
func parseNarrationResponse(resp *speechpb.LongRunningRecognizeResponse, wantWordOffsets bool) *SpeechResult {
	out := &SpeechResult{Provider: "gcp_speech"}

	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	words := []narrationWord{}
	var full strings.Builder

	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))

		if wantWordOffsets && len(alt.Words) > 0 {
			for _, ww := range alt.Words {
				if ww == nil {
					continue
				}
				words = append(words, narrationWord{
					w: ww.Word,
					s: durToSec(ww.StartTime),
					e: durToSec(ww.EndTime),
					c: float64(ww.Confidence),
				})
			}
		}
	}

	out.PrimaryText = strings.TrimSpace(full.String())

	if wantWordOffsets && len(words) > 0 {
		out.Words = make([]types.Segment, 0, len(words))
		for _, w := range words {
			sv := w.s
			ev := w.e
			out.Words = append(out.Words, types.Segment{
				Text:       w.w,
				StartSec:   &sv,
				EndSec:     &ev,
				Confidence: ptrFloat(w.c),
				Metadata:   map[string]any{"kind": "word"},
			})
		}
		out.Segments = groupByTime(words, 10.0)
	} else {
		out.Segments = []types.Segment{{Text: out.PrimaryText, Metadata: map[string]any{"kind": "transcript"}}}
	}

	return out
}

func groupByTime(words []narrationWord, windowSec float64) []types.Segment {
	if len(words) == 0 {
		return nil
	}
	if windowSec <= 0 {
		windowSec = 10
	}

	segs := []types.Segment{}
	curStart := words[0].s
	curEnd := words[0].e
	var buf strings.Builder
	var confSum float64
	var confN int

	flush := func() {
		txt := strings.TrimSpace(buf.String())
		if txt == "" {
			return
		}
		sv := curStart
		ev := curEnd
		var c *float64
		if confN > 0 {
			v := confSum / float64(confN)
			c = &v
		}
		segs = append(segs, types.Segment{
			Text:       txt,
			StartSec:   &sv,
			EndSec:     &ev,
			Confidence: c,
			Metadata:   map[string]any{"kind": "transcript", "group": "time"},
		})
		buf.Reset()
		confSum = 0
		confN = 0
	}

	for _, w := range words {
		if (w.s-curStart) >= windowSec && buf.Len() > 0 {
			flush()
			curStart = w.s
			curEnd = w.e
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.w)
		if w.e > curEnd {
			curEnd = w.e
		}
		if w.c > 0 {
			confSum += w.c
			confN++
		}
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func (s *speechService) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func max0(x int) int {
	if x < 0 {
		return 0
	}
	return x
}
