package transcribe

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/reelforge/internal/clients/gcp"
	domain "github.com/yungbote/reelforge/internal/domain"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Service is the speech-to-text capability stage 4 depends on. It is a
thin adapter over gcp.Speech so the stage body depends on a small
domain-shaped interface instead of the GCP SDK directly.
*/
type Service interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

type Options struct {
	LanguageCode   string
	WordTimestamps bool
}

type Result struct {
	Text     string           `json:"text"`
	Segments []domain.Segment `json:"segments"`
	Words    []domain.Segment `json:"words"`
	Warnings []string         `json:"warnings,omitempty"`
}

type service struct {
	log    *logger.Logger
	speech gcp.Speech
}

func New(log *logger.Logger, speechClient gcp.Speech) Service {
	return &service{log: log.With("service", "transcribe.Service"), speech: speechClient}
}

func (s *service) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("audioPath required")
	}
	lang := opts.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	cfg := gcp.SpeechConfig{
		LanguageCode:               lang,
		UseEnhanced:                true,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      opts.WordTimestamps,
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
	}

	data, err := readFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio %q: %w", audioPath, err)
	}

	out, err := s.speech.TranscribeAudioBytes(ctx, data, "audio/wav", cfg)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return &Result{
		Text:     out.PrimaryText,
		Segments: out.Segments,
		Words:    out.Words,
		Warnings: out.Warnings,
	}, nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
