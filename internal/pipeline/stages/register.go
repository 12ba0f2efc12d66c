package stages

import (
	"github.com/yungbote/reelforge/internal/clients/blobstore"
	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/clients/stockvideo"
	"github.com/yungbote/reelforge/internal/clients/transcribe"
	"github.com/yungbote/reelforge/internal/clients/videohost"
	"github.com/yungbote/reelforge/internal/clients/videointel"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/idemcache"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

// Capabilities bundles every external dependency a stage body might
// need. Tools and Transcribe are required; every other field is
// optional: a nil capability degrades the
// stage that depends on it (transcription correction skipped, B-roll
// discovery yields zero clips, publication fails loudly) rather than
// panicking, per each stage's own degraded-mode handling.
type Capabilities struct {
	Tools         localmedia.Tools
	Transcribe    transcribe.Service
	LLM           llm.Client
	StockVideo    stockvideo.Client
	LabelDetector videointel.LabelDetector
	VideoHost     videohost.Client
	Mirror        blobstore.Mirror
	IdemCache     *idemcache.Cache

	// SchedulePrefs is the deployment-wide default slot list for the
	// schedule stage (see LoadSchedulePreferences). A project's own
	// config.schedule_preferences still wins; nil falls through to the
	// package default.
	SchedulePrefs []domain.SchedulePreference
}

// RegisterAll builds and registers every one of the twelve stage
// handlers into reg, in stage order.
func RegisterAll(reg *runtime.Registry, caps Capabilities) error {
	handlers := []runtime.Handler{
		&NormalizeHandler{Tools: caps.Tools},
		&ComposeHandler{Tools: caps.Tools},
		&SilenceTrimHandler{Tools: caps.Tools},
		&SourceTrimHandler{Tools: caps.Tools},
		&TranscribeHandler{Tools: caps.Tools, Transcribe: caps.Transcribe, LLM: caps.LLM, Cache: caps.IdemCache},
		&ShortsHandler{Tools: caps.Tools, LLM: caps.LLM},
		&BrollDiscoveryHandler{LLM: caps.LLM, StockVideo: caps.StockVideo, LabelDetector: caps.LabelDetector},
		&BrollIntegrationHandler{Tools: caps.Tools},
		&MetadataHandler{LLM: caps.LLM},
		&ThumbnailHandler{Tools: caps.Tools, LLM: caps.LLM},
		&ScheduleHandler{Mirror: caps.Mirror, DefaultPrefs: caps.SchedulePrefs},
		&PublishHandler{VideoHost: caps.VideoHost},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
