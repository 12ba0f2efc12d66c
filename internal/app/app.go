package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/reelforge/internal/auth"
	"github.com/yungbote/reelforge/internal/clients/blobstore"
	"github.com/yungbote/reelforge/internal/clients/gcp"
	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/clients/stockvideo"
	"github.com/yungbote/reelforge/internal/clients/transcribe"
	"github.com/yungbote/reelforge/internal/clients/videohost"
	"github.com/yungbote/reelforge/internal/clients/videointel"
	"github.com/yungbote/reelforge/internal/db"
	httpserver "github.com/yungbote/reelforge/internal/http"
	httpH "github.com/yungbote/reelforge/internal/http/handlers"
	httpMW "github.com/yungbote/reelforge/internal/http/middleware"
	"github.com/yungbote/reelforge/internal/observability"
	"github.com/yungbote/reelforge/internal/pkg/logger"
	"github.com/yungbote/reelforge/internal/pipeline/orchestrator"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/pipeline/stages"
	"github.com/yungbote/reelforge/internal/pipeline/worker"
	"github.com/yungbote/reelforge/internal/platform/idemcache"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
	"github.com/yungbote/reelforge/internal/utils"
)

/*
App is the process-wide wiring root: one struct assembled once in New(),
started by Start(), served by Run(), torn down by Close().
*/
type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Server *httpserver.Server
	Cfg    Config
	Repos  Repos

	worker       *worker.Worker
	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "reelforge",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	authService, err := auth.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init auth: %w", err)
	}

	caps, err := wireCapabilities(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("wire capabilities: %w", err)
	}

	registry := runtime.NewRegistry()
	if err := stages.RegisterAll(registry, caps); err != nil {
		log.Sync()
		return nil, fmt.Errorf("register stage handlers: %w", err)
	}

	orch := orchestrator.New(log, reposet.Project, reposet.StageTask)
	pipelineWorker := worker.NewWorker(theDB, log, reposet.StageTask, reposet.Project, registry, cfg.ArenaRoot)

	projectHandler := httpH.NewProjectHandler(log, reposet.Project, reposet.StageTask, orch, cfg.ArenaRoot)
	healthHandler := httpH.NewHealthHandler()
	authMiddleware := httpMW.NewAuthMiddleware(log, authService)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		AuthMiddleware: authMiddleware,
		ProjectHandler: projectHandler,
		HealthHandler:  healthHandler,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		worker:       pipelineWorker,
		otelShutdown: otelShutdown,
	}, nil
}

// wireCapabilities constructs every external-service capability the
// stage library can call. Transcribe is the one required capability
// (stage 4 is fatal without it); every other field degrades its
// dependents rather than failing App construction, per Capabilities'
// own doc in register.go.
func wireCapabilities(log *logger.Logger) (stages.Capabilities, error) {
	tools := localmedia.New(log)

	speech, err := gcp.NewSpeech(log)
	if err != nil {
		return stages.Capabilities{}, fmt.Errorf("init speech-to-text: %w", err)
	}
	transcribeSvc := transcribe.New(log, speech)

	llmClient, err := llm.New(log)
	if err != nil {
		log.Warn("llm client unavailable, correction/shorts/broll/metadata/thumbnail stages degrade", "error", err)
		llmClient = nil
	}

	stockVideoClient := stockvideo.New(log)

	labelDetector, err := videointel.New(log)
	if err != nil {
		log.Warn("videointelligence label detector unavailable, broll relevance filter disabled", "error", err)
		labelDetector = nil
	}

	var videoHostClient videohost.Client
	clientID := os.Getenv("YOUTUBE_OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_OAUTH_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_OAUTH_REFRESH_TOKEN")
	if clientID != "" && clientSecret != "" && refreshToken != "" {
		videoHostClient, err = videohost.New(context.Background(), log, clientID, clientSecret, refreshToken)
		if err != nil {
			log.Warn("videohost client unavailable, publication stage will fail loudly", "error", err)
			videoHostClient = nil
		}
	} else {
		log.Warn("videohost OAuth2 credentials not configured, publication stage will fail loudly")
	}

	mirror, err := blobstore.New(log)
	if err != nil {
		log.Warn("blob mirror unavailable, schedule stage will skip the blob mirror step", "error", err)
		mirror = nil
	}

	idemCache := idemcache.New(log, utils.GetEnv("REDIS_ADDR", "", log))

	schedulePrefs, err := stages.LoadSchedulePreferences(utils.GetEnv("SCHEDULE_PREFS_PATH", "", log))
	if err != nil {
		log.Warn("schedule preferences file unreadable, using built-in defaults", "error", err)
		schedulePrefs = nil
	}

	return stages.Capabilities{
		Tools:         tools,
		Transcribe:    transcribeSvc,
		LLM:           llmClient,
		StockVideo:    stockVideoClient,
		LabelDetector: labelDetector,
		VideoHost:     videoHostClient,
		Mirror:        mirror,
		IdemCache:     idemCache,
		SchedulePrefs: schedulePrefs,
	}, nil
}

// Start launches the worker pool in the background. The RUN_SERVER/
// RUN_WORKER flags let a single binary be deployed as server-only,
// worker-only, or both.
func (a *App) Start(runServer, runWorker bool) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if runWorker && a.worker != nil {
		go a.worker.Start(ctx)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
