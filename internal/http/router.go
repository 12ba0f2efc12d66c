package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/reelforge/internal/http/handlers"
	httpMW "github.com/yungbote/reelforge/internal/http/middleware"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware
	ProjectHandler *httpH.ProjectHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// otelgin must run before AttachTraceContext so the span's trace id
	// is visible when the middleware falls back to the active span.
	r.Use(otelgin.Middleware("reelforge"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Projects
		if cfg.ProjectHandler != nil {
			api.POST("/projects", cfg.ProjectHandler.CreateProject)
			api.GET("/projects/:id", cfg.ProjectHandler.GetProject)
			api.POST("/projects/:id/upload", cfg.ProjectHandler.UploadInputs)
			api.POST("/projects/:id/submit", cfg.ProjectHandler.SubmitFull)
			api.POST("/projects/:id/submit_partial", cfg.ProjectHandler.SubmitPartial)
			api.POST("/projects/:id/submit_publication", cfg.ProjectHandler.SubmitPublication)
			api.POST("/projects/:id/revoke", cfg.ProjectHandler.Revoke)
			api.POST("/projects/:id/reboot", cfg.ProjectHandler.Reboot)
			api.GET("/projects/:id/outputs/:name", cfg.ProjectHandler.GetOutput)
		}
	}

	return r
}
