package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/vantage-backend/internal/http/handlers"
	httpMW "github.com/yungbote/vantage-backend/internal/http/middleware"
	"github.com/yungbote/vantage-backend/internal/observability"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string
	MetricsEnabled bool

	HealthHandler   *httpH.HealthHandler
	SubjectHandler  *httpH.SubjectHandler
	AspectHandler   *httpH.AspectHandler
	SampleHandler   *httpH.SampleHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("vantage"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.MetricsEnabled))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(observability.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.SubjectHandler != nil {
			api.POST("/subjects", cfg.SubjectHandler.Create)
			api.GET("/subjects/:id", cfg.SubjectHandler.Get)
			api.PATCH("/subjects/:id", cfg.SubjectHandler.Update)
			api.DELETE("/subjects/:id", cfg.SubjectHandler.Delete)
		}

		if cfg.AspectHandler != nil {
			api.POST("/aspects", cfg.AspectHandler.Create)
			api.GET("/aspects/:id", cfg.AspectHandler.Get)
			api.PATCH("/aspects/:id", cfg.AspectHandler.Update)
			api.DELETE("/aspects/:id", cfg.AspectHandler.Delete)
		}

		if cfg.SampleHandler != nil {
			api.PUT("/samples", cfg.SampleHandler.Upsert)
			api.GET("/samples", cfg.SampleHandler.Get)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/realtime/stream", cfg.RealtimeHandler.Stream)
		}
	}

	return r
}
