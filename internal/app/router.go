package app

import (
	httpx "github.com/yungbote/vantage-backend/internal/http"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *httpx.Server {
	return httpx.NewServer(cfg.HTTPAddr, httpx.RouterConfig{
		Log:             log,
		AllowedOrigins:  cfg.AllowedOrigins,
		MetricsEnabled:  cfg.MetricsEnabled,
		HealthHandler:   handlers.Health,
		SubjectHandler:  handlers.Subject,
		AspectHandler:   handlers.Aspect,
		SampleHandler:   handlers.Sample,
		RealtimeHandler: handlers.Realtime,
	})
}
