package app

import (
	httpH "github.com/yungbote/vantage-backend/internal/http/handlers"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Subject  *httpH.SubjectHandler
	Aspect   *httpH.AspectHandler
	Sample   *httpH.SampleHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(map[string]httpH.HealthCheck{
			"db":    clients.DB.Ping,
			"cache": clients.Cache.Ping,
		}),
		Subject:  httpH.NewSubjectHandler(services.Hierarchy),
		Aspect:   httpH.NewAspectHandler(services.Aspects),
		Sample:   httpH.NewSampleHandler(services.Samples),
		Realtime: httpH.NewRealtimeHandler(log, services.Hub),
	}
}
