package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/cache"
	"github.com/yungbote/vantage-backend/internal/modules/aspects"
	"github.com/yungbote/vantage-backend/internal/modules/hierarchy"
	"github.com/yungbote/vantage-backend/internal/modules/samples"
	"github.com/yungbote/vantage-backend/internal/modules/writepath"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

type Services struct {
	Pipeline  *writepath.Pipeline
	CacheSync *cache.Sync
	Notifier  *realtime.Notifier
	Hub       *realtime.Hub

	Hierarchy hierarchy.Service
	Aspects   aspects.Service
	Samples   samples.Service
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) Services {
	log.Info("Wiring services...")
	pipeline := writepath.New(db, log, writepath.Config{
		Timeout:  cfg.EffectTimeout,
		MaxTries: uint(cfg.EffectMaxTries),
		Async:    cfg.EffectsAsync,
	})
	cacheSync := cache.NewSync(clients.Cache, log)
	notifier := realtime.NewNotifier(clients.Bus, log)

	return Services{
		Pipeline:  pipeline,
		CacheSync: cacheSync,
		Notifier:  notifier,
		Hub:       realtime.NewHub(log),
		Hierarchy: hierarchy.NewService(pipeline, reposet.Subject, cacheSync, notifier, log),
		Aspects:   aspects.NewService(pipeline, reposet.Aspect, cacheSync, notifier, log),
		Samples:   samples.NewService(cacheSync, notifier, log),
	}
}
