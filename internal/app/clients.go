package app

import (
	"context"
	"fmt"

	"github.com/yungbote/vantage-backend/internal/cache"
	"github.com/yungbote/vantage-backend/internal/data/db"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime/bus"
)

type Clients struct {
	DB    *db.Service
	Cache cache.Backend
	Bus   bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	var out Clients

	log.Info("Opening system of record...", "driver", cfg.DB.Driver)
	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		return out, fmt.Errorf("init db: %w", err)
	}
	out.DB = dbs
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		out.Close(log)
		return out, fmt.Errorf("db automigrate: %w", err)
	}

	var shared *cache.RedisBackend
	switch cfg.CacheBackend {
	case CacheBackendMemory:
		log.Warn("Using in-process cache backend; state is lost on restart")
		out.Cache = cache.NewMemoryBackend()
	default:
		rb, err := cache.NewRedisBackend(ctx, log, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			out.Close(log)
			return out, fmt.Errorf("init redis cache: %w", err)
		}
		out.Cache = rb
		shared = rb
	}

	switch {
	case cfg.RealtimeBus == RealtimeBusLocal:
		out.Bus = bus.NewLocalBus()
	case shared != nil:
		out.Bus = bus.NewRedisBusFromClient(log, shared.Client(), cfg.RedisChannel)
	default:
		b, err := bus.NewRedisBus(log, bus.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			out.Close(log)
			return out, fmt.Errorf("init realtime bus: %w", err)
		}
		out.Bus = b
	}
	return out, nil
}

// Close releases every client that was opened. The bus goes first because it
// may share the cache connection.
func (c Clients) Close(log *logger.Logger) {
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			log.Warn("realtime bus close failed", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			log.Warn("cache close failed", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Warn("db close failed", "error", err)
		}
	}
}
