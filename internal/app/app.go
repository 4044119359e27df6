package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	httpx "github.com/yungbote/vantage-backend/internal/http"
	"github.com/yungbote/vantage-backend/internal/observability"
	"github.com/yungbote/vantage-backend/internal/platform/envutil"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *httpx.Server
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: "vantage",
		Environment: cfg.Environment,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     observability.ParseHeaders(cfg.OtelHeaders),
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if cfg.MetricsEnabled {
		observability.Register()
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB := clients.DB.DB()

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, clients, reposet)
	handlerset := wireHandlers(log, clients, serviceset)
	server := wireServer(log, cfg, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

// Start connects the realtime bus to the SSE hub and repairs state that may
// have drifted while the process was down.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	hub := a.Services.Hub
	if err := a.Clients.Bus.StartForwarder(ctx, func(m realtime.Message) { hub.Broadcast(m) }); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}

	if n, err := a.Services.Aspects.RepairRanges(ctx); err != nil {
		a.Log.Warn("aspect range repair failed", "error", err)
	} else if n > 0 {
		a.Log.Info("Repaired aspect ranges", "count", n)
	}
	if n, err := a.Services.Aspects.RebuildCache(ctx); err != nil {
		a.Log.Warn("aspect cache rebuild failed", "error", err)
	} else {
		a.Log.Info("Aspect cache rebuilt", "count", n)
	}
	if n, err := a.Services.Hierarchy.RebuildCache(ctx); err != nil {
		a.Log.Warn("subject cache rebuild failed", "error", err)
	} else {
		a.Log.Info("Subject cache rebuilt", "count", n)
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run()
}

// Close stops the server, drains post-commit effects and releases clients.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Services.Hub != nil {
		a.Services.Hub.CloseAll()
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown failed", "error", err)
		}
	}
	if a.Services.Pipeline != nil {
		done := make(chan struct{})
		go func() {
			a.Services.Pipeline.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Log.Warn("gave up waiting for post-commit effects", "error", ctx.Err())
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close(a.Log)
	if a.otelShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(flushCtx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
