package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"MacroSim/internal/handler/api"
	"MacroSim/internal/handler/ws"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/cache"
	pkgch "MacroSim/pkg/clickhouse"
	"MacroSim/pkg/config"
	xhttp "MacroSim/pkg/http"
	pkgkafka "MacroSim/pkg/kafka"
	applogger "MacroSim/pkg/logger"
)

// routeGroup registers several handlers on a single Echo instance.
type routeGroup []xhttp.Handler

func (g routeGroup) RegisterRoutes(e *echo.Echo) {
	for _, h := range g {
		h.RegisterRoutes(e)
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	provider   *usecase.SnapshotProvider
	apiHandler *api.Handler
	wsHandler  *ws.Handler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	cacheSvc   cache.Service
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. consumer, chClient,
// and cacheSvc may be nil when the corresponding backends are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	provider *usecase.SnapshotProvider,
	apiHandler *api.Handler,
	wsHandler *ws.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	cacheSvc cache.Service,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		provider:   provider,
		apiHandler: apiHandler,
		wsHandler:  wsHandler,
		consumer:   consumer,
		kh:         kh,
		chClient:   chClient,
		cacheSvc:   cacheSvc,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm start: a cached snapshot survives restarts, so the API is usable
	// immediately instead of waiting for an explicit refresh.
	restoreCtx, restoreCancel := context.WithTimeout(ctx, 5*time.Second)
	if !a.provider.RestoreFromCache(restoreCtx) {
		a.log.Info("no cached snapshot; state awaits POST /api/state/refresh")
	}
	restoreCancel()

	a.httpServer = xhttp.NewServer(routeGroup{a.apiHandler, a.wsHandler},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
	)

	// Start snapshot consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
