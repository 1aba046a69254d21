package main

import (
	"context"
	"errors"
	"flag"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callpilot/internal/core/services"
	httphandlers "callpilot/internal/handlers/http"
	"callpilot/internal/infrastructure/distributed"
	"callpilot/internal/infrastructure/middleware"
	"callpilot/internal/infrastructure/monitoring"
	bridge "callpilot/internal/infrastructure/signal"
	"callpilot/pkg/circuitbreaker"
	"callpilot/pkg/config"
	"callpilot/pkg/logger"
	"callpilot/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("callpilot: " + err.Error() + "\n")
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		_, _ = os.Stderr.WriteString("callpilot: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	log := zapLogger.Sugar()

	if err := run(cfg, zapLogger); err != nil {
		log.Fatalw("callpilot stopped with error", "error", err)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()
	instanceID := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(registry)

	controllerCfg, err := controllerConfig(cfg)
	if err != nil {
		return err
	}

	fanOut := distributed.NewFanOut()
	controller, err := services.NewPresentationController(nil, controllerCfg, log.Named("controller"),
		services.WithRecorder(collector),
		services.WithPublisher(fanOut),
	)
	if err != nil {
		return err
	}

	wsCfg := bridge.Config{
		PingInterval: cfg.Signal.PingInterval,
		PongTimeout:  cfg.Signal.PongTimeout,
		WriteTimeout: cfg.Signal.WriteTimeout,
	}
	if cfg.RateLimiting.Enabled {
		wsCfg.MessagesPerSecond = cfg.RateLimiting.MessagesPerSecond
		wsCfg.Burst = cfg.RateLimiting.Burst
	} else {
		wsCfg.MessagesPerSecond = math.Inf(1)
		wsCfg.Burst = 1
	}
	wsServer := bridge.NewWebSocketServer(controller, wsCfg, zapLogger, collector)
	defer wsServer.Close()
	fanOut.Add(wsServer)

	health := monitoring.NewHealthChecker()
	health.AddBreakerCheck(func() string { return controller.State().BreakerState }, 10*time.Second)

	if cfg.Redis.Enabled {
		rdb, err := distributed.NewRedisClient(ctx, distributed.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		bus := distributed.NewEventBus(rdb, cfg.Redis.Channel, instanceID, log.Named("events"))
		defer func() { _ = bus.Close() }()
		if err := bus.Subscribe(ctx, wsServer.HandleRemoteEvent); err != nil {
			return err
		}
		fanOut.Add(bus)
		health.AddRedisCheck(rdb, 15*time.Second, 2*time.Second)
	}

	health.StartBackgroundChecks(ctx, func(name string, err error) {
		log.Warnw("health check failed", "check", name, "error", err)
	})

	router := newRouter(cfg, log, controller, health, wsServer, registry)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting callpilot",
			"address", cfg.Server.Address,
			"instance_id", instanceID,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	controller.EndCall(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	log.Info("callpilot stopped")
	return nil
}

func newRouter(
	cfg *config.Config,
	log *zap.SugaredLogger,
	controller *services.PresentationController,
	health *monitoring.HealthChecker,
	wsServer *bridge.WebSocketServer,
	registry *prometheus.Registry,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.Tracing(), middleware.ErrorHandler(log))
	if cfg.RateLimiting.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimiting.MessagesPerSecond, cfg.RateLimiting.Burst))
	}

	httphandlers.NewControllerHandler(controller, health).SetupRoutes(router)
	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		log.Infow("prometheus metrics enabled", "path", cfg.Monitoring.MetricsPath)
	}
	return router
}

// controllerConfig translates the controller section of the file config.
func controllerConfig(cfg *config.Config) (services.ControllerConfig, error) {
	settings, err := cfg.QualitySettings()
	if err != nil {
		return services.ControllerConfig{}, err
	}
	initial, afterShare, err := cfg.Layouts()
	if err != nil {
		return services.ControllerConfig{}, err
	}

	c := cfg.Controller
	breaker := circuitbreaker.DefaultConfig()
	breaker.FailureThreshold = c.Breaker.FailureThreshold
	breaker.SuccessThreshold = c.Breaker.SuccessThreshold
	breaker.Timeout = c.Breaker.OpenTimeout

	return services.ControllerConfig{
		Settings: settings,
		Cooldown: c.Quality.Cooldown,
		Layout: services.LayoutPolicy{
			Initial:                   initial,
			AfterScreenShare:          afterShare,
			SpeakerCenterYieldsToGrid: c.Layout.SpeakerCenterYieldsToGrid,
		},
		MaxVisibleTiles:  c.Layout.MaxVisibleTiles,
		MaxStripTiles:    c.Layout.MaxStripTiles,
		HysteresisFactor: c.Network.HysteresisFactor,
		Breaker:          breaker,
	}, nil
}
