package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/services"
	"callpilot/internal/infrastructure/monitoring"
	bridge "callpilot/internal/infrastructure/signal"
	"callpilot/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := config.Load("../../configs/config.yaml")
	require.NoError(t, err)

	ccfg, err := controllerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultQualitySettings(), ccfg.Settings)
	assert.Equal(t, 10*time.Second, ccfg.Cooldown)
	assert.Equal(t, domain.LayoutResponsiveGrid, ccfg.Layout.Initial)
	assert.Equal(t, 25, ccfg.MaxVisibleTiles)
	assert.Equal(t, 15*time.Second, ccfg.Breaker.Timeout)
	assert.NoError(t, ccfg.Breaker.Validate())
}

func TestControllerConfig_Overrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Controller.Quality.AdaptiveMode = "conservative"
	cfg.Controller.Layout.AfterScreenShare = "zoom-speaker"
	cfg.Controller.Layout.SpeakerCenterYieldsToGrid = true
	cfg.Controller.Breaker.FailureThreshold = 3

	ccfg, err := controllerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeConservative, ccfg.Settings.AdaptiveMode)
	assert.Equal(t, domain.LayoutZoomSpeaker, ccfg.Layout.AfterScreenShare)
	assert.True(t, ccfg.Layout.SpeakerCenterYieldsToGrid)
	assert.Equal(t, 3, ccfg.Breaker.FailureThreshold)

	_, err = services.NewPresentationController(nil, ccfg, nil)
	assert.NoError(t, err)
}

func TestNewRouter_ServesProbesAndMetrics(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	log := zap.NewNop().Sugar()

	registry := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(registry)
	controller, err := services.NewPresentationController(nil, services.DefaultControllerConfig(), log,
		services.WithRecorder(collector))
	require.NoError(t, err)
	wsServer := bridge.NewWebSocketServer(controller, bridge.DefaultConfig(), zap.NewNop(), collector)
	defer wsServer.Close()

	health := monitoring.NewHealthChecker()
	health.AddBreakerCheck(func() string { return controller.State().BreakerState }, time.Second)
	router := newRouter(cfg, log, controller, health, wsServer, registry)

	for path, want := range map[string]int{
		"/health":       http.StatusOK,
		"/ready":        http.StatusOK,
		"/api/v1/state": http.StatusOK,
		"/metrics":      http.StatusOK,
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "callpilot_bridge_connections_active")
}
