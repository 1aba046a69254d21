package monitoring

import (
	"context"
	"testing"

	"callpilot/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.RecordQualityChange(domain.TierAuto, domain.Tier720p, domain.SourceAutomatic)
	c.RecordQualityChange(domain.Tier720p, domain.Tier720p, domain.SourceAutomatic)
	c.RecordLayoutChange(domain.LayoutResponsiveGrid, domain.LayoutZoomSpeaker, domain.SourceManual)
	c.RecordApplyFailure("quality")
	c.RecordSuppressed("cooldown")
	c.RecordParticipants(6)
	c.RecordNetworkQuality(domain.NetworkPoor)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.qualityChanges.WithLabelValues("720p", "automatic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.layoutChanges.WithLabelValues("zoom-speaker", "manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.applyFailures.WithLabelValues("quality")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.suppressedTotal.WithLabelValues("cooldown")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.networkQuality.WithLabelValues("poor")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.networkQuality.WithLabelValues("good")))

	c.RecordConnectionOpened()
	c.RecordConnectionOpened()
	c.RecordConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	require.Equal(t, StatusHealthy, h.CheckAll(context.Background()).Status)

	h.AddCheck("ok", func(context.Context) error { return nil }, 0, 0)
	assert.True(t, h.IsReady(context.Background()))

	state := "closed"
	h.AddBreakerCheck(func() string { return state }, 0)
	assert.True(t, h.IsReady(context.Background()))

	state = "open"
	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["ok"])
	assert.Equal(t, ErrBreakerOpen.Error(), status.Checks["call_handle"])
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 1)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}
