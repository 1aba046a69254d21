package services

import (
	"testing"
	"time"

	"callpilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func report(loss float64, rtt, jitter time.Duration) *domain.StatsReport {
	return &domain.StatsReport{
		Entries:           3,
		HasNetworkMetrics: true,
		PacketLoss:        loss,
		RoundTrip:         rtt,
		Jitter:            jitter,
	}
}

func TestNetworkQualityClassifier_Grades(t *testing.T) {
	tests := []struct {
		name  string
		stats *domain.StatsReport
		want  domain.NetworkQuality
	}{
		{"excellent", report(0.005, 50*time.Millisecond, 10*time.Millisecond), domain.NetworkExcellent},
		{"good", report(0.03, 150*time.Millisecond, 40*time.Millisecond), domain.NetworkGood},
		{"poor loss", report(0.2, 50*time.Millisecond, 10*time.Millisecond), domain.NetworkPoor},
		{"poor rtt", report(0, 900*time.Millisecond, 10*time.Millisecond), domain.NetworkPoor},
		{"empty report", &domain.StatsReport{}, domain.NetworkOffline},
		{"no metrics", &domain.StatsReport{Entries: 4}, domain.NetworkGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewNetworkQualityClassifier().Classify(tt.stats))
		})
	}
}

func TestNetworkQualityClassifier_NilKeepsLast(t *testing.T) {
	c := NewNetworkQualityClassifier()
	assert.Equal(t, domain.NetworkGood, c.Classify(nil))

	c.Classify(report(0.5, time.Second, time.Second))
	assert.Equal(t, domain.NetworkPoor, c.Classify(nil))
}

func TestNetworkQualityClassifier_Hysteresis(t *testing.T) {
	c := NewNetworkQualityClassifier()
	assert.Equal(t, domain.NetworkExcellent, c.Classify(report(0.005, 50*time.Millisecond, 10*time.Millisecond)))

	// slightly over the excellent RTT threshold stays excellent
	assert.Equal(t, domain.NetworkExcellent, c.Classify(report(0.005, 110*time.Millisecond, 10*time.Millisecond)))

	// well over it drops
	assert.Equal(t, domain.NetworkGood, c.Classify(report(0.005, 160*time.Millisecond, 10*time.Millisecond)))

	// upgrades are immediate
	assert.Equal(t, domain.NetworkExcellent, c.Classify(report(0.005, 90*time.Millisecond, 10*time.Millisecond)))

	c.SetHysteresisFactor(0)
	assert.Equal(t, domain.NetworkGood, c.Classify(report(0.005, 110*time.Millisecond, 10*time.Millisecond)))
}

func TestNetworkQualityClassifier_RecoversFromOffline(t *testing.T) {
	c := NewNetworkQualityClassifier()
	assert.Equal(t, domain.NetworkOffline, c.Classify(&domain.StatsReport{}))
	assert.Equal(t, domain.NetworkPoor, c.Classify(report(0.3, 50*time.Millisecond, 10*time.Millisecond)))
	assert.Equal(t, domain.NetworkPoor, c.Last())
}
