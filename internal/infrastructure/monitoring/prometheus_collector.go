package monitoring

import (
	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	qualityChanges  *prometheus.CounterVec
	layoutChanges   *prometheus.CounterVec
	applyFailures   *prometheus.CounterVec
	suppressedTotal *prometheus.CounterVec

	// Gauges
	participants      prometheus.Gauge
	networkQuality    *prometheus.GaugeVec
	connectionsActive prometheus.Gauge

	// Histograms
	participantsObserved prometheus.Histogram
}

var _ ports.DecisionRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the controller metrics with reg. A nil
// reg uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		qualityChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callpilot_quality_changes_total",
			Help: "Incoming video quality changes applied to the call",
		}, []string{"to", "source"}),

		layoutChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callpilot_layout_changes_total",
			Help: "Layout transitions",
		}, []string{"to", "source"}),

		applyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callpilot_apply_failures_total",
			Help: "Writes to the call handle that failed",
		}, []string{"operation"}),

		suppressedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callpilot_quality_suppressed_total",
			Help: "Evaluations that produced no quality change, by reason",
		}, []string{"reason"}),

		participants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callpilot_participants",
			Help: "Participants in the last evaluated snapshot",
		}),

		networkQuality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callpilot_network_quality",
			Help: "1 for the current network grade, 0 otherwise",
		}, []string{"grade"}),

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callpilot_bridge_connections_active",
			Help: "Open platform bridge connections",
		}),

		participantsObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callpilot_snapshot_participants",
			Help:    "Distribution of participant counts per snapshot",
			Buckets: []float64{1, 2, 4, 8, 12, 16, 20, 25, 50, 100},
		}),
	}
}

func (p *PrometheusCollector) RecordQualityChange(_, to domain.QualityTier, source domain.DecisionSource) {
	p.qualityChanges.WithLabelValues(to.String(), string(source)).Inc()
}

func (p *PrometheusCollector) RecordLayoutChange(_, to domain.LayoutVariant, source domain.DecisionSource) {
	p.layoutChanges.WithLabelValues(to.String(), string(source)).Inc()
}

func (p *PrometheusCollector) RecordApplyFailure(operation string) {
	p.applyFailures.WithLabelValues(operation).Inc()
}

func (p *PrometheusCollector) RecordSuppressed(reason string) {
	p.suppressedTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordNetworkQuality(q domain.NetworkQuality) {
	for _, grade := range []domain.NetworkQuality{
		domain.NetworkExcellent,
		domain.NetworkGood,
		domain.NetworkPoor,
		domain.NetworkOffline,
	} {
		value := 0.0
		if grade == q {
			value = 1
		}
		p.networkQuality.WithLabelValues(grade.String()).Set(value)
	}
}

func (p *PrometheusCollector) RecordParticipants(count int) {
	p.participants.Set(float64(count))
	p.participantsObserved.Observe(float64(count))
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	p.connectionsActive.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	p.connectionsActive.Dec()
}
