package services

import (
	"time"

	"callpilot/internal/core/domain"
)

type networkThreshold struct {
	PacketLoss float64
	RoundTrip  time.Duration
	Jitter     time.Duration
}

// NetworkQualityClassifier grades the platform stats report. A level is
// only left for a worse one once the metrics miss its thresholds by more
// than the hysteresis factor.
type NetworkQualityClassifier struct {
	thresholds       map[domain.NetworkQuality]networkThreshold
	hysteresisFactor float64
	last             domain.NetworkQuality
}

func NewNetworkQualityClassifier() *NetworkQualityClassifier {
	return &NetworkQualityClassifier{
		thresholds: map[domain.NetworkQuality]networkThreshold{
			domain.NetworkExcellent: {
				PacketLoss: 0.01,
				RoundTrip:  100 * time.Millisecond,
				Jitter:     30 * time.Millisecond,
			},
			domain.NetworkGood: {
				PacketLoss: 0.05,
				RoundTrip:  200 * time.Millisecond,
				Jitter:     50 * time.Millisecond,
			},
		},
		hysteresisFactor: 0.15,
		last:             domain.NetworkGood,
	}
}

// SetHysteresisFactor sets the hysteresis factor (0.0-1.0)
func (c *NetworkQualityClassifier) SetHysteresisFactor(factor float64) {
	if factor < 0 {
		factor = 0
	}
	if factor > 1.0 {
		factor = 1.0
	}
	c.hysteresisFactor = factor
}

func (c *NetworkQualityClassifier) Last() domain.NetworkQuality {
	return c.last
}

// Classify grades a report. A nil report keeps the previous grade, an
// empty one means offline and a report without network metrics counts as
// good.
func (c *NetworkQualityClassifier) Classify(stats *domain.StatsReport) domain.NetworkQuality {
	switch {
	case stats == nil:
		return c.last
	case stats.Entries == 0 && !stats.HasNetworkMetrics:
		c.last = domain.NetworkOffline
		return c.last
	case !stats.HasNetworkMetrics:
		c.last = domain.NetworkGood
		return c.last
	}

	optimal := c.grade(*stats, 0)
	if networkRank(optimal) < networkRank(c.last) && c.last != domain.NetworkOffline {
		// downgrade only when the current level is missed by a margin
		if c.meets(*stats, c.last, c.hysteresisFactor) {
			return c.last
		}
	}
	c.last = optimal
	return c.last
}

func (c *NetworkQualityClassifier) grade(stats domain.StatsReport, slack float64) domain.NetworkQuality {
	if c.meets(stats, domain.NetworkExcellent, slack) {
		return domain.NetworkExcellent
	}
	if c.meets(stats, domain.NetworkGood, slack) {
		return domain.NetworkGood
	}
	return domain.NetworkPoor
}

func (c *NetworkQualityClassifier) meets(stats domain.StatsReport, level domain.NetworkQuality, slack float64) bool {
	threshold, ok := c.thresholds[level]
	if !ok {
		return level == domain.NetworkPoor
	}
	return stats.PacketLoss <= threshold.PacketLoss*(1+slack) &&
		float64(stats.RoundTrip) <= float64(threshold.RoundTrip)*(1+slack) &&
		float64(stats.Jitter) <= float64(threshold.Jitter)*(1+slack)
}

// networkRank orders network grades from worst to best.
func networkRank(q domain.NetworkQuality) int {
	switch q {
	case domain.NetworkOffline:
		return 0
	case domain.NetworkPoor:
		return 1
	case domain.NetworkGood:
		return 2
	case domain.NetworkExcellent:
		return 3
	default:
		return -1
	}
}
