package services

import (
	"context"
	"fmt"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"

	"go.uber.org/zap"
)

// DefaultQualityCooldown is the minimum time between automatic quality
// changes.
const DefaultQualityCooldown = 10 * time.Second

// Reasons an evaluation produced no change. Used as metric labels.
const (
	reasonDisabled        = "disabled"
	reasonCooldown        = "cooldown"
	reasonUnchanged       = "unchanged"
	reasonInvalidSettings = "invalid_settings"
)

// QualityDecisionEngine recommends an incoming video tier from the
// participant count and the adaptive policy. It never talks to the call
// itself: the caller applies the tier and reports success through Commit.
type QualityDecisionEngine struct {
	cooldown time.Duration
	state    domain.QualityDecisionState
	logger   *zap.SugaredLogger
}

func NewQualityDecisionEngine(logger *zap.SugaredLogger) *QualityDecisionEngine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QualityDecisionEngine{
		cooldown: DefaultQualityCooldown,
		state:    domain.QualityDecisionState{CurrentQuality: domain.TierAuto},
		logger:   logger,
	}
}

// SetCooldown sets the debounce window between automatic changes.
func (e *QualityDecisionEngine) SetCooldown(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.cooldown = d
}

func (e *QualityDecisionEngine) Cooldown() time.Duration {
	return e.cooldown
}

// RecommendTier is the unclamped recommendation for a participant count.
func RecommendTier(participantCount int, mode domain.AdaptiveMode) domain.QualityTier {
	var tier domain.QualityTier
	switch {
	case participantCount <= 2:
		tier = domain.Tier720p
	case participantCount <= 4:
		tier = domain.Tier480p
	case participantCount <= 8:
		tier = domain.Tier360p
	default:
		tier = domain.Tier240p
	}

	switch mode {
	case domain.ModeConservative:
		if participantCount > 3 {
			tier = domain.Tier360p
		}
	case domain.ModeAggressive:
		if participantCount <= 4 {
			tier = domain.Tier1080p
		}
	}
	return tier
}

// Evaluate returns the tier to apply, or false when nothing should change.
// It does not mutate the engine.
func (e *QualityDecisionEngine) Evaluate(participantCount int, settings domain.QualitySettings, now time.Time) (domain.QualityTier, bool) {
	tier, reason := e.decide(participantCount, settings, now)
	return tier, reason == ""
}

func (e *QualityDecisionEngine) decide(participantCount int, settings domain.QualitySettings, now time.Time) (domain.QualityTier, string) {
	if !settings.Enabled {
		return e.state.CurrentQuality, reasonDisabled
	}
	if err := settings.Validate(); err != nil {
		e.logger.Warnw("ignoring invalid quality settings", "error", err)
		return e.state.CurrentQuality, reasonInvalidSettings
	}
	if !e.state.LastAdjustedAt.IsZero() && now.Sub(e.state.LastAdjustedAt) < e.cooldown {
		return e.state.CurrentQuality, reasonCooldown
	}

	recommended := RecommendTier(participantCount, settings.AdaptiveMode)
	clamped := domain.ClampTier(recommended, settings.MinQuality, settings.MaxQuality)
	if clamped == e.state.CurrentQuality {
		return clamped, reasonUnchanged
	}

	e.logger.Debugw("quality recommendation",
		"participants", participantCount,
		"mode", settings.AdaptiveMode,
		"recommended", recommended,
		"clamped", clamped,
		"current", e.state.CurrentQuality,
	)
	return clamped, ""
}

// Commit records a tier that was successfully applied to the call.
func (e *QualityDecisionEngine) Commit(tier domain.QualityTier, at time.Time) {
	e.state = domain.QualityDecisionState{CurrentQuality: tier, LastAdjustedAt: at}
}

// Reset returns the engine to its no-call state.
func (e *QualityDecisionEngine) Reset() {
	e.state = domain.QualityDecisionState{CurrentQuality: domain.TierAuto}
}

func (e *QualityDecisionEngine) State() domain.QualityDecisionState {
	return e.state
}

// ApplyTier pushes a tier to the call handle. TierAuto enables incoming
// video without a cap, TierOff disables it, anything else enables video
// and sets the preferred resolution for the given sessions (all when none).
func ApplyTier(ctx context.Context, handle ports.CallHandle, tier domain.QualityTier, sessionIDs ...domain.SessionID) error {
	if handle == nil {
		return domain.ErrMissingCallContext
	}

	switch tier {
	case domain.TierAuto:
		return handle.SetIncomingVideoEnabled(ctx, true)
	case domain.TierOff:
		return handle.SetIncomingVideoEnabled(ctx, false)
	}

	res, err := domain.TierToResolution(tier)
	if err != nil {
		return err
	}
	if err := handle.SetIncomingVideoEnabled(ctx, true); err != nil {
		return fmt.Errorf("enable incoming video: %w", err)
	}
	if err := handle.SetPreferredIncomingVideoResolution(ctx, res, sessionIDs...); err != nil {
		return fmt.Errorf("set preferred resolution %s: %w", res, err)
	}
	return nil
}
