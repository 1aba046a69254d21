package ports

import (
	"context"

	"callpilot/internal/core/domain"
)

// DecisionRecorder receives controller outcomes for metrics.
type DecisionRecorder interface {
	RecordQualityChange(from, to domain.QualityTier, source domain.DecisionSource)
	RecordLayoutChange(from, to domain.LayoutVariant, source domain.DecisionSource)
	RecordApplyFailure(operation string)
	RecordSuppressed(reason string)
	RecordNetworkQuality(q domain.NetworkQuality)
	RecordParticipants(count int)
}

// DecisionPublisher fans decisions out to other processes.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, sessionID string, decision domain.Decision) error
}

// CallEndPublisher is implemented by publishers that also announce the
// end of a call session.
type CallEndPublisher interface {
	PublishCallEnded(ctx context.Context, sessionID string) error
}

// PresentationController is the surface used by the transports.
type PresentationController interface {
	// SetCallHandle attaches the active call, or detaches it with nil.
	SetCallHandle(ctx context.Context, handle CallHandle)
	OnSnapshot(ctx context.Context, snap domain.CallSnapshot) (domain.Decision, error)
	SelectLayout(ctx context.Context, v domain.LayoutVariant) (domain.Decision, error)
	SetQualitySettings(settings domain.QualitySettings) error
	QualitySettings() domain.QualitySettings
	SetManualQuality(ctx context.Context, tier domain.QualityTier) error
	Pin(ctx context.Context, sessionID domain.SessionID) (domain.Decision, error)
	ClearPin(ctx context.Context) (domain.Decision, error)
	BoostDominantSpeaker(ctx context.Context) error
	SetScreenShareEnabled(ctx context.Context, enabled bool) error
	ToggleScreenShare(ctx context.Context) error
	ApplyScreenSharePreset(ctx context.Context, preset domain.ScreenSharePreset) error
	EndCall(ctx context.Context)
	State() domain.ControllerState
}
