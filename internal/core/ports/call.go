package ports

import (
	"context"

	"callpilot/internal/core/domain"
)

// CallHandle is the mutable handle of the active call on the external
// platform. Implementations forward to the platform SDK or bridge. The
// read side arrives as pushed snapshots through OnSnapshot.
type CallHandle interface {
	SetIncomingVideoEnabled(ctx context.Context, enabled bool) error
	// SetPreferredIncomingVideoResolution applies to every remote session
	// when sessionIDs is empty.
	SetPreferredIncomingVideoResolution(ctx context.Context, res domain.Resolution, sessionIDs ...domain.SessionID) error
	SetScreenShareEnabled(ctx context.Context, enabled bool) error
	ToggleScreenShare(ctx context.Context) error
	ApplyScreenShareSettings(ctx context.Context, settings domain.ScreenShareSettings) error
}
