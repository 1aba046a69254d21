package domain

import "time"

// Decision is the outcome of one evaluation pass.
type Decision struct {
	Layout         LayoutVariant `json:"layout"`
	LayoutChanged  bool          `json:"layout_changed"`
	Quality        QualityTier   `json:"quality"`
	QualityChanged bool          `json:"quality_changed"`
	// AppliedQuality is the tier last written to the call, automatic or
	// manual. It differs from Quality after a manual override.
	AppliedQuality QualityTier    `json:"applied_quality"`
	Network        NetworkQuality `json:"network"`
	Focus          *Participant   `json:"focus,omitempty"`
	Strip          *SpeakerStrip  `json:"strip,omitempty"`
	Grid           *GridPlan      `json:"grid,omitempty"`
	Tiles          *GridTiles     `json:"tiles,omitempty"`
	At             time.Time      `json:"at"`
}

// GridTiles assigns participants to the tiles of a grid plan.
type GridTiles struct {
	Visible  []SessionID `json:"visible"`
	Overflow []SessionID `json:"overflow,omitempty"`
	// OverflowTileIndex is the visible tile replaced by the "+N more"
	// indicator, or -1.
	OverflowTileIndex int  `json:"overflow_tile_index"`
	LargeMeeting      bool `json:"large_meeting"`
}

// SpeakerStrip lists the thumbnails shown next to the focused speaker.
type SpeakerStrip struct {
	Sessions []SessionID `json:"sessions"`
	Hidden   int         `json:"hidden"`
}

// Changed reports whether anything has to be re-rendered or re-applied.
func (d Decision) Changed() bool {
	return d.LayoutChanged || d.QualityChanged
}

// DecisionSource tells whether a change came from the automatic engines
// or from an explicit user action.
type DecisionSource string

const (
	SourceAutomatic DecisionSource = "automatic"
	SourceManual    DecisionSource = "manual"
)

// ControllerState is the read model exposed to transports.
type ControllerState struct {
	SessionID      string               `json:"session_id"`
	Active         bool                 `json:"active"`
	Layout         LayoutVariant        `json:"layout"`
	Quality        QualityDecisionState `json:"quality"`
	AppliedQuality QualityTier          `json:"applied_quality"`
	Settings       QualitySettings      `json:"settings"`
	Network        NetworkQuality       `json:"network"`
	Focus          FocusState           `json:"focus"`
	Grid           GridPlan             `json:"grid"`
	Participants   int                  `json:"participants"`
	ScreenSharing  bool                 `json:"screen_sharing"`
	BreakerState   string               `json:"breaker_state"`
	LastDecisionAt time.Time            `json:"last_decision_at"`
}
