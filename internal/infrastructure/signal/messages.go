package signal

import (
	"encoding/json"
	"time"

	"callpilot/internal/core/domain"
)

// Message types sent by the platform client.
const (
	TypeCallJoined        = "call_joined"
	TypeCallLeft          = "call_left"
	TypeSnapshot          = "snapshot"
	TypeSelectLayout      = "select_layout"
	TypeSetQuality        = "set_quality"
	TypeQualitySettings   = "quality_settings"
	TypePin               = "pin"
	TypeClearPin          = "clear_pin"
	TypeBoostSpeaker      = "boost_speaker"
	TypeScreenShare       = "screen_share"
	TypeToggleScreenShare = "toggle_screen_share"
	TypeScreenSharePreset = "screen_share_preset"
	TypeGetState          = "get_state"
)

// Message types sent to clients. Commands are what the platform client
// executes against its call SDK.
const (
	TypeDecision  = "decision"
	TypeCallEnded = "call_ended"
	TypeState     = "state"
	TypeError     = "error"

	CommandSetIncomingVideo    = "set_incoming_video"
	CommandPreferredResolution = "set_preferred_resolution"
	CommandSetScreenShare      = "set_screen_share"
	CommandToggleScreenShare   = "toggle_screen_share"
	CommandScreenShareSettings = "apply_screen_share_settings"
)

// Client roles. Only one platform connection drives the controller;
// observers receive decisions.
const (
	RolePlatform = "platform"
	RoleObserver = "observer"
)

type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type SnapshotPayload struct {
	Participants      []domain.Participant     `json:"participants"`
	DominantSpeakerID domain.SessionID         `json:"dominant_speaker_id,omitempty"`
	ScreenShare       domain.ScreenShareStatus `json:"screen_share"`
	// Stats is the array returned by RTCPeerConnection.getStats().
	Stats json.RawMessage `json:"stats,omitempty"`
	// RTCP is a compound RTCP packet, base64 encoded by encoding/json.
	RTCP []byte `json:"rtcp,omitempty"`
}

// LayoutPayload and QualityPayload use pointers so a missing field is
// rejected instead of decoding to the zero variant or tier.
type LayoutPayload struct {
	Layout *domain.LayoutVariant `json:"layout"`
}

type QualityPayload struct {
	Tier *domain.QualityTier `json:"tier"`
}

type ScreenSharePayload struct {
	Enabled *bool `json:"enabled"`
}

type PinPayload struct {
	SessionID domain.SessionID `json:"session_id"`
}

type PresetPayload struct {
	Preset string `json:"preset"`
}

type EnabledCommand struct {
	Enabled bool `json:"enabled"`
}

type ResolutionCommand struct {
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	SessionIDs []domain.SessionID `json:"session_ids,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type remoteMarker struct {
	Remote bool `json:"remote"`
}

type decisionPayload struct {
	domain.Decision
	Remote bool `json:"remote,omitempty"`
}

func newSnapshot(p SnapshotPayload, at time.Time) domain.CallSnapshot {
	snap := domain.CallSnapshot{
		Participants: p.Participants,
		ScreenShare:  p.ScreenShare,
		At:           at,
	}
	if p.DominantSpeakerID != "" {
		if speaker, ok := domain.FindParticipant(p.Participants, p.DominantSpeakerID); ok {
			snap.DominantSpeaker = &speaker
		}
	}
	return snap
}
