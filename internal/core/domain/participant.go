package domain

import (
	"fmt"
	"strings"
	"time"
)

type SessionID string
type UserID string

// Participant is a read-only view of a call member as reported by the
// platform. The controller never mutates it.
type Participant struct {
	SessionID          SessionID `json:"session_id"`
	UserID             UserID    `json:"user_id"`
	Name               *string   `json:"name,omitempty"`
	IsScreenSharing    bool      `json:"is_screen_sharing"`
	IsLocalParticipant bool      `json:"is_local_participant"`
}

// DisplayName falls back to the user id, then to "Unknown".
func (p Participant) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	if p.UserID != "" {
		return string(p.UserID)
	}
	return "Unknown"
}

// FindParticipant returns the participant with the given session, if present.
func FindParticipant(participants []Participant, id SessionID) (Participant, bool) {
	for _, p := range participants {
		if p.SessionID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// LocalParticipant returns the first participant flagged as local.
func LocalParticipant(participants []Participant) *Participant {
	for i := range participants {
		if participants[i].IsLocalParticipant {
			p := participants[i]
			return &p
		}
	}
	return nil
}

type ScreenShareStatus int

const (
	ScreenShareUndefined ScreenShareStatus = iota
	ScreenShareEnabled
	ScreenShareDisabled
)

func (s ScreenShareStatus) String() string {
	switch s {
	case ScreenShareEnabled:
		return "enabled"
	case ScreenShareDisabled:
		return "disabled"
	default:
		return "undefined"
	}
}

// Active reports whether someone is sharing. Undefined counts as inactive.
func (s ScreenShareStatus) Active() bool {
	return s == ScreenShareEnabled
}

func (s ScreenShareStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ScreenShareStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "enabled":
		*s = ScreenShareEnabled
	case "disabled":
		*s = ScreenShareDisabled
	case "", "undefined":
		*s = ScreenShareUndefined
	default:
		return fmt.Errorf("invalid screen share status %q", text)
	}
	return nil
}

// FocusState is the speaker layout focus: an explicit pin overrides the
// dominant speaker until cleared or until the pinned session leaves.
type FocusState struct {
	Pinned          *Participant `json:"pinned,omitempty"`
	DominantSpeaker *Participant `json:"dominant_speaker,omitempty"`
}

// CallSnapshot is one consistent view of the call handed to every engine
// in an evaluation pass.
type CallSnapshot struct {
	Participants    []Participant     `json:"participants"`
	DominantSpeaker *Participant      `json:"dominant_speaker,omitempty"`
	ScreenShare     ScreenShareStatus `json:"screen_share"`
	Stats           *StatsReport      `json:"stats,omitempty"`
	At              time.Time         `json:"at"`
}

func (s CallSnapshot) ParticipantCount() int {
	return len(s.Participants)
}
