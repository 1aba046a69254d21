package services

import "callpilot/internal/core/domain"

// DefaultMaxStripTiles is how many thumbnails the speaker strip shows.
const DefaultMaxStripTiles = 8

// ResolveFocus picks the participant shown large in speaker layouts:
// the pin if that session is still in the call, then the dominant
// speaker, the first remote participant, the local participant and
// finally anyone. Only members of participants are ever returned.
func ResolveFocus(participants []domain.Participant, dominant, pinned, local *domain.Participant) *domain.Participant {
	if len(participants) == 0 {
		return nil
	}

	for _, candidate := range []*domain.Participant{pinned, dominant} {
		if candidate == nil {
			continue
		}
		if p, ok := domain.FindParticipant(participants, candidate.SessionID); ok {
			return &p
		}
	}

	for i := range participants {
		if isRemote(participants[i], local) {
			p := participants[i]
			return &p
		}
	}

	if local != nil {
		if p, ok := domain.FindParticipant(participants, local.SessionID); ok {
			return &p
		}
	}

	p := participants[0]
	return &p
}

func isRemote(p domain.Participant, local *domain.Participant) bool {
	if local == nil {
		return !p.IsLocalParticipant
	}
	return p.UserID != local.UserID
}

// SpeakerFocusTracker keeps the manual pin of the speaker layouts.
type SpeakerFocusTracker struct {
	pinned   *domain.Participant
	maxStrip int
}

func NewSpeakerFocusTracker(maxStrip int) *SpeakerFocusTracker {
	if maxStrip <= 0 {
		maxStrip = DefaultMaxStripTiles
	}
	return &SpeakerFocusTracker{maxStrip: maxStrip}
}

func (t *SpeakerFocusTracker) Pin(p domain.Participant) {
	t.pinned = &p
}

func (t *SpeakerFocusTracker) ClearPin() {
	t.pinned = nil
}

func (t *SpeakerFocusTracker) Pinned() *domain.Participant {
	if t.pinned == nil {
		return nil
	}
	p := *t.pinned
	return &p
}

// Focus resolves the focused participant and drops a pin whose session
// has left the call.
func (t *SpeakerFocusTracker) Focus(participants []domain.Participant, dominant, local *domain.Participant) *domain.Participant {
	if t.pinned != nil {
		if _, ok := domain.FindParticipant(participants, t.pinned.SessionID); !ok {
			t.pinned = nil
		}
	}
	return ResolveFocus(participants, dominant, t.pinned, local)
}

// State returns the pin together with the current dominant speaker.
func (t *SpeakerFocusTracker) State(dominant *domain.Participant) domain.FocusState {
	return domain.FocusState{Pinned: t.Pinned(), DominantSpeaker: dominant}
}

// Strip returns the thumbnails shown next to the focused participant and
// how many did not fit.
func (t *SpeakerFocusTracker) Strip(participants []domain.Participant, focus *domain.Participant) ([]domain.Participant, int) {
	rest := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		if focus != nil && p.SessionID == focus.SessionID {
			continue
		}
		rest = append(rest, p)
	}
	if len(rest) <= t.maxStrip {
		return rest, 0
	}
	return rest[:t.maxStrip], len(rest) - t.maxStrip
}
