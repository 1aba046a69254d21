package services

import (
	"fmt"

	"callpilot/internal/core/domain"
)

// countBand buckets the participant count at the thresholds the layout
// reacts to. Transitions only fire when the band changes.
type countBand int

const (
	bandUnknown countBand = iota
	bandSmall             // <= 2
	bandMedium            // 3-4
	bandLarge             // > 4
)

func bandFor(count int) countBand {
	switch {
	case count <= 2:
		return bandSmall
	case count <= 4:
		return bandMedium
	default:
		return bandLarge
	}
}

// LayoutPolicy configures the automatic layout transitions.
type LayoutPolicy struct {
	Initial domain.LayoutVariant
	// AfterScreenShare is where the layout returns when sharing stops.
	AfterScreenShare domain.LayoutVariant
	// SpeakerCenterYieldsToGrid makes speaker-center switch to the grid
	// on large calls, like zoom-speaker does.
	SpeakerCenterYieldsToGrid bool
}

func DefaultLayoutPolicy() LayoutPolicy {
	return LayoutPolicy{
		Initial:          domain.LayoutResponsiveGrid,
		AfterScreenShare: domain.LayoutResponsiveGrid,
	}
}

// Validate rejects policies that could route back into screen-share.
func (p LayoutPolicy) Validate() error {
	return domain.ValidateLayoutDefaults(p.Initial, p.AfterScreenShare)
}

// LayoutSelector is a single-state automaton over layout variants. Every
// transition is a function of the current variant and an input edge:
// re-evaluating unchanged inputs never moves it.
type LayoutSelector struct {
	policy      LayoutPolicy
	current     domain.LayoutVariant
	shareActive bool
	band        countBand
}

func NewLayoutSelector(policy LayoutPolicy) *LayoutSelector {
	if err := policy.Validate(); err != nil {
		policy = DefaultLayoutPolicy()
	}
	return &LayoutSelector{
		policy:  policy,
		current: policy.Initial,
	}
}

func (s *LayoutSelector) Current() domain.LayoutVariant {
	return s.current
}

func (s *LayoutSelector) Policy() LayoutPolicy {
	return s.policy
}

// OnScreenShare handles a screen share status observation.
func (s *LayoutSelector) OnScreenShare(active bool) (domain.LayoutVariant, bool) {
	if active == s.shareActive {
		return s.current, false
	}
	s.shareActive = active

	if active {
		if s.current == domain.LayoutScreenShare {
			return s.current, false
		}
		s.current = domain.LayoutScreenShare
		return s.current, true
	}

	if s.current != domain.LayoutScreenShare {
		return s.current, false
	}
	s.current = s.policy.AfterScreenShare
	return s.current, true
}

// OnParticipantCount handles a participant count observation. Counts are
// ignored while a screen share is shown.
func (s *LayoutSelector) OnParticipantCount(count int) (domain.LayoutVariant, bool) {
	band := bandFor(count)
	if band == s.band {
		return s.current, false
	}
	s.band = band

	if s.shareActive || s.current == domain.LayoutScreenShare {
		return s.current, false
	}

	switch band {
	case bandSmall:
		if s.current != domain.LayoutZoomSpeaker {
			s.current = domain.LayoutZoomSpeaker
			return s.current, true
		}
	case bandLarge:
		if s.current == domain.LayoutZoomSpeaker ||
			(s.policy.SpeakerCenterYieldsToGrid && s.current == domain.LayoutSpeakerCenter) {
			s.current = domain.LayoutResponsiveGrid
			return s.current, true
		}
	}
	return s.current, false
}

// Evaluate feeds one snapshot through both triggers, screen share first.
func (s *LayoutSelector) Evaluate(count int, share domain.ScreenShareStatus) (domain.LayoutVariant, bool) {
	_, shareChanged := s.OnScreenShare(share.Active())
	_, countChanged := s.OnParticipantCount(count)
	return s.current, shareChanged || countChanged
}

// Select applies an explicit user choice. It holds until the next
// screen share edge or count band crossing. Screen-share can only be
// chosen while someone is sharing.
func (s *LayoutSelector) Select(v domain.LayoutVariant) (bool, error) {
	if !v.Valid() {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidLayout, int(v))
	}
	if v == domain.LayoutScreenShare && !s.shareActive {
		return false, fmt.Errorf("%w: nobody is sharing a screen", domain.ErrInvalidLayout)
	}
	if v == s.current {
		return false, nil
	}
	s.current = v
	return true, nil
}

// Reset forgets all observed inputs.
func (s *LayoutSelector) Reset() {
	s.current = s.policy.Initial
	s.shareActive = false
	s.band = bandUnknown
}
