package domain

import (
	"fmt"
	"strings"
	"time"
)

// QualityTier is a named incoming video quality level. The zero value is
// TierOff so that an uninitialized tier never requests video by accident.
type QualityTier int

const (
	TierOff QualityTier = iota
	Tier240p
	Tier360p
	Tier480p
	Tier720p
	Tier1080p
	TierAuto
)

// tierOrder is the fixed rank table used for clamping. TierAuto ranks
// above Tier1080p: it is the least constrained setting.
var tierOrder = [...]QualityTier{TierOff, Tier240p, Tier360p, Tier480p, Tier720p, Tier1080p, TierAuto}

var tierNames = map[QualityTier]string{
	TierOff:   "off",
	Tier240p:  "240p",
	Tier360p:  "360p",
	Tier480p:  "480p",
	Tier720p:  "720p",
	Tier1080p: "1080p",
	TierAuto:  "auto",
}

var tierLabels = map[QualityTier]string{
	TierAuto:  "Auto (Adaptive)",
	Tier1080p: "1080p HD (High bandwidth)",
	Tier720p:  "720p HD (Medium bandwidth)",
	Tier480p:  "480p SD (Low bandwidth)",
	Tier360p:  "360p (Very low bandwidth)",
	Tier240p:  "240p (Minimal bandwidth)",
	TierOff:   "Off (Audio only)",
}

var tierResolutions = map[QualityTier]Resolution{
	Tier1080p: {Width: 1920, Height: 1080},
	Tier720p:  {Width: 1280, Height: 720},
	Tier480p:  {Width: 640, Height: 480},
	Tier360p:  {Width: 640, Height: 360},
	Tier240p:  {Width: 320, Height: 240},
}

// AllTiers returns every tier in rank order.
func AllTiers() []QualityTier {
	out := make([]QualityTier, len(tierOrder))
	copy(out, tierOrder[:])
	return out
}

func (t QualityTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("QualityTier(%d)", int(t))
}

// Label returns the human readable description shown in quality menus.
func (t QualityTier) Label() string {
	if label, ok := tierLabels[t]; ok {
		return label
	}
	return t.String()
}

// Valid reports whether t is one of the declared tiers.
func (t QualityTier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// Rank returns the position of t in the fixed tier order, or -1.
func (t QualityTier) Rank() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// HasResolution reports whether t maps to concrete pixel dimensions.
func (t QualityTier) HasResolution() bool {
	_, ok := tierResolutions[t]
	return ok
}

func (t QualityTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, int(t))
	}
	return []byte(t.String()), nil
}

func (t *QualityTier) UnmarshalText(text []byte) error {
	tier, err := ParseQualityTier(string(text))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// ParseQualityTier parses a tier label such as "720p" or "auto".
func ParseQualityTier(s string) (QualityTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for tier, name := range tierNames {
		if name == s {
			return tier, nil
		}
	}
	return TierOff, fmt.Errorf("%w: unknown tier %q", ErrInvalidTier, s)
}

// Resolution is a pixel size requested from the call platform.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// TierToResolution returns the dimensions for t. TierAuto and TierOff
// denote "no cap" and "no video" and have no dimensions.
func TierToResolution(t QualityTier) (Resolution, error) {
	res, ok := tierResolutions[t]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrInvalidTier, t)
	}
	return res, nil
}

// ResolutionToTier buckets a resolution by height. Heights below 240 are
// treated as unconstrained and map to TierAuto.
func ResolutionToTier(r Resolution) QualityTier {
	switch {
	case r.Height >= 1080:
		return Tier1080p
	case r.Height >= 720:
		return Tier720p
	case r.Height >= 480:
		return Tier480p
	case r.Height >= 360:
		return Tier360p
	case r.Height >= 240:
		return Tier240p
	default:
		return TierAuto
	}
}

// ClampTier clamps t into [lo, hi] using the rank table.
func ClampTier(t, lo, hi QualityTier) QualityTier {
	switch rank := t.Rank(); {
	case rank < lo.Rank():
		return lo
	case rank > hi.Rank():
		return hi
	default:
		return t
	}
}

// AdaptiveMode is the policy applied on top of the participant based
// recommendation.
type AdaptiveMode int

const (
	ModeBalanced AdaptiveMode = iota
	ModeConservative
	ModeAggressive
)

func (m AdaptiveMode) String() string {
	switch m {
	case ModeConservative:
		return "conservative"
	case ModeBalanced:
		return "balanced"
	case ModeAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("AdaptiveMode(%d)", int(m))
	}
}

func (m AdaptiveMode) MarshalText() ([]byte, error) {
	if m < ModeBalanced || m > ModeAggressive {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAdaptiveMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *AdaptiveMode) UnmarshalText(text []byte) error {
	mode, err := ParseAdaptiveMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func ParseAdaptiveMode(s string) (AdaptiveMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative":
		return ModeConservative, nil
	case "balanced", "":
		return ModeBalanced, nil
	case "aggressive":
		return ModeAggressive, nil
	default:
		return ModeBalanced, fmt.Errorf("%w: %q", ErrInvalidAdaptiveMode, s)
	}
}

// QualitySettings configures automatic quality adjustment.
type QualitySettings struct {
	Enabled      bool         `json:"enabled" yaml:"enabled"`
	AdaptiveMode AdaptiveMode `json:"adaptive_mode" yaml:"adaptive_mode"`
	MinQuality   QualityTier  `json:"min_quality" yaml:"min_quality"`
	MaxQuality   QualityTier  `json:"max_quality" yaml:"max_quality"`
}

// DefaultQualitySettings returns the settings a call starts with.
func DefaultQualitySettings() QualitySettings {
	return QualitySettings{
		Enabled:      true,
		AdaptiveMode: ModeBalanced,
		MinQuality:   Tier240p,
		MaxQuality:   Tier1080p,
	}
}

// Validate rejects settings whose bounds are unknown or inverted.
func (s QualitySettings) Validate() error {
	if !s.MinQuality.Valid() {
		return fmt.Errorf("min quality: %w", ErrInvalidTier)
	}
	if !s.MaxQuality.Valid() {
		return fmt.Errorf("max quality: %w", ErrInvalidTier)
	}
	if s.AdaptiveMode < ModeBalanced || s.AdaptiveMode > ModeAggressive {
		return ErrInvalidAdaptiveMode
	}
	if s.MinQuality.Rank() > s.MaxQuality.Rank() {
		return fmt.Errorf("%w: %s > %s", ErrInconsistentBounds, s.MinQuality, s.MaxQuality)
	}
	return nil
}

// QualityDecisionState is what the decision engine last applied.
type QualityDecisionState struct {
	CurrentQuality QualityTier `json:"current_quality"`
	LastAdjustedAt time.Time   `json:"last_adjusted_at"`
}
