package domain

import (
	"fmt"
	"strings"
	"time"
)

// StatsReport is the subset of the platform stats report the controller
// looks at. Entries is the number of raw stat objects; the metric fields
// are only meaningful when HasNetworkMetrics is set.
type StatsReport struct {
	Entries           int           `json:"entries"`
	HasNetworkMetrics bool          `json:"has_network_metrics"`
	PacketLoss        float64       `json:"packet_loss"`
	Jitter            time.Duration `json:"jitter"`
	RoundTrip         time.Duration `json:"round_trip"`
	Timestamp         time.Time     `json:"timestamp"`
}

type NetworkQuality int

const (
	NetworkGood NetworkQuality = iota
	NetworkExcellent
	NetworkPoor
	NetworkOffline
)

func (q NetworkQuality) String() string {
	switch q {
	case NetworkExcellent:
		return "excellent"
	case NetworkGood:
		return "good"
	case NetworkPoor:
		return "poor"
	case NetworkOffline:
		return "offline"
	default:
		return "unknown"
	}
}

func (q NetworkQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *NetworkQuality) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "excellent":
		*q = NetworkExcellent
	case "good", "":
		*q = NetworkGood
	case "poor":
		*q = NetworkPoor
	case "offline":
		*q = NetworkOffline
	default:
		return fmt.Errorf("unknown network quality %q", text)
	}
	return nil
}

// ScreenSharePreset bundles capture constraints for outgoing screen share.
type ScreenSharePreset int

const (
	PresetMedium ScreenSharePreset = iota
	PresetLow
	PresetHigh
	PresetUltra
)

// ScreenShareSettings is what a preset expands to.
type ScreenShareSettings struct {
	MaxWidth     int `json:"max_width"`
	MaxHeight    int `json:"max_height"`
	MaxFramerate int `json:"max_framerate"`
	MaxBitrate   int `json:"max_bitrate"` // bps
}

var screenSharePresets = map[ScreenSharePreset]ScreenShareSettings{
	PresetLow:    {MaxWidth: 1280, MaxHeight: 720, MaxFramerate: 15, MaxBitrate: 800_000},
	PresetMedium: {MaxWidth: 1920, MaxHeight: 1080, MaxFramerate: 25, MaxBitrate: 1_500_000},
	PresetHigh:   {MaxWidth: 2560, MaxHeight: 1440, MaxFramerate: 30, MaxBitrate: 3_000_000},
	PresetUltra:  {MaxWidth: 3840, MaxHeight: 2160, MaxFramerate: 30, MaxBitrate: 5_000_000},
}

func (p ScreenSharePreset) String() string {
	switch p {
	case PresetLow:
		return "low"
	case PresetMedium:
		return "medium"
	case PresetHigh:
		return "high"
	case PresetUltra:
		return "ultra"
	default:
		return fmt.Sprintf("ScreenSharePreset(%d)", int(p))
	}
}

func (p ScreenSharePreset) Settings() (ScreenShareSettings, error) {
	s, ok := screenSharePresets[p]
	if !ok {
		return ScreenShareSettings{}, fmt.Errorf("%w: %d", ErrInvalidScreenPreset, int(p))
	}
	return s, nil
}

func ParseScreenSharePreset(s string) (ScreenSharePreset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PresetLow, nil
	case "medium", "":
		return PresetMedium, nil
	case "high":
		return PresetHigh, nil
	case "ultra":
		return PresetUltra, nil
	default:
		return PresetMedium, fmt.Errorf("%w: %q", ErrInvalidScreenPreset, s)
	}
}
