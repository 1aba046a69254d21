package domain

import (
	"fmt"
	"strings"
)

// LayoutVariant is the visual arrangement of the call. Exactly one is
// current at any time.
type LayoutVariant int

const (
	LayoutResponsiveGrid LayoutVariant = iota
	LayoutZoomSpeaker
	LayoutSpeakerCenter
	LayoutScreenShare
	LayoutClassicGrid
)

var layoutNames = [...]string{
	LayoutResponsiveGrid: "responsive-grid",
	LayoutZoomSpeaker:    "zoom-speaker",
	LayoutSpeakerCenter:  "speaker-center",
	LayoutScreenShare:    "screen-share",
	LayoutClassicGrid:    "classic-grid",
}

func AllLayouts() []LayoutVariant {
	return []LayoutVariant{
		LayoutResponsiveGrid,
		LayoutZoomSpeaker,
		LayoutSpeakerCenter,
		LayoutScreenShare,
		LayoutClassicGrid,
	}
}

func (v LayoutVariant) Valid() bool {
	return v >= LayoutResponsiveGrid && v <= LayoutClassicGrid
}

func (v LayoutVariant) String() string {
	if !v.Valid() {
		return fmt.Sprintf("LayoutVariant(%d)", int(v))
	}
	return layoutNames[v]
}

// UsesGrid reports whether the variant is rendered from a GridPlan.
func (v LayoutVariant) UsesGrid() bool {
	return v == LayoutResponsiveGrid || v == LayoutClassicGrid
}

// UsesFocus reports whether the variant shows a single focused speaker.
func (v LayoutVariant) UsesFocus() bool {
	return v == LayoutZoomSpeaker || v == LayoutSpeakerCenter
}

// ValidateLayoutDefaults checks the layout a call starts in and the one it
// returns to when a screen share stops. Neither may be screen-share, and
// only zoom-speaker or responsive-grid can follow a share.
func ValidateLayoutDefaults(initial, afterShare LayoutVariant) error {
	if !initial.Valid() || initial == LayoutScreenShare {
		return fmt.Errorf("%w: initial layout %s", ErrInvalidLayout, initial)
	}
	if afterShare != LayoutZoomSpeaker && afterShare != LayoutResponsiveGrid {
		return fmt.Errorf("%w: post screen share layout must be zoom-speaker or responsive-grid, got %s",
			ErrInvalidLayout, afterShare)
	}
	return nil
}

func (v LayoutVariant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLayout, int(v))
	}
	return []byte(v.String()), nil
}

func (v *LayoutVariant) UnmarshalText(text []byte) error {
	variant, err := ParseLayoutVariant(string(text))
	if err != nil {
		return err
	}
	*v = variant
	return nil
}

func ParseLayoutVariant(s string) (LayoutVariant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range layoutNames {
		if name == s {
			return LayoutVariant(i), nil
		}
	}
	return LayoutResponsiveGrid, fmt.Errorf("%w: %q", ErrInvalidLayout, s)
}

// GapSize is a preset spacing between grid tiles.
type GapSize int

const (
	GapNone GapSize = iota
	GapXS
	GapSM
	GapMD
	GapLG
)

var gapCSS = [...]string{
	GapNone: "0",
	GapXS:   "0.125rem",
	GapSM:   "0.25rem",
	GapMD:   "0.5rem",
	GapLG:   "0.75rem",
}

// CSS returns the rem value used by the renderer.
func (g GapSize) CSS() string {
	if g < GapNone || g > GapLG {
		return gapCSS[GapNone]
	}
	return gapCSS[g]
}

func (g GapSize) MarshalText() ([]byte, error) {
	return []byte(g.CSS()), nil
}

func (g *GapSize) UnmarshalText(text []byte) error {
	for i, css := range gapCSS {
		if css == string(text) {
			*g = GapSize(i)
			return nil
		}
	}
	return fmt.Errorf("unknown gap %q", text)
}

// GridConfig is the grid geometry for a given number of visible tiles.
type GridConfig struct {
	Columns     int     `json:"columns"`
	Rows        int     `json:"rows"`
	Gap         GapSize `json:"gap"`
	AspectRatio string  `json:"aspect_ratio"`
	TileHeight  string  `json:"tile_height"`
}

func (c GridConfig) Cells() int {
	return c.Columns * c.Rows
}

// GridPlan is the planner output for one participant count.
type GridPlan struct {
	Config        GridConfig `json:"config"`
	VisibleCount  int        `json:"visible_count"`
	OverflowCount int        `json:"overflow_count"`
	Total         int        `json:"total"`
}

// ShowsOverflowTile reports whether the last visible tile is replaced by
// the "+N more" indicator.
func (p GridPlan) ShowsOverflowTile() bool {
	return p.OverflowCount > 0 && p.VisibleCount > 0
}

// OverflowTileIndex is the index of the overflow indicator tile, or -1.
func (p GridPlan) OverflowTileIndex() int {
	if !p.ShowsOverflowTile() {
		return -1
	}
	return p.VisibleCount - 1
}

// LargeMeeting reports whether the renderer should show the large meeting
// notice.
func (p GridPlan) LargeMeeting() bool {
	return p.Total > 20
}
