package services

import "callpilot/internal/core/domain"

// DefaultMaxVisibleTiles is the grid capacity before the overflow tile.
const DefaultMaxVisibleTiles = 25

type gridRow struct {
	upTo    int
	columns int
	rows    int
	gap     domain.GapSize
}

// gridTable is ordered by upTo; the last row covers everything above.
var gridTable = []gridRow{
	{upTo: 1, columns: 1, rows: 1, gap: domain.GapMD},
	{upTo: 2, columns: 2, rows: 1, gap: domain.GapLG},
	{upTo: 4, columns: 2, rows: 2, gap: domain.GapMD},
	{upTo: 6, columns: 3, rows: 2, gap: domain.GapMD},
	{upTo: 9, columns: 3, rows: 3, gap: domain.GapMD},
	{upTo: 12, columns: 4, rows: 3, gap: domain.GapSM},
	{upTo: 16, columns: 4, rows: 4, gap: domain.GapSM},
	{upTo: 20, columns: 5, rows: 4, gap: domain.GapSM},
	{upTo: -1, columns: 5, rows: 5, gap: domain.GapXS},
}

// GridGeometryPlanner sizes the grid layouts.
type GridGeometryPlanner struct {
	maxVisible int
}

func NewGridGeometryPlanner(maxVisible int) *GridGeometryPlanner {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisibleTiles
	}
	return &GridGeometryPlanner{maxVisible: maxVisible}
}

func (g *GridGeometryPlanner) MaxVisible() int {
	return g.maxVisible
}

// PlanFor plans with the planner's configured capacity.
func (g *GridGeometryPlanner) PlanFor(participantCount int) domain.GridPlan {
	return PlanGrid(participantCount, g.maxVisible)
}

// PlanGrid computes the grid for participantCount tiles of which at most
// maxVisible are rendered. A non-positive maxVisible means the default.
func PlanGrid(participantCount, maxVisible int) domain.GridPlan {
	if participantCount < 0 {
		participantCount = 0
	}
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisibleTiles
	}

	visible := min(participantCount, maxVisible)
	return domain.GridPlan{
		Config:        GridConfigFor(visible),
		VisibleCount:  visible,
		OverflowCount: max(0, participantCount-maxVisible),
		Total:         participantCount,
	}
}

// GridConfigFor returns the geometry for a number of visible tiles.
func GridConfigFor(visible int) domain.GridConfig {
	row := gridTable[len(gridTable)-1]
	for _, r := range gridTable {
		if r.upTo >= 0 && visible <= r.upTo {
			row = r
			break
		}
	}

	cfg := domain.GridConfig{
		Columns:     row.columns,
		Rows:        row.rows,
		Gap:         row.gap,
		AspectRatio: "4/3",
		TileHeight:  "auto",
	}
	if visible <= 2 {
		cfg.AspectRatio = "16/9"
		cfg.TileHeight = "100%"
	}
	return cfg
}

// Partition splits participants into the rendered tiles and the rest.
// The input slice is not modified.
func (g *GridGeometryPlanner) Partition(participants []domain.Participant) (visible, overflow []domain.Participant) {
	n := min(len(participants), g.maxVisible)
	visible = append([]domain.Participant(nil), participants[:n]...)
	if len(participants) > n {
		overflow = append([]domain.Participant(nil), participants[n:]...)
	}
	return visible, overflow
}
