package l3grid

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
)

const tol = 1e-9

// unitBounds gives a cell size of 1 for a 3x3 grid.
var unitBounds = l2experiment.Bounds{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}

func newTestProjector(t *testing.T, size int, b l2experiment.Bounds, cfg Config) *projector {
	t.Helper()
	g, err := NewGrid(size)
	require.NoError(t, err)
	g.Bounds = b
	cell := r2.Vec{X: b.Width() / float64(size-1), Y: b.Height() / float64(size-1)}
	g.CellSize = cell
	cfg.Size = size
	return &projector{cfg: cfg, grid: g, weights: mat.NewDense(size, size, nil), bounds: b, cell: cell}
}

func mustExperiment(t *testing.T, lines []string, opts ...l2experiment.Option) *l2experiment.Experiment {
	t.Helper()
	e, err := l2experiment.FromLines(lines, opts...)
	require.NoError(t, err)
	return e
}

func TestDistribute_IsolatedSampleSumsToThreeW(t *testing.T) {
	for _, pos := range []r2.Vec{{X: 0.3, Y: 0.6}, {X: 1.9, Y: 0.1}, {X: 0.5, Y: 1.5}} {
		p := newTestProjector(t, 3, unitBounds, DefaultConfig())
		InverseDistance{}.distribute(p, pos, r3.Vec{X: 1}, 2.5)
		assert.InDelta(t, 3*2.5, p.grid.TotalTraffic(), tol, "position %v", pos)
	}
}

func TestDistribute_CellCentreSplitsEvenly(t *testing.T) {
	p := newTestProjector(t, 3, unitBounds, DefaultConfig())
	InverseDistance{}.distribute(p, r2.Vec{X: 0.5, Y: 0.5}, r3.Vec{X: 1, Y: -1}, 1)

	for _, c := range []corner{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		assert.InDelta(t, 0.75, p.grid.TrafficAt(c.row, c.col), tol)
		assert.Equal(t, r3.Vec{X: 1, Y: -1}, p.grid.FlowAt(c.row, c.col))
	}
	assert.Equal(t, 0.0, p.grid.TrafficAt(2, 2))
}

func TestDistribute_NearerCornerGetsMore(t *testing.T) {
	p := newTestProjector(t, 3, unitBounds, DefaultConfig())
	InverseDistance{}.distribute(p, r2.Vec{X: 0.1, Y: 0.1}, r3.Vec{}, 1)
	assert.Greater(t, p.grid.TrafficAt(0, 0), p.grid.TrafficAt(0, 1))
	assert.Greater(t, p.grid.TrafficAt(0, 1), p.grid.TrafficAt(1, 1))
	assert.InDelta(t, p.grid.TrafficAt(0, 1), p.grid.TrafficAt(1, 0), tol)
}

func TestDistribute_GridLineDuplicatesCorners(t *testing.T) {
	p := newTestProjector(t, 3, unitBounds, DefaultConfig())
	w := 2.0
	// x lies on a grid line, so floor(x) == ceil(x).
	InverseDistance{}.distribute(p, r2.Vec{X: 1, Y: 0.25}, r3.Vec{}, w)

	// distances 0.25, 0.75, 0.25, 0.75; sum 2
	assert.InDelta(t, 2*0.875*w, p.grid.TrafficAt(0, 1), tol)
	assert.InDelta(t, 2*0.625*w, p.grid.TrafficAt(1, 1), tol)
	assert.InDelta(t, 3*w, p.grid.TotalTraffic(), tol)
	assert.Equal(t, 0.0, p.grid.TrafficAt(0, 0))
	assert.Equal(t, 0.0, p.grid.TrafficAt(0, 2))
}

func TestDistribute_ExactVertex(t *testing.T) {
	p := newTestProjector(t, 3, unitBounds, DefaultConfig())
	InverseDistance{}.distribute(p, r2.Vec{X: 1, Y: 1}, r3.Vec{Y: 3}, 1.5)

	assert.InDelta(t, 3*1.5, p.grid.TrafficAt(1, 1), tol)
	assert.InDelta(t, 3*1.5, p.grid.TotalTraffic(), tol)
	assert.InDelta(t, 3.0, p.grid.FlowAt(1, 1).Y, tol)
	assert.False(t, math.IsNaN(p.grid.TotalTraffic()))
}

func TestProject_VertexSampleMatchesNearbySample(t *testing.T) {
	project := func(y float64) float64 {
		line := fmt.Sprintf(":1,%v;", y)
		e := mustExperiment(t, []string{"0" + line, "1" + line}, l2experiment.WithBounds(unitBounds))
		g, err := Project(e, DefaultConfig().WithSize(3))
		require.NoError(t, err)
		require.Equal(t, 2, g.Stats.Samples)
		return g.TotalTraffic()
	}

	// weights 1 and the trailing mean 1, 3w each
	onVertex := project(1)
	offVertex := project(1.000001)
	assert.InDelta(t, 6.0, onVertex, tol)
	assert.InDelta(t, offVertex, onVertex, 1e-9)
}

func TestDistribute_RunningWeightedMean(t *testing.T) {
	p := newTestProjector(t, 3, unitBounds, DefaultConfig())
	pos := r2.Vec{X: 0.5, Y: 0.5}
	InverseDistance{}.distribute(p, pos, r3.Vec{X: 2}, 1)
	InverseDistance{}.distribute(p, pos, r3.Vec{Y: 4}, 7)

	got := p.grid.FlowAt(0, 0)
	assert.InDelta(t, 1.0, got.X, tol)
	assert.InDelta(t, 2.0, got.Y, tol)
	assert.InDelta(t, 1.5, p.weights.At(0, 0), tol)
}

func TestDistribute_PartitionOfUnity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartitionOfUnity = true
	p := newTestProjector(t, 3, unitBounds, cfg)
	InverseDistance{}.distribute(p, r2.Vec{X: 0.3, Y: 0.6}, r3.Vec{}, 2.5)
	assert.InDelta(t, 2.5, p.grid.TotalTraffic(), tol)

	p = newTestProjector(t, 3, unitBounds, cfg)
	InverseDistance{}.distribute(p, r2.Vec{X: 2, Y: 2}, r3.Vec{}, 2.5)
	assert.InDelta(t, 2.5, p.grid.TrafficAt(2, 2), tol)
}

func TestProject_TwoSnapshots(t *testing.T) {
	e := mustExperiment(t, []string{"0:0.5,0.5;", "1:1.5,0.5;"}, l2experiment.WithBounds(unitBounds))
	g, err := Project(e, DefaultConfig().WithSize(3))
	require.NoError(t, err)

	want := [][]float64{
		{0.75, 1.5, 0.75},
		{0.75, 1.5, 0.75},
		{0, 0, 0},
	}
	for row := range want {
		for col := range want[row] {
			assert.InDelta(t, want[row][col], g.TrafficAt(row, col), tol, "traffic[%d][%d]", row, col)
		}
	}
	assert.InDelta(t, 6.0, g.TotalTraffic(), tol)

	assert.InDelta(t, 1.0, g.FlowAt(0, 0).X, tol)
	assert.InDelta(t, 0.5, g.FlowAt(0, 1).X, tol)
	assert.Equal(t, r3.Vec{}, g.FlowAt(0, 2))
	assert.Equal(t, 2, g.Stats.Samples)
	assert.Equal(t, r2.Vec{X: 1, Y: 1}, g.CellSize)
}

func TestProject_EmptyExperiments(t *testing.T) {
	empty, err := l2experiment.NewExperiment(nil)
	require.NoError(t, err)
	noAgents := mustExperiment(t, []string{"0:", "1:"})

	for name, e := range map[string]*l2experiment.Experiment{"no snapshots": empty, "no agents": noAgents} {
		t.Run(name, func(t *testing.T) {
			g, err := Project(e, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, DefaultGridSize, g.Size)
			assert.True(t, g.IsZero())
			assert.Equal(t, 0.0, g.TotalTraffic())
		})
	}

	g, err := Project(empty, DefaultConfig().WithSize(1))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size)
}

func TestProject_InvalidGridSize(t *testing.T) {
	e := mustExperiment(t, []string{"0:0,0;", "1:1,1;"})
	for _, n := range []int{0, -1, -21} {
		_, err := Project(e, DefaultConfig().WithSize(n))
		assert.ErrorIs(t, err, ErrInvalidGridSize, "size %d", n)
	}
	_, err := Project(e, DefaultConfig().WithSize(1))
	assert.ErrorIs(t, err, ErrInvalidGridSize)

	_, err = NewGrid(0)
	assert.ErrorIs(t, err, ErrInvalidGridSize)
}

func TestProject_NilExperiment(t *testing.T) {
	_, err := Project(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilExperiment)
}

func TestProject_UnsupportedMapping(t *testing.T) {
	e := mustExperiment(t, []string{"0:0,0;", "1:1,1;"})
	g, err := Project(e, DefaultConfig().WithMapping(Bilinear{}))
	assert.ErrorIs(t, err, ErrUnsupportedMapping)
	assert.Nil(t, g)
}

func TestProject_DegenerateBounds(t *testing.T) {
	tests := map[string][]string{
		"stationary agent": {"0:1,1;", "1:1,1;"},
		"zero height":      {"0:1,1;", "1:2,1;"},
		"zero width":       {"0:1,1;", "1:1,5;"},
	}
	for name, lines := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Project(mustExperiment(t, lines), DefaultConfig())
			assert.ErrorIs(t, err, ErrDegenerateBounds)
		})
	}
}

func TestProject_MaxTime(t *testing.T) {
	lines := []string{"0:0.5,0.5;", "1:0.5,0.5;", "2:0.5,0.5;"}
	e := mustExperiment(t, lines, l2experiment.WithBounds(unitBounds))

	g, err := Project(e, DefaultConfig().WithSize(3).WithMaxTime(1.5))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Stats.SkippedSnapshots)
	assert.Equal(t, 2, g.Stats.Samples)
	assert.InDelta(t, 3*(1+1), g.TotalTraffic(), tol)

	g, err = Project(e, DefaultConfig().WithSize(3).WithMaxTime(math.Inf(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Stats.SkippedSnapshots)
	assert.InDelta(t, 3*(1+1+1), g.TotalTraffic(), tol)
}

func TestProject_DropsSamplesOutsideSuppliedBounds(t *testing.T) {
	e := mustExperiment(t, []string{"0:0.5,0.5;9,9;", "1:0.5,0.5;9,9;"}, l2experiment.WithBounds(unitBounds))
	g, err := Project(e, DefaultConfig().WithSize(3))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Stats.Dropped)
	assert.Equal(t, 2, g.Stats.Samples)
}

func TestProject_BoundaryAgents(t *testing.T) {
	e := mustExperiment(t, []string{"0:0,0;3,3;", "1:3,0;0,3;", "2:0.1,2.9;2.9,0.1;"})
	g, err := Project(e, DefaultConfig().WithSize(4))
	require.NoError(t, err)
	assert.Equal(t, 6, g.Stats.Samples)
	assert.Equal(t, 0, g.Stats.Dropped)
	assert.False(t, math.IsNaN(g.TotalTraffic()))
}

func TestProject_TimeNormalizedFlow(t *testing.T) {
	lines := []string{"0:0.5,0.5;", "2:1.5,0.5;"}
	e := mustExperiment(t, lines, l2experiment.WithBounds(unitBounds))

	cfg := DefaultConfig().WithSize(3)
	g, err := Project(e, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.FlowAt(0, 0).X, tol)

	cfg.TimeNormalizedFlow = true
	g, err = Project(e, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, g.FlowAt(0, 0).X, tol)
}

func TestProject_AgentMissingFromNextSnapshot(t *testing.T) {
	e := mustExperiment(t, []string{"0:0.5,0.5;1.5,1.5;", "1:0.5,0.5;"}, l2experiment.WithBounds(unitBounds))
	g, err := Project(e, DefaultConfig().WithSize(3))
	require.NoError(t, err)
	// Agent 1 leaves after t=0, so its only sample carries zero motion.
	assert.Equal(t, r3.Vec{}, g.FlowAt(2, 2))
	assert.Equal(t, 3, g.Stats.Samples)
}

func TestProject_UnsortedTimestampsStillProject(t *testing.T) {
	e := mustExperiment(t, []string{"0:0.5,0.5;", "2:0.5,0.5;", "1:0.5,0.5;"}, l2experiment.WithBounds(unitBounds))
	g, err := Project(e, DefaultConfig().WithSize(3))
	require.NoError(t, err)
	// weights 2, -1, mean 0.5
	assert.InDelta(t, 3*(2-1+0.5), g.TotalTraffic(), tol)
}

func TestGrid_VertexPositionIsCentred(t *testing.T) {
	g, err := NewGrid(21)
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: -10, Y: -10}, g.VertexPosition(0, 0))
	assert.Equal(t, r2.Vec{X: 10, Y: 10}, g.VertexPosition(20, 20))
	assert.Equal(t, r2.Vec{X: 0, Y: -10}, g.VertexPosition(0, 10))

	g2, err := NewGrid(4)
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: -1.5, Y: 1.5}, g2.VertexPosition(3, 0))
}

func TestGrid_WorldPosition(t *testing.T) {
	e := mustExperiment(t, []string{"0:0,10;", "1:4,20;"})
	g, err := Project(e, DefaultConfig().WithSize(3))
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: 2, Y: 5}, g.CellSize)
	assert.Equal(t, r2.Vec{X: 4, Y: 15}, g.WorldPosition(1, 2))
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping("")
	require.NoError(t, err)
	assert.Equal(t, InverseDistance{}, m)

	m, err = ParseMapping("Inverse_Distance")
	require.NoError(t, err)
	assert.Equal(t, "inverse_distance", m.Name())

	m, err = ParseMapping("bilinear")
	require.NoError(t, err)
	assert.ErrorIs(t, m.supported(), ErrUnsupportedMapping)

	_, err = ParseMapping("nearest")
	assert.ErrorIs(t, err, ErrUnsupportedMapping)
}
