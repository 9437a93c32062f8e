package l3grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
)

var (
	// ErrInvalidGridSize indicates a grid size below the minimum.
	ErrInvalidGridSize = errors.New("l3grid: invalid grid size")
	// ErrUnsupportedMapping indicates a mapping mode that cannot be projected.
	ErrUnsupportedMapping = errors.New("l3grid: unsupported mapping mode")
	// ErrDegenerateBounds indicates zero cell width or height.
	ErrDegenerateBounds = errors.New("l3grid: degenerate bounds")
	// ErrNilExperiment indicates Project was called without an experiment.
	ErrNilExperiment = errors.New("l3grid: nil experiment")
)

// Stats describes one projection.
type Stats struct {
	// Samples is the number of (position, motion, weight) samples distributed.
	Samples int `json:"samples"`
	// Dropped counts samples outside caller-supplied bounds.
	Dropped int `json:"dropped"`
	// SkippedSnapshots counts snapshots at or after the max time.
	SkippedSnapshots int `json:"skipped_snapshots"`
}

// Grid is a Size x Size lattice of vertices. Row indexes y and column
// indexes x. Traffic holds the scalar density; flow holds the averaged
// motion vector per vertex in row-major order.
type Grid struct {
	Size     int
	Bounds   l2experiment.Bounds
	CellSize r2.Vec
	Traffic  *mat.Dense
	Stats    Stats

	flow []r3.Vec
}

// NewGrid returns a zeroed Size x Size grid.
func NewGrid(size int) (*Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidGridSize, size)
	}
	return &Grid{
		Size:    size,
		Traffic: mat.NewDense(size, size, nil),
		flow:    make([]r3.Vec, size*size),
	}, nil
}

func (g *Grid) idx(row, col int) int { return row*g.Size + col }

// TrafficAt returns the scalar density at (row, col).
func (g *Grid) TrafficAt(row, col int) float64 {
	if g.Traffic == nil {
		return 0
	}
	return g.Traffic.At(row, col)
}

// FlowAt returns the averaged motion vector at (row, col).
func (g *Grid) FlowAt(row, col int) r3.Vec {
	if g.flow == nil {
		return r3.Vec{}
	}
	return g.flow[g.idx(row, col)]
}

// VertexPosition returns the centred unit-spacing coordinate of (row, col):
// (col - (Size-1)/2, row - (Size-1)/2).
func (g *Grid) VertexPosition(row, col int) r2.Vec {
	half := float64(g.Size-1) / 2
	return r2.Vec{X: float64(col) - half, Y: float64(row) - half}
}

// WorldPosition returns the world coordinate of (row, col) within Bounds.
func (g *Grid) WorldPosition(row, col int) r2.Vec {
	return r2.Add(g.Bounds.Min(), r2.Vec{X: float64(col) * g.CellSize.X, Y: float64(row) * g.CellSize.Y})
}

// TotalTraffic sums Traffic over the whole grid.
func (g *Grid) TotalTraffic() float64 {
	if g.Traffic == nil {
		return 0
	}
	return mat.Sum(g.Traffic)
}

// MaxTraffic returns the largest vertex density.
func (g *Grid) MaxTraffic() float64 {
	if g.Traffic == nil {
		return 0
	}
	return mat.Max(g.Traffic)
}

// IsZero reports whether every traffic and flow value is zero.
func (g *Grid) IsZero() bool {
	if g.Traffic != nil && (mat.Max(g.Traffic) != 0 || mat.Min(g.Traffic) != 0) {
		return false
	}
	for _, v := range g.flow {
		if v != (r3.Vec{}) {
			return false
		}
	}
	return true
}
