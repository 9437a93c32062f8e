package l3grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
)

// DefaultGridSize is the grid resolution used when none is configured.
const DefaultGridSize = 21

// Config controls a projection.
type Config struct {
	// Size is the number of vertices per side. Projection needs at least 2.
	Size int
	// MaxTime, when set, excludes snapshots whose timestamp is not below it.
	MaxTime *float64
	// Mapping defaults to InverseDistance when nil.
	Mapping Mapping
	// PartitionOfUnity rescales corner portions to sum to 1, so a sample of
	// weight w adds w to the grid instead of 3w.
	PartitionOfUnity bool
	// TimeNormalizedFlow divides each displacement by its time step, giving
	// velocity instead of per-step displacement.
	TimeNormalizedFlow bool
}

// DefaultConfig returns the compatible configuration: a 21x21 grid, no time
// limit, inverse-distance mapping and the unnormalised weighting.
func DefaultConfig() Config {
	return Config{Size: DefaultGridSize, Mapping: InverseDistance{}}
}

// WithSize returns a copy of c with Size set.
func (c Config) WithSize(n int) Config {
	c.Size = n
	return c
}

// WithMaxTime returns a copy of c limited to timestamps below t.
func (c Config) WithMaxTime(t float64) Config {
	c.MaxTime = &t
	return c
}

// WithMapping returns a copy of c using m.
func (c Config) WithMapping(m Mapping) Config {
	c.Mapping = m
	return c
}

// projector owns the grid under construction and the per-vertex sample
// weights used for the running flow average.
type projector struct {
	cfg     Config
	grid    *Grid
	weights *mat.Dense
	bounds  l2experiment.Bounds
	cell    r2.Vec
}

// clamp converts a floor/ceil result to an index inside the grid. Positions
// inside Bounds land within one ulp of the edge at worst.
func (p *projector) clamp(v float64) int {
	i := int(v)
	if i < 0 {
		return 0
	}
	if i > p.grid.Size-1 {
		return p.grid.Size - 1
	}
	return i
}

func (p *projector) world(c corner) r2.Vec {
	return r2.Vec{
		X: p.bounds.MinX + float64(c.col)*p.cell.X,
		Y: p.bounds.MinY + float64(c.row)*p.cell.Y,
	}
}

// accumulate adds weight*portion to the corner's traffic and folds motion
// into its running weighted mean with weight portion.
func (p *projector) accumulate(c corner, motion r3.Vec, weight, portion float64) {
	t := p.grid.Traffic
	t.Set(c.row, c.col, t.At(c.row, c.col)+weight*portion)

	old := p.weights.At(c.row, c.col)
	sum := old + portion
	if sum == 0 {
		return
	}
	i := p.grid.idx(c.row, c.col)
	p.grid.flow[i] = r3.Scale(1/sum, r3.Add(r3.Scale(old, p.grid.flow[i]), r3.Scale(portion, motion)))
	p.weights.Set(c.row, c.col, sum)
}

// Project bins every snapshot sample of exp into a fresh grid.
//
// For snapshot i < n-1 each agent's motion is its displacement to the same
// agent in snapshot i+1, weighted by DeltaTimes[i]. The final snapshot
// contributes zero motion weighted by the synthetic trailing delta. Agents
// missing from the next snapshot also contribute zero motion.
//
// An experiment with no snapshots or no agents yields an all-zero grid.
func Project(exp *l2experiment.Experiment, cfg Config) (*Grid, error) {
	if exp == nil {
		return nil, ErrNilExperiment
	}
	if cfg.Size < 1 {
		return nil, fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidGridSize, cfg.Size)
	}
	mapping := cfg.Mapping
	if mapping == nil {
		mapping = InverseDistance{}
	}
	if err := mapping.supported(); err != nil {
		return nil, err
	}

	grid, err := NewGrid(cfg.Size)
	if err != nil {
		return nil, err
	}

	n := exp.Len()
	if n == 0 || exp.AgentCount() == 0 {
		diagf("experiment has %d snapshots and %d agents; returning empty %dx%d grid", n, exp.AgentCount(), cfg.Size, cfg.Size)
		return grid, nil
	}

	bounds, ok := exp.Bounds()
	if !ok {
		return grid, nil
	}
	grid.Bounds = bounds

	if cfg.Size < 2 {
		return nil, fmt.Errorf("%w: %d (projection needs at least 2 vertices per side)", ErrInvalidGridSize, cfg.Size)
	}
	cell := r2.Vec{
		X: bounds.Width() / float64(cfg.Size-1),
		Y: bounds.Height() / float64(cfg.Size-1),
	}
	if !(cell.X > 0) || !(cell.Y > 0) || math.IsInf(cell.X, 0) || math.IsInf(cell.Y, 0) {
		return nil, fmt.Errorf("%w: %v gives cell size %gx%g", ErrDegenerateBounds, bounds, cell.X, cell.Y)
	}
	grid.CellSize = cell

	p := &projector{
		cfg:     cfg,
		grid:    grid,
		weights: mat.NewDense(cfg.Size, cfg.Size, nil),
		bounds:  bounds,
		cell:    cell,
	}

	deltas := exp.DeltaTimes()
	for i := 0; i < n; i++ {
		s := exp.Snapshot(i)
		// The final snapshot's trailing-delta sample obeys MaxTime too.
		if cfg.MaxTime != nil && !(s.Timestamp < *cfg.MaxTime) {
			grid.Stats.SkippedSnapshots++
			continue
		}

		weight := deltas.Values[i]
		last := i == n-1
		for _, pos := range s.Positions {
			var motion r3.Vec
			if !last {
				if next, ok := exp.Snapshot(i + 1).Position(pos.AgentIndex); ok {
					motion = r3.Vec{X: next.X - pos.X, Y: next.Y - pos.Y}
					if cfg.TimeNormalizedFlow && weight != 0 {
						motion = r3.Scale(1/weight, motion)
					}
				}
			}

			if !bounds.Contains(pos.X, pos.Y) {
				grid.Stats.Dropped++
				continue
			}
			mapping.distribute(p, pos.Vec(), motion, weight)
			grid.Stats.Samples++
		}
		tracef("snapshot %d t=%g agents=%d weight=%g", i, s.Timestamp, s.Len(), weight)
	}

	if grid.Stats.Dropped > 0 {
		opsf("dropped %d samples outside bounds %v", grid.Stats.Dropped, bounds)
	}
	diagf("projected %d samples onto %dx%d grid (cell %gx%g, mapping %s, total traffic %g)",
		grid.Stats.Samples, cfg.Size, cfg.Size, cell.X, cell.Y, mapping.Name(), grid.TotalTraffic())
	return grid, nil
}
