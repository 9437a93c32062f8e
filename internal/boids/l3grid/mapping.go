package l3grid

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mapping selects how one sample is spread over the grid. The set of
// mappings is closed: the unexported methods mean only this package can
// implement it, so every member must provide distribute.
type Mapping interface {
	// Name is the identifier used in configuration files.
	Name() string

	supported() error
	distribute(p *projector, pos r2.Vec, motion r3.Vec, weight float64)
}

// InverseDistance spreads a sample over the four corners of its enclosing
// cell, favouring nearer corners by 1 - d_k/sum(d).
type InverseDistance struct{}

// Bilinear is reserved for bilinear splatting. It is not implemented and
// Project rejects it with ErrUnsupportedMapping.
type Bilinear struct{}

// Name implements Mapping.
func (InverseDistance) Name() string { return "inverse_distance" }

// Name implements Mapping.
func (Bilinear) Name() string { return "bilinear" }

func (InverseDistance) supported() error { return nil }

func (Bilinear) supported() error {
	return fmt.Errorf("%w: %s", ErrUnsupportedMapping, Bilinear{}.Name())
}

// Bilinear never reaches distribute because supported fails first.
func (Bilinear) distribute(*projector, r2.Vec, r3.Vec, float64) {
	panic("l3grid: bilinear mapping is not implemented")
}

// ParseMapping resolves a configuration name. The empty string selects
// InverseDistance.
func ParseMapping(name string) (Mapping, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", InverseDistance{}.Name(), "inverse-distance", "idw":
		return InverseDistance{}, nil
	case Bilinear{}.Name():
		return Bilinear{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mapping %q", ErrUnsupportedMapping, name)
	}
}

// corner is a grid vertex addressed as (row, col) = (y index, x index).
type corner struct{ row, col int }

func (InverseDistance) distribute(p *projector, pos r2.Vec, motion r3.Vec, weight float64) {
	gx := (pos.X - p.bounds.MinX) / p.cell.X
	gy := (pos.Y - p.bounds.MinY) / p.cell.Y

	x0, x1 := p.clamp(math.Floor(gx)), p.clamp(math.Ceil(gx))
	y0, y1 := p.clamp(math.Floor(gy)), p.clamp(math.Ceil(gy))

	// On a grid line floor == ceil and the shared corner is visited twice.
	corners := [4]corner{
		{row: y0, col: x0},
		{row: y1, col: x0},
		{row: y0, col: x1},
		{row: y1, col: x1},
	}

	var dist [4]float64
	var sum float64
	for k, c := range corners {
		dist[k] = r2.Norm(r2.Sub(p.world(c), pos))
		sum += dist[k]
	}

	var portion [4]float64
	var total float64
	for k := range corners {
		if sum == 0 {
			// The sample sits exactly on a vertex and all four corners are
			// that vertex. 3/4 each keeps the 3w total of the off-vertex case.
			portion[k] = 0.75
		} else {
			portion[k] = 1 - dist[k]/sum
		}
		total += portion[k]
	}
	if p.cfg.PartitionOfUnity && total > 0 {
		for k := range portion {
			portion[k] /= total
		}
	}

	for k, c := range corners {
		p.accumulate(c, motion, weight, portion[k])
	}
}
