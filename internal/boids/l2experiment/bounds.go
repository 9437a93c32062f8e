package l2experiment

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/boids.report/internal/boids/l1snapshots"
)

// ErrInvalidBounds is returned for bounds with non-finite or inverted edges.
var ErrInvalidBounds = errors.New("l2experiment: invalid bounds")

// Bounds is an axis-aligned rectangle in world coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Min returns the lower-left corner.
func (b Bounds) Min() r2.Vec { return r2.Vec{X: b.MinX, Y: b.MinY} }

// Max returns the upper-right corner.
func (b Bounds) Max() r2.Vec { return r2.Vec{X: b.MaxX, Y: b.MaxY} }

// Width returns MaxX-MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY-MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Contains reports whether (x, y) lies inside b, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Validate checks that every edge is finite and min does not exceed max.
// Zero width or height is allowed here; the projector rejects it.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite edge in %v", ErrInvalidBounds, b)
		}
	}
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return fmt.Errorf("%w: min exceeds max in %v", ErrInvalidBounds, b)
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]", b.MinX, b.MaxX, b.MinY, b.MaxY)
}

// BoundsFromSlice builds Bounds from {minX, minY, maxX, maxY}.
func BoundsFromSlice(v []float64) (Bounds, error) {
	if len(v) != 4 {
		return Bounds{}, fmt.Errorf("%w: want 4 values (minX,minY,maxX,maxY), got %d", ErrInvalidBounds, len(v))
	}
	b := Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// ParseBounds parses "minX,minY,maxX,maxY".
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("%w: %q: %v", ErrInvalidBounds, s, err)
		}
		vals = append(vals, v)
	}
	return BoundsFromSlice(vals)
}

// computeBounds returns the tightest rectangle around every position in
// every snapshot. ok is false when no snapshot holds a position.
func computeBounds(snapshots []l1snapshots.Snapshot) (Bounds, bool) {
	var xs, ys []float64
	for _, s := range snapshots {
		for _, p := range s.Positions {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
	}
	if len(xs) == 0 {
		return Bounds{}, false
	}
	return Bounds{
		MinX: floats.Min(xs),
		MinY: floats.Min(ys),
		MaxX: floats.Max(xs),
		MaxY: floats.Max(ys),
	}, true
}
