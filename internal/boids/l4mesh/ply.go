package l4mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

var (
	// ErrInvalidGridSize indicates a negative grid size.
	ErrInvalidGridSize = errors.New("l4mesh: invalid grid size")
	// ErrNilGrid indicates Write or Serialize was called without a grid.
	ErrNilGrid = errors.New("l4mesh: nil grid")
)

// VertexProperties lists the per-vertex float properties in output order.
var VertexProperties = []string{"x", "y", "z", "vx", "vy", "vz", "s"}

// VertexCount returns size².
func VertexCount(size int) int { return size * size }

// FaceCount returns (size-1)², or 0 for grids too small to hold a quad.
func FaceCount(size int) int {
	if size < 2 {
		return 0
	}
	return (size - 1) * (size - 1)
}

// Header returns the PLY header for a size x size grid.
func Header(size int) (string, error) {
	if size < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidGridSize, size)
	}
	var b strings.Builder
	b.WriteString("ply\n")
	b.WriteString("format ascii 1.0\n")
	fmt.Fprintf(&b, "element vertex %d\n", VertexCount(size))
	for _, p := range VertexProperties {
		fmt.Fprintf(&b, "property float %s\n", p)
	}
	fmt.Fprintf(&b, "element face %d\n", FaceCount(size))
	b.WriteString("property list uchar int vertex_indices\n")
	b.WriteString("end_header\n")
	return b.String(), nil
}

// Write renders g to w.
//
// Vertices are emitted from the highest row and column down to (0, 0), each
// as "x y z vx vy vz s" with (x, y) the centred unit-spacing position and
// z = 0. Faces are quads over row-major vertex indices, wound
// (v, v+1, v+1+size, v+size); the per-row index offset keeps a quad from
// wrapping across a row boundary.
func Write(w io.Writer, g *l3grid.Grid) error {
	if g == nil {
		return ErrNilGrid
	}
	header, err := Header(g.Size)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	buf := make([]byte, 0, 128)
	for row := g.Size - 1; row >= 0; row-- {
		for col := g.Size - 1; col >= 0; col-- {
			pos := g.VertexPosition(row, col)
			flow := g.FlowAt(row, col)
			buf = buf[:0]
			for i, v := range [...]float64{pos.X, pos.Y, 0, flow.X, flow.Y, flow.Z, g.TrafficAt(row, col)} {
				if i > 0 {
					buf = append(buf, ' ')
				}
				buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
			}
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("write vertex (%d,%d): %w", row, col, err)
			}
		}
	}

	faces := FaceCount(g.Size)
	offset := 0
	for i := 0; i < faces; i++ {
		if i > 0 && i%(g.Size-1) == 0 {
			offset++
		}
		v := i + offset
		if _, err := fmt.Fprintf(bw, "4 %d %d %d %d\n", v, v+1, v+1+g.Size, v+g.Size); err != nil {
			return fmt.Errorf("write face %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// Serialize renders g as a PLY document string.
func Serialize(g *l3grid.Grid) (string, error) {
	var b strings.Builder
	if err := Write(&b, g); err != nil {
		return "", err
	}
	return b.String(), nil
}
