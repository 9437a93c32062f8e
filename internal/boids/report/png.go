package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

var (
	// ErrNilGrid indicates a renderer was called without a grid.
	ErrNilGrid = errors.New("report: nil grid")
	// ErrGridTooSmall indicates a grid with fewer than 2 vertices per side.
	ErrGridTooSmall = errors.New("report: grid too small to render")
)

// Default PNG dimensions.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 8 * vg.Inch
)

// heatPaletteSize is the number of colour steps in the traffic heatmap.
const heatPaletteSize = 32

func checkGrid(g *l3grid.Grid) error {
	if g == nil {
		return ErrNilGrid
	}
	if g.Size < 2 {
		return fmt.Errorf("%w: size %d", ErrGridTooSmall, g.Size)
	}
	return nil
}

// gridAxes maps column and row indices to plot coordinates. Projected grids
// use world coordinates; a grid with no extent falls back to the centred
// unit spacing used by the mesh.
type gridAxes struct{ g *l3grid.Grid }

func (a gridAxes) world() bool { return a.g.CellSize.X > 0 && a.g.CellSize.Y > 0 }

func (a gridAxes) X(c int) float64 {
	if a.world() {
		return a.g.WorldPosition(0, c).X
	}
	return a.g.VertexPosition(0, c).X
}

func (a gridAxes) Y(r int) float64 {
	if a.world() {
		return a.g.WorldPosition(r, 0).Y
	}
	return a.g.VertexPosition(r, 0).Y
}

// trafficGrid adapts a Grid to plotter.GridXYZ.
type trafficGrid struct{ gridAxes }

func (t trafficGrid) Dims() (c, r int)   { return t.g.Size, t.g.Size }
func (t trafficGrid) Z(c, r int) float64 { return t.g.TrafficAt(r, c) }

// flowField adapts a Grid to plotter.FieldXY.
type flowField struct{ gridAxes }

func (f flowField) Dims() (c, r int) { return f.g.Size, f.g.Size }
func (f flowField) Vector(c, r int) plotter.XY {
	v := f.g.FlowAt(r, c)
	return plotter.XY{X: v.X, Y: v.Y}
}

func newGridPlot(title string, g *l3grid.Grid) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	if (gridAxes{g}).world() {
		p.X.Label.Text = "x"
		p.Y.Label.Text = "y"
	} else {
		p.X.Label.Text = "column"
		p.Y.Label.Text = "row"
	}
	return p
}

func writePlot(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("create png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// RenderTrafficPNG draws the traffic density of g as a heatmap.
// Zero width or height selects the defaults.
func RenderTrafficPNG(w io.Writer, g *l3grid.Grid, title string, width, height vg.Length) error {
	if err := checkGrid(g); err != nil {
		return err
	}

	p := newGridPlot(title, g)
	pal := palette.Heat(heatPaletteSize, 1)
	hm := plotter.NewHeatMap(trafficGrid{gridAxes{g}}, pal)
	hm.Min = 0
	hm.Max = g.MaxTraffic()
	if !(hm.Max > hm.Min) || math.IsInf(hm.Max, 0) {
		// Uniform grid: give the palette a non-zero range.
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	thumbs := plotter.PaletteThumbnailers(pal)
	p.Legend.Add(fmt.Sprintf("%.3g", hm.Max), thumbs[len(thumbs)-1])
	p.Legend.Add(fmt.Sprintf("%.3g", hm.Min), thumbs[0])
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	diagf("rendering %dx%d traffic heatmap (max %g)", g.Size, g.Size, g.MaxTraffic())
	return writePlot(w, p, width, height)
}

// RenderFlowPNG draws the averaged flow vectors of g as a quiver plot.
// Arrows are scaled so the longest fills one cell. A grid with no motion
// renders axes only.
func RenderFlowPNG(w io.Writer, g *l3grid.Grid, title string, width, height vg.Length) error {
	if err := checkGrid(g); err != nil {
		return err
	}

	p := newGridPlot(title, g)
	field := flowField{gridAxes{g}}
	if hasMotion(field) {
		f := plotter.NewField(field)
		f.LineStyle.Width = vg.Points(0.75)
		f.LineStyle.Color = color.RGBA{R: 31, G: 104, B: 142, A: 255}
		p.Add(f)
	} else {
		diagf("flow plot %q: no motion recorded", title)
		// Keep the axis range of the grid.
		p.X.Min, p.X.Max = field.X(0), field.X(g.Size-1)
		p.Y.Min, p.Y.Max = field.Y(0), field.Y(g.Size-1)
	}
	p.Add(plotter.NewGrid())

	return writePlot(w, p, width, height)
}

func hasMotion(f flowField) bool {
	c, r := f.Dims()
	for i := 0; i < c; i++ {
		for j := 0; j < r; j++ {
			if v := f.Vector(i, j); v.X != 0 || v.Y != 0 {
				return true
			}
		}
	}
	return false
}
