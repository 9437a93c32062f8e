package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

// viridis runs from low to high traffic.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// axisLabels formats the plot coordinate of each column (or row) for the
// category axes of the HTML heatmap.
func axisLabels(n int, at func(int) float64) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.FormatFloat(at(i), 'g', 4, 64)
	}
	return labels
}

// RenderTrafficHTML writes a standalone HTML page with an interactive
// heatmap of g's traffic. Row 0 is drawn at the bottom.
func RenderTrafficHTML(w io.Writer, g *l3grid.Grid, title string) error {
	if err := checkGrid(g); err != nil {
		return err
	}

	axes := gridAxes{g}
	data := make([]opts.HeatMapData, 0, g.Size*g.Size)
	for row := 0; row < g.Size; row++ {
		for col := 0; col < g.Size; col++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{col, row, g.TrafficAt(row, col)}})
		}
	}

	maxTraffic := g.MaxTraffic()
	if maxTraffic <= 0 {
		maxTraffic = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("grid=%dx%d samples=%d total=%.4g", g.Size, g.Size, g.Stats.Samples, g.TotalTraffic()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: axisLabels(g.Size, axes.X), Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: axisLabels(g.Size, axes.Y), Name: "y", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxTraffic),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries("traffic", data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("render html heatmap: %w", err)
	}
	return nil
}
