// Package report renders projected grids for people rather than mesh
// viewers: a traffic heatmap and flow field as PNG (gonum/plot), an
// interactive traffic heatmap as HTML (go-echarts), and a JSON summary of
// the experiment and projection.
//
// Renderers write to an io.Writer; the pipeline decides file names.
package report
