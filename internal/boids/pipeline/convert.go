package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/boids.report/internal/boids/l1snapshots"
	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
	"github.com/banshee-data/boids.report/internal/boids/l3grid"
	"github.com/banshee-data/boids.report/internal/boids/l4mesh"
	"github.com/banshee-data/boids.report/internal/boids/report"
	"github.com/banshee-data/boids.report/internal/config"
	"github.com/banshee-data/boids.report/internal/db"
	"github.com/banshee-data/boids.report/internal/fsutil"
)

var (
	// ErrMissingInput is returned by CheckInputs for an input that does not exist.
	ErrMissingInput = errors.New("pipeline: input file not found")
	// ErrOutputCollision is returned when two inputs map to the same output name.
	ErrOutputCollision = errors.New("pipeline: inputs share an output name")
)

// Output file suffixes, appended to the input base name.
const (
	MeshExt       = ".ply"
	TrafficPNGExt = ".traffic.png"
	FlowPNGExt    = ".flow.png"
	HTMLExt       = ".html"
	SummaryExt    = ".summary.json"
)

// RunRecorder stores one row per conversion. *db.DB implements it.
type RunRecorder interface {
	RecordRun(r *db.Run) error
}

// Converter turns experiment logs into PLY meshes and optional reports.
type Converter struct {
	fs       fsutil.FileSystem
	cfg      *config.TransformConfig
	proj     l3grid.Config
	recorder RunRecorder
	now      func() time.Time
}

// NewConverter validates cfg and returns a Converter. recorder may be nil.
func NewConverter(fsys fsutil.FileSystem, cfg *config.TransformConfig, recorder RunRecorder) (*Converter, error) {
	if cfg == nil {
		cfg = config.EmptyTransformConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	proj, err := cfg.ProjectionConfig()
	if err != nil {
		return nil, err
	}
	return &Converter{
		fs:       fsys,
		cfg:      cfg,
		proj:     proj,
		recorder: recorder,
		now:      time.Now,
	}, nil
}

// Result describes one converted experiment.
type Result struct {
	Source string
	Output string
	// Reports lists every additional file written, in write order.
	Reports []string
	RunID   string
	Summary report.Summary
	Grid    *l3grid.Grid
}

// BaseName strips the directory and final extension from an input path.
func BaseName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath returns the mesh path for input inside outputDir.
func OutputPath(outputDir, input string) string {
	return filepath.Join(outputDir, BaseName(input)+MeshExt)
}

// CheckInputs fails on the first input that does not exist, and when two
// inputs would write the same output file.
func CheckInputs(fsys fsutil.FileSystem, inputs []string) error {
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		if !fsutil.Exists(fsys, in) {
			return fmt.Errorf("%w: %s", ErrMissingInput, in)
		}
		base := BaseName(in)
		if prev, ok := seen[base]; ok {
			return fmt.Errorf("%w: %s and %s both produce %s%s", ErrOutputCollision, prev, in, base, MeshExt)
		}
		seen[base] = in
	}
	return nil
}

// readExperiment parses path and builds its Experiment with any configured
// bounds override.
func (c *Converter) readExperiment(path string) (*l2experiment.Experiment, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	snaps, err := l1snapshots.ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var opts []l2experiment.Option
	if b, ok := c.cfg.GetBounds(); ok {
		opts = append(opts, l2experiment.WithBounds(b))
	}
	exp, err := l2experiment.NewExperiment(snaps, opts...)
	if err != nil {
		return nil, fmt.Errorf("build experiment %s: %w", path, err)
	}
	return exp, nil
}

// ConvertFile converts one experiment log. The mesh is written to
// <output_dir>/<base>.ply; enabled reports sit beside it.
func (c *Converter) ConvertFile(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := c.now()

	exp, err := c.readExperiment(path)
	if err != nil {
		return nil, err
	}
	diagf("%s: %d snapshots, %d agents", path, exp.Len(), exp.AgentCount())

	grid, err := l3grid.Project(exp, c.proj)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outDir := c.cfg.GetOutputDir()
	if err := c.fs.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outDir, err)
	}

	res := &Result{
		Source: path,
		Output: OutputPath(outDir, path),
		Grid:   grid,
	}
	if err := fsutil.WriteAtomic(c.fs, res.Output, func(w io.Writer) error {
		return l4mesh.Write(w, grid)
	}); err != nil {
		return nil, fmt.Errorf("write mesh %s: %w", res.Output, err)
	}
	res.Summary = report.NewSummary(path, res.Output, exp, grid, c.proj)

	if err := c.writeReports(res); err != nil {
		return nil, err
	}

	if c.recorder != nil {
		run := runFromSummary(res.Summary)
		run.CreatedAt = c.now()
		if err := c.recorder.RecordRun(&run); err != nil {
			return nil, fmt.Errorf("record run for %s: %w", path, err)
		}
		res.RunID = run.RunID
	}

	diagf("converted %s -> %s in %v (%d samples, %d dropped)",
		path, res.Output, c.now().Sub(start), grid.Stats.Samples, grid.Stats.Dropped)
	return res, nil
}

func (c *Converter) writeReports(res *Result) error {
	base := filepath.Join(c.cfg.GetOutputDir(), BaseName(res.Source))
	title := filepath.Base(res.Source)

	type job struct {
		path  string
		write func(io.Writer) error
	}
	var jobs []job

	renderable := res.Grid.Size >= 2
	if (c.cfg.GetWritePNG() || c.cfg.GetWriteHTML()) && !renderable {
		opsf("%s: %dx%d grid is too small for image reports; skipping", res.Source, res.Grid.Size, res.Grid.Size)
	}
	if c.cfg.GetWritePNG() && renderable {
		jobs = append(jobs,
			job{base + TrafficPNGExt, func(w io.Writer) error {
				return report.RenderTrafficPNG(w, res.Grid, title+" traffic", 0, 0)
			}},
			job{base + FlowPNGExt, func(w io.Writer) error {
				return report.RenderFlowPNG(w, res.Grid, title+" flow", 0, 0)
			}},
		)
	}
	if c.cfg.GetWriteHTML() && renderable {
		jobs = append(jobs, job{base + HTMLExt, func(w io.Writer) error {
			return report.RenderTrafficHTML(w, res.Grid, title)
		}})
	}
	if c.cfg.GetWriteSummary() {
		jobs = append(jobs, job{base + SummaryExt, func(w io.Writer) error {
			return report.WriteSummaryJSON(w, res.Summary)
		}})
	}

	for _, j := range jobs {
		if err := fsutil.WriteAtomic(c.fs, j.path, j.write); err != nil {
			return fmt.Errorf("write report %s: %w", j.path, err)
		}
		tracef("wrote %s", j.path)
		res.Reports = append(res.Reports, j.path)
	}
	return nil
}

func runFromSummary(s report.Summary) db.Run {
	run := db.Run{
		SourcePath:      s.Source,
		OutputPath:      s.Output,
		GridSize:        s.GridSize,
		Mapping:         s.Mapping,
		MaxTime:         s.MaxTime,
		SnapshotCount:   s.Experiment.Snapshots,
		AgentCount:      s.Experiment.Agents,
		SampleCount:     s.Projection.Samples,
		DroppedCount:    s.Projection.Dropped,
		Sorted:          s.Experiment.Sorted,
		TotalTraffic:    s.TotalTraffic,
		DurationSeconds: s.Experiment.Duration,
	}
	if b := s.Experiment.Bounds; b != nil {
		run.Bounds = &[4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
	}
	return run
}

// ConvertAll checks every input, then converts them with at most
// GetWorkers() conversions in flight. Results are in input order. The first
// failure cancels conversions that have not started.
func (c *Converter) ConvertAll(ctx context.Context, inputs []string) ([]*Result, error) {
	if err := CheckInputs(c.fs, inputs); err != nil {
		return nil, err
	}

	results := make([]*Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.GetWorkers())
	for i, in := range inputs {
		g.Go(func() error {
			res, err := c.ConvertFile(gctx, in)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diagf("converted %d experiment(s) into %s", len(inputs), c.cfg.GetOutputDir())
	return results, nil
}
