// Command boids-transform converts boids experiment logs into PLY meshes
// whose vertices carry the averaged flow and traffic density of the flock.
//
//	boids-transform [flags] in1.log [in2.log ...]
//
// Each input produces <output dir>/<input base name>.ply, plus optional PNG,
// HTML and JSON reports. With -db every conversion is recorded in a SQLite
// run catalog.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
	"github.com/banshee-data/boids.report/internal/boids/l3grid"
	"github.com/banshee-data/boids.report/internal/boids/pipeline"
	"github.com/banshee-data/boids.report/internal/boids/report"
	"github.com/banshee-data/boids.report/internal/config"
	"github.com/banshee-data/boids.report/internal/db"
	"github.com/banshee-data/boids.report/internal/fsutil"
	"github.com/banshee-data/boids.report/internal/monitoring"
	"github.com/banshee-data/boids.report/internal/version"
)

// Options holds the parsed command line.
type Options struct {
	ConfigPath  string
	Verbose     bool
	VeryVerbose bool
	ShowVersion bool
	ListRuns    int
	Inputs      []string

	// Overrides holds only the flags given explicitly.
	Overrides *config.TransformConfig
}

// boundsFlag parses "minX,minY,maxX,maxY".
type boundsFlag struct{ v []float64 }

func (b *boundsFlag) String() string {
	if b == nil || b.v == nil {
		return ""
	}
	return fmt.Sprint(b.v)
}

func (b *boundsFlag) Set(s string) error {
	bounds, err := l2experiment.ParseBounds(s)
	if err != nil {
		return err
	}
	b.v = []float64{bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY}
	return nil
}

func parseFlags(args []string, stderr io.Writer) (*Options, error) {
	fs := flag.NewFlagSet("boids-transform", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &Options{}
	var (
		outputDir    = fs.String("o", config.DefaultOutputDir, "Output directory for meshes and reports")
		gridSize     = fs.Int("grid", config.DefaultGridSize, "Grid vertices per side (at least 2)")
		maxTime      = fs.Float64("max-time", math.Inf(1), "Ignore snapshots at or after this timestamp")
		mapping      = fs.String("mapping", config.DefaultMapping, "Sample mapping mode (inverse_distance)")
		partition    = fs.Bool("partition-of-unity", false, "Normalise corner weights so each sample adds its weight once")
		timeNorm     = fs.Bool("time-normalized-flow", false, "Store velocity (displacement / time step) instead of displacement")
		writePNG     = fs.Bool("png", false, "Write traffic heatmap and flow field PNGs")
		writeHTML    = fs.Bool("html", false, "Write an interactive HTML traffic heatmap")
		writeSummary = fs.Bool("summary", false, "Write a JSON summary per experiment")
		dbPath       = fs.String("db", "", "SQLite run catalog path (optional)")
		workers      = fs.Int("workers", config.DefaultWorkers, "Experiments converted in parallel")
		bounds       boundsFlag
	)
	fs.Var(&bounds, "bounds", "Fixed world bounds minX,minY,maxX,maxY (default: fit to data)")
	fs.StringVar(&opts.ConfigPath, "config", "", "JSON transform config; flags override its values")
	fs.BoolVar(&opts.Verbose, "v", false, "Log per-experiment diagnostics")
	fs.BoolVar(&opts.VeryVerbose, "vv", false, "Log per-snapshot trace output")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version and exit")
	fs.IntVar(&opts.ListRuns, "list-runs", 0, "Print the N most recent runs from -db as JSON and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: boids-transform [flags] in1.log [in2.log ...]\n\n")
		fmt.Fprintf(stderr, "Projects boids experiment logs onto a regular grid and writes one PLY mesh\n")
		fmt.Fprintf(stderr, "per input, named after the input file, into the output directory.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.Inputs = fs.Args()

	o := config.EmptyTransformConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			o.OutputDir = outputDir
		case "grid":
			o.GridSize = gridSize
		case "max-time":
			o.MaxTime = maxTime
		case "mapping":
			o.Mapping = mapping
		case "partition-of-unity":
			o.PartitionOfUnity = partition
		case "time-normalized-flow":
			o.TimeNormalizedFlow = timeNorm
		case "png":
			o.WritePNG = writePNG
		case "html":
			o.WriteHTML = writeHTML
		case "summary":
			o.WriteSummary = writeSummary
		case "db":
			o.DBPath = dbPath
		case "workers":
			o.Workers = workers
		case "bounds":
			o.Bounds = bounds.v
		}
	})
	opts.Overrides = o
	return opts, nil
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(opts *Options) (*config.TransformConfig, error) {
	cfg := config.DefaultTransformConfig()
	if opts.ConfigPath != "" {
		fileCfg, err := config.LoadTransformConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(opts.Overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(opts *Options, stderr io.Writer) {
	diag, trace := io.Writer(nil), io.Writer(nil)
	if opts.Verbose || opts.VeryVerbose {
		diag = stderr
	}
	if opts.VeryVerbose {
		trace = stderr
	}
	l2experiment.SetLogWriters(stderr, diag, trace)
	l3grid.SetLogWriters(stderr, diag, trace)
	report.SetLogWriters(stderr, diag, trace)
	pipeline.SetLogWriters(stderr, diag, trace)

	if diag != nil {
		monitoring.SetLogger(monitoring.WriterLogger(stderr, "[boids-transform] "))
	} else {
		monitoring.SetLogger(nil)
	}
}

func listRuns(store *db.DB, n int, stdout io.Writer) error {
	runs, err := store.ListRuns(n)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

// run is main without the process exit, returning the exit status.
func run(ctx context.Context, args []string, fsys fsutil.FileSystem, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	if opts.ShowVersion {
		fmt.Fprintf(stdout, "boids-transform %s\n", version.String())
		return 0
	}

	setupLogging(opts, stderr)

	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var store *db.DB
	if path := cfg.GetDBPath(); path != "" {
		store, err = db.NewDB(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: open run catalog %s: %v\n", path, err)
			return 1
		}
		defer store.Close()
	}

	if opts.ListRuns > 0 {
		if store == nil {
			fmt.Fprintln(stderr, "Error: -list-runs requires -db")
			return 1
		}
		if err := listRuns(store, opts.ListRuns, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if len(opts.Inputs) == 0 {
		fmt.Fprintln(stderr, "Error: at least one input file is required")
		return 2
	}

	var recorder pipeline.RunRecorder
	if store != nil {
		recorder = store
	}
	conv, err := pipeline.NewConverter(fsys, cfg, recorder)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	results, err := conv.ConvertAll(ctx, opts.Inputs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, res := range results {
		line := fmt.Sprintf("Exported %s -> %s (%d samples", res.Source, res.Output, res.Grid.Stats.Samples)
		if res.Grid.Stats.Dropped > 0 {
			line += ", " + strconv.Itoa(res.Grid.Stats.Dropped) + " dropped"
		}
		if res.RunID != "" {
			line += ", " + res.RunID
		}
		fmt.Fprintln(stdout, line+")")
		for _, r := range res.Reports {
			fmt.Fprintf(stdout, "  wrote %s\n", r)
		}
	}
	monitoring.Logf("converted %d file(s)", len(results))
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], fsutil.OSFileSystem{}, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
