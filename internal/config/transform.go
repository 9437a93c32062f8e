package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

// DefaultConfigPath is the path to the canonical transform defaults file.
const DefaultConfigPath = "config/transform.defaults.json"

// Default values returned by the Get* accessors when a field is unset.
const (
	DefaultGridSize  = l3grid.DefaultGridSize
	DefaultMapping   = "inverse_distance"
	DefaultOutputDir = "o"
	DefaultWorkers   = 4
)

// maxConfigFileSize bounds LoadTransformConfig reads.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// TransformConfig holds the settings for converting experiment logs to
// meshes. Every field is optional; unset fields take the defaults from the
// Get* accessors, so partial files are safe.
type TransformConfig struct {
	// Projection
	GridSize           *int      `json:"grid_size,omitempty"`
	Bounds             []float64 `json:"bounds,omitempty"` // [minX, minY, maxX, maxY]
	MaxTime            *float64  `json:"max_time,omitempty"`
	Mapping            *string   `json:"mapping,omitempty"`
	PartitionOfUnity   *bool     `json:"partition_of_unity,omitempty"`
	TimeNormalizedFlow *bool     `json:"time_normalized_flow,omitempty"`

	// Outputs
	OutputDir    *string `json:"output_dir,omitempty"`
	WritePNG     *bool   `json:"write_png,omitempty"`
	WriteHTML    *bool   `json:"write_html,omitempty"`
	WriteSummary *bool   `json:"write_summary,omitempty"`

	// Run catalog; empty disables recording.
	DBPath *string `json:"db_path,omitempty"`

	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTransformConfig returns a TransformConfig with all fields unset.
func EmptyTransformConfig() *TransformConfig {
	return &TransformConfig{}
}

// DefaultTransformConfig returns a TransformConfig with every field set to
// its default. MaxTime and Bounds stay unset: no limit, computed bounds.
func DefaultTransformConfig() *TransformConfig {
	return &TransformConfig{
		GridSize:           ptrInt(DefaultGridSize),
		Mapping:            ptrString(DefaultMapping),
		PartitionOfUnity:   ptrBool(false),
		TimeNormalizedFlow: ptrBool(false),
		OutputDir:          ptrString(DefaultOutputDir),
		WritePNG:           ptrBool(false),
		WriteHTML:          ptrBool(false),
		WriteSummary:       ptrBool(false),
		DBPath:             ptrString(""),
		Workers:            ptrInt(DefaultWorkers),
	}
}

// LoadTransformConfig loads a TransformConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTransformConfig(path string) (*TransformConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTransformConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics if the file
// cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *TransformConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/boids/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTransformConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TransformConfig) Validate() error {
	if c.GridSize != nil && *c.GridSize < 2 {
		return fmt.Errorf("grid_size must be at least 2, got %d", *c.GridSize)
	}

	if c.Bounds != nil {
		if _, err := l2experiment.BoundsFromSlice(c.Bounds); err != nil {
			return fmt.Errorf("bounds: %w", err)
		}
	}

	if c.MaxTime != nil && (math.IsNaN(*c.MaxTime) || math.IsInf(*c.MaxTime, -1)) {
		return fmt.Errorf("max_time must be a number or +Inf, got %v", *c.MaxTime)
	}

	if c.Mapping != nil {
		m, err := l3grid.ParseMapping(*c.Mapping)
		if err != nil {
			return fmt.Errorf("mapping: %w", err)
		}
		if _, ok := m.(l3grid.Bilinear); ok {
			return fmt.Errorf("mapping %q is reserved and not implemented", *c.Mapping)
		}
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	if c.OutputDir != nil && *c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}

	return nil
}

// Merge overlays every set field of other onto c. Command-line flags use it
// to override values loaded from a file.
func (c *TransformConfig) Merge(other *TransformConfig) {
	if other == nil {
		return
	}
	if other.GridSize != nil {
		c.GridSize = other.GridSize
	}
	if other.Bounds != nil {
		c.Bounds = other.Bounds
	}
	if other.MaxTime != nil {
		c.MaxTime = other.MaxTime
	}
	if other.Mapping != nil {
		c.Mapping = other.Mapping
	}
	if other.PartitionOfUnity != nil {
		c.PartitionOfUnity = other.PartitionOfUnity
	}
	if other.TimeNormalizedFlow != nil {
		c.TimeNormalizedFlow = other.TimeNormalizedFlow
	}
	if other.OutputDir != nil {
		c.OutputDir = other.OutputDir
	}
	if other.WritePNG != nil {
		c.WritePNG = other.WritePNG
	}
	if other.WriteHTML != nil {
		c.WriteHTML = other.WriteHTML
	}
	if other.WriteSummary != nil {
		c.WriteSummary = other.WriteSummary
	}
	if other.DBPath != nil {
		c.DBPath = other.DBPath
	}
	if other.Workers != nil {
		c.Workers = other.Workers
	}
}

// GetGridSize returns the grid_size value or the default.
func (c *TransformConfig) GetGridSize() int {
	if c.GridSize == nil {
		return DefaultGridSize
	}
	return *c.GridSize
}

// GetBounds returns the configured bounds, or false when they should be
// computed from the data.
func (c *TransformConfig) GetBounds() (l2experiment.Bounds, bool) {
	if c.Bounds == nil {
		return l2experiment.Bounds{}, false
	}
	b, err := l2experiment.BoundsFromSlice(c.Bounds)
	if err != nil {
		return l2experiment.Bounds{}, false
	}
	return b, true
}

// GetMaxTime returns max_time, or +Inf when unset.
func (c *TransformConfig) GetMaxTime() float64 {
	if c.MaxTime == nil {
		return math.Inf(1)
	}
	return *c.MaxTime
}

// GetMapping returns the mapping name or the default.
func (c *TransformConfig) GetMapping() string {
	if c.Mapping == nil || *c.Mapping == "" {
		return DefaultMapping
	}
	return *c.Mapping
}

// GetPartitionOfUnity returns the partition_of_unity value or the default.
func (c *TransformConfig) GetPartitionOfUnity() bool {
	if c.PartitionOfUnity == nil {
		return false
	}
	return *c.PartitionOfUnity
}

// GetTimeNormalizedFlow returns the time_normalized_flow value or the default.
func (c *TransformConfig) GetTimeNormalizedFlow() bool {
	if c.TimeNormalizedFlow == nil {
		return false
	}
	return *c.TimeNormalizedFlow
}

// GetOutputDir returns the output_dir value or the default.
func (c *TransformConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return DefaultOutputDir
	}
	return *c.OutputDir
}

// GetWritePNG returns the write_png value or the default.
func (c *TransformConfig) GetWritePNG() bool {
	if c.WritePNG == nil {
		return false
	}
	return *c.WritePNG
}

// GetWriteHTML returns the write_html value or the default.
func (c *TransformConfig) GetWriteHTML() bool {
	if c.WriteHTML == nil {
		return false
	}
	return *c.WriteHTML
}

// GetWriteSummary returns the write_summary value or the default.
func (c *TransformConfig) GetWriteSummary() bool {
	if c.WriteSummary == nil {
		return false
	}
	return *c.WriteSummary
}

// GetDBPath returns the db_path value; empty means no run catalog.
func (c *TransformConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetWorkers returns the workers value or the default.
func (c *TransformConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers < 1 {
		return DefaultWorkers
	}
	return *c.Workers
}

// ProjectionConfig translates the projection fields into an l3grid.Config.
// An infinite max_time leaves the projection unlimited.
func (c *TransformConfig) ProjectionConfig() (l3grid.Config, error) {
	mapping, err := l3grid.ParseMapping(c.GetMapping())
	if err != nil {
		return l3grid.Config{}, err
	}
	cfg := l3grid.Config{
		Size:               c.GetGridSize(),
		Mapping:            mapping,
		PartitionOfUnity:   c.GetPartitionOfUnity(),
		TimeNormalizedFlow: c.GetTimeNormalizedFlow(),
	}
	if t := c.GetMaxTime(); !math.IsInf(t, 1) {
		cfg = cfg.WithMaxTime(t)
	}
	return cfg, nil
}
