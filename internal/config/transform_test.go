package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultTransformConfig(t *testing.T) {
	cfg := DefaultTransformConfig()

	if cfg.GridSize == nil || *cfg.GridSize != 21 {
		t.Errorf("Expected GridSize 21, got %v", cfg.GridSize)
	}
	if cfg.OutputDir == nil || *cfg.OutputDir != "o" {
		t.Errorf("Expected OutputDir 'o', got %v", cfg.OutputDir)
	}
	if cfg.MaxTime != nil {
		t.Errorf("Expected MaxTime unset, got %v", *cfg.MaxTime)
	}
	if cfg.Bounds != nil {
		t.Errorf("Expected Bounds unset, got %v", cfg.Bounds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTransformConfig()

	assert.Equal(t, 21, cfg.GetGridSize())
	assert.Equal(t, "inverse_distance", cfg.GetMapping())
	assert.True(t, math.IsInf(cfg.GetMaxTime(), 1))
	assert.False(t, cfg.GetPartitionOfUnity())
	assert.False(t, cfg.GetTimeNormalizedFlow())
	assert.Equal(t, "o", cfg.GetOutputDir())
	assert.False(t, cfg.GetWritePNG())
	assert.False(t, cfg.GetWriteHTML())
	assert.False(t, cfg.GetWriteSummary())
	assert.Equal(t, "", cfg.GetDBPath())
	assert.Equal(t, 4, cfg.GetWorkers())

	_, ok := cfg.GetBounds()
	assert.False(t, ok)
}

func TestLoadTransformConfig(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "grid_size": 11,
  "bounds": [0, 0, 10, 5],
  "max_time": 30.5,
  "mapping": "idw",
  "partition_of_unity": true,
  "write_png": true,
  "db_path": "runs.db",
  "workers": 2
}`)

	cfg, err := LoadTransformConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 11, cfg.GetGridSize())
	assert.Equal(t, 30.5, cfg.GetMaxTime())
	assert.Equal(t, "idw", cfg.GetMapping())
	assert.True(t, cfg.GetPartitionOfUnity())
	assert.False(t, cfg.GetTimeNormalizedFlow())
	assert.True(t, cfg.GetWritePNG())
	assert.Equal(t, "runs.db", cfg.GetDBPath())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, "o", cfg.GetOutputDir())

	b, ok := cfg.GetBounds()
	require.True(t, ok)
	assert.Equal(t, l2experiment.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 5}, b)
}

func TestLoadTransformConfigMissing(t *testing.T) {
	_, err := LoadTransformConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTransformConfigRejectsNonJSON(t *testing.T) {
	path := writeConfig(t, "run.yaml", `grid_size: 3`)
	_, err := LoadTransformConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json extension")
}

func TestLoadTransformConfigRejectsLargeFile(t *testing.T) {
	body := `{"output_dir": "` + strings.Repeat("a", maxConfigFileSize) + `"}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadTransformConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadTransformConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"grid_size": "big"}`)
	_, err := LoadTransformConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config JSON")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TransformConfig
		wantErr string
	}{
		{"empty", TransformConfig{}, ""},
		{"grid too small", TransformConfig{GridSize: ptrInt(1)}, "grid_size"},
		{"bounds wrong length", TransformConfig{Bounds: []float64{0, 0, 1}}, "bounds"},
		{"bounds inverted", TransformConfig{Bounds: []float64{5, 0, 1, 1}}, "bounds"},
		{"max time NaN", TransformConfig{MaxTime: ptrFloat64(math.NaN())}, "max_time"},
		{"max time -Inf", TransformConfig{MaxTime: ptrFloat64(math.Inf(-1))}, "max_time"},
		{"unknown mapping", TransformConfig{Mapping: ptrString("nearest")}, "mapping"},
		{"reserved mapping", TransformConfig{Mapping: ptrString("bilinear")}, "reserved"},
		{"no workers", TransformConfig{Workers: ptrInt(0)}, "workers"},
		{"empty output dir", TransformConfig{OutputDir: ptrString("")}, "output_dir"},
		{"valid", TransformConfig{GridSize: ptrInt(2), Bounds: []float64{0, 0, 1, 1}, MaxTime: ptrFloat64(3)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultTransformConfig()
	base.Merge(&TransformConfig{
		GridSize:  ptrInt(7),
		OutputDir: ptrString("meshes"),
		WriteHTML: ptrBool(true),
	})

	assert.Equal(t, 7, base.GetGridSize())
	assert.Equal(t, "meshes", base.GetOutputDir())
	assert.True(t, base.GetWriteHTML())
	assert.Equal(t, 4, base.GetWorkers())
	assert.Equal(t, "inverse_distance", base.GetMapping())

	base.Merge(nil)
	assert.Equal(t, 7, base.GetGridSize())
}

func TestProjectionConfig(t *testing.T) {
	cfg := EmptyTransformConfig()
	pc, err := cfg.ProjectionConfig()
	require.NoError(t, err)
	assert.Equal(t, l3grid.DefaultGridSize, pc.Size)
	assert.Nil(t, pc.MaxTime)
	assert.Equal(t, l3grid.InverseDistance{}, pc.Mapping)

	cfg.MaxTime = ptrFloat64(12)
	cfg.TimeNormalizedFlow = ptrBool(true)
	pc, err = cfg.ProjectionConfig()
	require.NoError(t, err)
	require.NotNil(t, pc.MaxTime)
	assert.Equal(t, 12.0, *pc.MaxTime)
	assert.True(t, pc.TimeNormalizedFlow)

	cfg.Mapping = ptrString("nope")
	_, err = cfg.ProjectionConfig()
	assert.ErrorIs(t, err, l3grid.ErrUnsupportedMapping)
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, *DefaultTransformConfig().GridSize, cfg.GetGridSize())
	assert.Equal(t, DefaultOutputDir, cfg.GetOutputDir())
	assert.Equal(t, DefaultWorkers, cfg.GetWorkers())
	assert.Equal(t, DefaultMapping, cfg.GetMapping())
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTransformConfig("../../config/transform.example.json")
	require.NoError(t, err)
	assert.Equal(t, 41, cfg.GetGridSize())
	assert.True(t, cfg.GetWriteSummary())
	_, ok := cfg.GetBounds()
	assert.True(t, ok)
}
