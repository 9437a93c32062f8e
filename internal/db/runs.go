package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("db: run not found")

// Run is one recorded conversion.
type Run struct {
	RunID      string `json:"run_id"`
	SourcePath string `json:"source_path"`
	OutputPath string `json:"output_path"`

	GridSize int      `json:"grid_size"`
	Mapping  string   `json:"mapping"`
	MaxTime  *float64 `json:"max_time,omitempty"`
	// Bounds is {minX, minY, maxX, maxY}; nil for an experiment without positions.
	Bounds *[4]float64 `json:"bounds,omitempty"`

	SnapshotCount   int     `json:"snapshot_count"`
	AgentCount      int     `json:"agent_count"`
	SampleCount     int     `json:"sample_count"`
	DroppedCount    int     `json:"dropped_count"`
	Sorted          bool    `json:"sorted"`
	TotalTraffic    float64 `json:"total_traffic"`
	DurationSeconds float64 `json:"duration_seconds"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// RecordRun inserts r. An empty RunID is filled with NewRunID and a zero
// CreatedAt with the current time; the stored values are written back to r.
func (db *DB) RecordRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	var minX, minY, maxX, maxY sql.NullFloat64
	if r.Bounds != nil {
		minX = sql.NullFloat64{Float64: r.Bounds[0], Valid: true}
		minY = sql.NullFloat64{Float64: r.Bounds[1], Valid: true}
		maxX = sql.NullFloat64{Float64: r.Bounds[2], Valid: true}
		maxY = sql.NullFloat64{Float64: r.Bounds[3], Valid: true}
	}
	var maxTime sql.NullFloat64
	if r.MaxTime != nil {
		maxTime = sql.NullFloat64{Float64: *r.MaxTime, Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO conversion_runs (
			run_id, source_path, output_path, grid_size, mapping,
			min_x, min_y, max_x, max_y,
			snapshot_count, agent_count, sample_count, dropped_count,
			sorted, total_traffic, duration_seconds, max_time, created_unix_nano
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SourcePath, r.OutputPath, r.GridSize, r.Mapping,
		minX, minY, maxX, maxY,
		r.SnapshotCount, r.AgentCount, r.SampleCount, r.DroppedCount,
		r.Sorted, r.TotalTraffic, r.DurationSeconds, maxTime, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

const runColumns = `run_id, source_path, output_path, grid_size, mapping,
	min_x, min_y, max_x, max_y,
	snapshot_count, agent_count, sample_count, dropped_count,
	sorted, total_traffic, duration_seconds, max_time, created_unix_nano`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r                      Run
		minX, minY, maxX, maxY sql.NullFloat64
		maxTime                sql.NullFloat64
		created                int64
	)
	err := s.Scan(
		&r.RunID, &r.SourcePath, &r.OutputPath, &r.GridSize, &r.Mapping,
		&minX, &minY, &maxX, &maxY,
		&r.SnapshotCount, &r.AgentCount, &r.SampleCount, &r.DroppedCount,
		&r.Sorted, &r.TotalTraffic, &r.DurationSeconds, &maxTime, &created,
	)
	if err != nil {
		return Run{}, err
	}
	if minX.Valid && minY.Valid && maxX.Valid && maxY.Valid {
		r.Bounds = &[4]float64{minX.Float64, minY.Float64, maxX.Float64, maxY.Float64}
	}
	if maxTime.Valid {
		v := maxTime.Float64
		r.MaxTime = &v
	}
	r.CreatedAt = time.Unix(0, created)
	return r, nil
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(runID string) (Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM conversion_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns recorded runs, newest first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM conversion_runs ORDER BY created_unix_nano DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListRunsForSource returns the runs that converted sourcePath, newest first.
func (db *DB) ListRunsForSource(sourcePath string) ([]Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM conversion_runs WHERE source_path = ? ORDER BY created_unix_nano DESC, run_id DESC`, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", sourcePath, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
