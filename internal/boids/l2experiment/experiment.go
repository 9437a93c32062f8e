package l2experiment

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/boids.report/internal/boids/l1snapshots"
)

var (
	// ErrBoundsFrozen is returned by SetBounds once Bounds has been read.
	ErrBoundsFrozen = errors.New("l2experiment: bounds already computed")
	// ErrAgentOrder is returned when a snapshot's AgentIndex values do not
	// match slice order.
	ErrAgentOrder = errors.New("l2experiment: positions out of agent order")
)

// DeltaTimes holds one time step per snapshot. Values[i] is
// Timestamp[i+1]-Timestamp[i]; the last entry is the mean of the others and
// stands in for the final snapshot, which has no successor.
type DeltaTimes struct {
	Values []float64
	// Sorted is false when any real delta is negative.
	Sorted bool
	// FirstUnsorted is the index of the first negative delta, or -1.
	FirstUnsorted int
}

// Len returns the number of deltas.
func (d DeltaTimes) Len() int { return len(d.Values) }

// Summary is a JSON-friendly description of an experiment.
type Summary struct {
	Snapshots        int     `json:"snapshots"`
	Agents           int     `json:"agents"`
	Bounds           *Bounds `json:"bounds,omitempty"`
	BoundsOverridden bool    `json:"bounds_overridden"`
	FirstTimestamp   float64 `json:"first_timestamp"`
	LastTimestamp    float64 `json:"last_timestamp"`
	Duration         float64 `json:"duration"`
	Sorted           bool    `json:"sorted"`
}

// Experiment is an immutable snapshot sequence plus memoized aggregates.
// It is safe for concurrent readers.
type Experiment struct {
	snapshots []l1snapshots.Snapshot

	mu             sync.Mutex
	boundsOverride *Bounds
	boundsRead     bool

	agentCount func() int
	bounds     func() (Bounds, bool)
	deltaTimes func() DeltaTimes
}

// Option configures an Experiment at construction.
type Option func(*Experiment) error

// WithBounds fixes the experiment bounds; automatic computation never runs.
func WithBounds(b Bounds) Option {
	return func(e *Experiment) error {
		if err := b.Validate(); err != nil {
			return err
		}
		e.boundsOverride = &b
		return nil
	}
}

// NewExperiment takes ownership of snapshots, which must be in agent order
// (see l1snapshots.Snapshot.Ordered). Timestamps are not checked here.
func NewExperiment(snapshots []l1snapshots.Snapshot, opts ...Option) (*Experiment, error) {
	for i, s := range snapshots {
		if !s.Ordered() {
			return nil, fmt.Errorf("%w: snapshot %d", ErrAgentOrder, i)
		}
	}

	e := &Experiment{snapshots: snapshots}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.agentCount = sync.OnceValue(func() int {
		return computeAgentCount(e.snapshots)
	})
	e.bounds = sync.OnceValues(func() (Bounds, bool) {
		b, ok := computeBounds(e.snapshots)
		if ok {
			diagf("computed bounds %v over %d snapshots", b, len(e.snapshots))
		}
		return b, ok
	})
	e.deltaTimes = sync.OnceValue(func() DeltaTimes {
		d := computeDeltaTimes(e.snapshots)
		if !d.Sorted {
			opsf("snapshots are not in timestamp order (first negative delta at index %d); continuing with data as given", d.FirstUnsorted)
		}
		return d
	})
	return e, nil
}

// FromLines parses lines with l1snapshots.ParseLines and builds an Experiment.
func FromLines(lines []string, opts ...Option) (*Experiment, error) {
	snaps, err := l1snapshots.ParseLines(lines)
	if err != nil {
		return nil, err
	}
	return NewExperiment(snaps, opts...)
}

// Len returns the number of snapshots.
func (e *Experiment) Len() int { return len(e.snapshots) }

// Snapshot returns snapshot i.
func (e *Experiment) Snapshot(i int) l1snapshots.Snapshot { return e.snapshots[i] }

// Snapshots returns a copy of the snapshot sequence.
func (e *Experiment) Snapshots() []l1snapshots.Snapshot {
	return slices.Clone(e.snapshots)
}

// AgentCount returns the largest position count of any snapshot.
func (e *Experiment) AgentCount() int { return e.agentCount() }

// Bounds returns the caller-supplied bounds if any, otherwise the tightest
// rectangle around every position. ok is false when neither exists.
// After the first call, SetBounds fails with ErrBoundsFrozen.
func (e *Experiment) Bounds() (Bounds, bool) {
	e.mu.Lock()
	e.boundsRead = true
	override := e.boundsOverride
	e.mu.Unlock()

	if override != nil {
		return *override, true
	}
	return e.bounds()
}

// SetBounds overrides the bounds. It must be called before Bounds is first
// read.
func (e *Experiment) SetBounds(b Bounds) error {
	if err := b.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.boundsRead {
		return ErrBoundsFrozen
	}
	e.boundsOverride = &b
	return nil
}

// BoundsOverridden reports whether bounds were supplied by the caller.
func (e *Experiment) BoundsOverridden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boundsOverride != nil
}

// DeltaTimes returns the per-snapshot time steps. The slice is a copy.
func (e *Experiment) DeltaTimes() DeltaTimes {
	d := e.deltaTimes()
	d.Values = slices.Clone(d.Values)
	return d
}

// Summary collects the aggregates into one value. It reads Bounds, so
// SetBounds fails afterwards.
func (e *Experiment) Summary() Summary {
	s := Summary{
		Snapshots:        e.Len(),
		Agents:           e.AgentCount(),
		BoundsOverridden: e.BoundsOverridden(),
		Sorted:           e.deltaTimes().Sorted,
	}
	if b, ok := e.Bounds(); ok {
		s.Bounds = &b
	}
	if n := e.Len(); n > 0 {
		s.FirstTimestamp = e.snapshots[0].Timestamp
		s.LastTimestamp = e.snapshots[n-1].Timestamp
		s.Duration = s.LastTimestamp - s.FirstTimestamp
	}
	return s
}

func computeAgentCount(snapshots []l1snapshots.Snapshot) int {
	n := 0
	for _, s := range snapshots {
		n = max(n, s.Len())
	}
	return n
}

func computeDeltaTimes(snapshots []l1snapshots.Snapshot) DeltaTimes {
	d := DeltaTimes{Sorted: true, FirstUnsorted: -1}
	n := len(snapshots)
	switch n {
	case 0:
		return d
	case 1:
		d.Values = []float64{0}
		return d
	}

	d.Values = make([]float64, n)
	for i := 0; i < n-1; i++ {
		dt := snapshots[i+1].Timestamp - snapshots[i].Timestamp
		if dt < 0 && d.Sorted {
			d.Sorted = false
			d.FirstUnsorted = i
		}
		d.Values[i] = dt
		tracef("delta[%d]=%g", i, dt)
	}
	d.Values[n-1] = stat.Mean(d.Values[:n-1], nil)
	return d
}
