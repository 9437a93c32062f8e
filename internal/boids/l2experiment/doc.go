// Package l2experiment owns Layer 2 (Experiment) of the boids data model.
//
// Responsibilities: holding an immutable snapshot sequence and the derived
// statistics over it (agent count, spatial bounds, inter-snapshot time
// deltas). Each statistic is computed at most once, on first use.
// Key types: Experiment, Bounds, DeltaTimes, Summary.
//
// Dependency rule: L2 may depend on L1, never on L3+.
package l2experiment
