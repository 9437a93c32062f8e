// Package l3grid owns Layer 3 (Grid) of the boids data model.
//
// Responsibilities: projecting an experiment's irregular (position, motion,
// time-weight) samples onto a regular square grid. Each vertex accumulates a
// scalar traffic density and a weighted running mean of motion vectors.
// Key types: Grid, Config, Mapping, Stats.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3grid
