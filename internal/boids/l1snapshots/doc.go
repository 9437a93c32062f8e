// Package l1snapshots owns Layer 1 (Snapshots) of the boids data model.
//
// Responsibilities: the on-disk line grammar and its parser.
// Key types: Snapshot, Position, ParseError.
//
// Dependency rule: L1 depends on nothing above it. Aggregation over a
// snapshot sequence lives in l2experiment.
package l1snapshots
