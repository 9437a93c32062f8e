// Package pipeline is the thin shell around the boids layers: it reads
// experiment logs through fsutil, runs parse (L1), aggregate (L2),
// project (L3) and serialize (L4), writes the mesh and any enabled reports,
// and records each conversion in the run catalog.
//
// ConvertAll fans out over independent experiments with a bounded errgroup;
// a single experiment is processed sequentially.
package pipeline
