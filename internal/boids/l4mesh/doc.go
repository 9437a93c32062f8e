// Package l4mesh owns Layer 4 (Mesh) of the boids data model.
//
// Responsibilities: rendering a projected grid as an ASCII PLY document
// with per-vertex flow (vx, vy, vz) and traffic (s), and quad faces.
//
// Dependency rule: L4 may depend on L1-L3. It performs no file I/O; callers
// supply the io.Writer.
package l4mesh
