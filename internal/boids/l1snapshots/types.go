package l1snapshots

import "gonum.org/v1/gonum/spatial/r2"

// Position is one agent's location within a Snapshot.
// AgentIndex is the agent's identity: index k in snapshot i and index k in
// snapshot i+1 are taken to be the same agent.
type Position struct {
	AgentIndex int
	X, Y       float64
}

// Vec returns the position as a 2D vector.
func (p Position) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// Snapshot is the state of every recorded agent at one moment.
// Snapshots are created once by the parser and never mutated.
type Snapshot struct {
	Timestamp float64
	Positions []Position
}

// NewSnapshot builds a Snapshot from raw coordinate pairs, assigning
// AgentIndex from slice order.
func NewSnapshot(timestamp float64, coords [][2]float64) Snapshot {
	positions := make([]Position, len(coords))
	for i, c := range coords {
		positions[i] = Position{AgentIndex: i, X: c[0], Y: c[1]}
	}
	return Snapshot{Timestamp: timestamp, Positions: positions}
}

// Len returns the number of agents present in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Positions)
}

// Position returns the position recorded for agent, if present.
func (s Snapshot) Position(agent int) (Position, bool) {
	if agent < 0 || agent >= len(s.Positions) {
		return Position{}, false
	}
	p := s.Positions[agent]
	if p.AgentIndex != agent {
		// Caller-built snapshots may be out of order; fall back to a scan.
		for _, q := range s.Positions {
			if q.AgentIndex == agent {
				return q, true
			}
		}
		return Position{}, false
	}
	return p, true
}

// Ordered reports whether every position's AgentIndex equals its slice index.
func (s Snapshot) Ordered() bool {
	for i, p := range s.Positions {
		if p.AgentIndex != i {
			return false
		}
	}
	return true
}
