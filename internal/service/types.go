package service

import "tensord/pkg/types"

// State represents the lifecycle state of one handle.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateDestroyed State = "destroyed"
)

// Snapshot is a read-only projection of one handle's state.
type Snapshot struct {
	Handle      string             `json:"handle"`
	State       State              `json:"state"`
	Kind        types.TopologyKind `json:"kind"`
	Inputs      []types.PortInfo   `json:"inputs,omitempty"`
	Outputs     []types.PortInfo   `json:"outputs,omitempty"`
	QueueDepths map[string]int     `json:"queue_depths,omitempty"`
}
