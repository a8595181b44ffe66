package types

// TopologyKind selects the variant of a resolved topology. The kind is fixed
// at create time and never re-dispatched afterwards.
type TopologyKind string

const (
	KindSingle   TopologyKind = "single"
	KindPipeline TopologyKind = "pipeline"
	KindOffload  TopologyKind = "offload"
)

// PortInfo is a named tensor-shape contract: the tensors one submission (or
// one result) on this port carries, in declaration order.
type PortInfo struct {
	Name    string       `json:"name"`
	Tensors []TensorInfo `json:"tensors"`
}

// Node is one pipeline element. Roles are "source", "filter" and "sink";
// sources and sinks double as the pipeline's request/result ports.
type Node struct {
	Name   string            `json:"name" yaml:"name" toml:"name"`
	Role   string            `json:"role" yaml:"role" toml:"role"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	// Tensors describes the port contract for source and sink nodes.
	Tensors []TensorInfo `json:"tensors,omitempty" yaml:"tensors,omitempty" toml:"tensors,omitempty"`
}

const (
	RoleSource = "source"
	RoleFilter = "filter"
	RoleSink   = "sink"
)

// OffloadRole distinguishes the two ends of an artifact transfer.
type OffloadRole string

const (
	RoleSender   OffloadRole = "sender"
	RoleReceiver OffloadRole = "receiver"
)

// OffloadSpec carries the resolved offload parameters of a sender or
// receiver topology.
type OffloadSpec struct {
	Role OffloadRole
	// Service is the discovery name the receiver publishes and the sender
	// looks up.
	Service string
	// DiscoveryDir is the directory both sides share for discovery records.
	DiscoveryDir string
	// ArtifactPath/ArtifactName apply to the sender: the local file to
	// transfer and the name it is stored under remotely.
	ArtifactPath string
	ArtifactName string
	// StorageDir applies to the receiver: where received artifacts land.
	StorageDir string
	// Addr is the receiver's listen address ("" means an ephemeral port).
	Addr string
	// TimeoutMS bounds the sender's discovery wait.
	TimeoutMS int
}

// Topology is the resolved shape of inference work bound to one handle: a
// tagged variant plus the input/output port contracts derived from it.
type Topology struct {
	Kind TopologyKind

	// ModelPath is set for KindSingle.
	ModelPath string
	// Nodes is set for KindPipeline.
	Nodes []Node
	// Offload is set for KindOffload.
	Offload *OffloadSpec

	Inputs  []PortInfo
	Outputs []PortInfo
}

// InputPort looks up an input port by name. An empty name resolves only
// when the topology has exactly one input port.
func (t *Topology) InputPort(name string) (PortInfo, bool) {
	return findPort(t.Inputs, name)
}

// OutputPort looks up an output port by name, with the same default rule.
func (t *Topology) OutputPort(name string) (PortInfo, bool) {
	return findPort(t.Outputs, name)
}

func findPort(ports []PortInfo, name string) (PortInfo, bool) {
	if name == "" {
		if len(ports) == 1 {
			return ports[0], true
		}
		return PortInfo{}, false
	}
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortInfo{}, false
}
