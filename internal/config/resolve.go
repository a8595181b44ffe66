package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tensord/internal/registry"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// Registry is the subset of the model/pipeline registry Resolve consults
// for `registered:` references.
type Registry interface {
	LookupModel(name string, version int) (registry.ModelEntry, error)
	Pipeline(name string) (registry.PipelineEntry, error)
}

// SignatureProvider reports the declared input/output contract of a model
// file. Engines that can describe their models implement it.
type SignatureProvider interface {
	Signature(modelPath string) (inputs, outputs []types.PortInfo, err error)
}

// Options carries the collaborators Resolve may consult. Both are optional;
// a nil Registry rejects `registered:` references and a nil
// SignatureProvider skips model-signature reconciliation.
type Options struct {
	Registry   Registry
	Signatures SignatureProvider
}

// Resolve validates a loaded config and produces the topology plus the
// information-store seed values. Resolution is a pure function of the
// config content, the registry, and the model's declared signature; it
// completes before any handle can run.
func Resolve(f *File, opts Options) (*types.Topology, map[string]string, error) {
	if f == nil {
		return nil, nil, status.Errorf(status.InvalidConfig, "empty config")
	}
	sections := 0
	if f.Single != nil {
		sections++
	}
	if f.Pipeline != nil {
		sections++
	}
	if f.Offload != nil {
		sections++
	}
	if sections == 0 {
		return nil, nil, status.Errorf(status.InvalidConfig, "config declares none of single, pipeline, offload")
	}
	if sections > 1 {
		return nil, nil, status.Errorf(status.InvalidConfig, "config declares more than one of single, pipeline, offload")
	}

	props := make(map[string]string, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}

	var (
		topo *types.Topology
		err  error
	)
	switch {
	case f.Single != nil:
		topo, err = resolveSingle(f.Single, opts)
	case f.Pipeline != nil:
		topo, err = resolvePipeline(f.Pipeline, opts)
	default:
		topo, err = resolveOffload(f.Offload)
	}
	if err != nil {
		return nil, nil, err
	}
	return topo, props, nil
}

func resolveSingle(sc *SingleConfig, opts Options) (*types.Topology, error) {
	if sc.Model != "" && sc.Registered != "" {
		return nil, status.Errorf(status.InvalidConfig, "single: model and registered are mutually exclusive")
	}
	path := sc.Model
	if sc.Registered != "" {
		if opts.Registry == nil {
			return nil, status.Errorf(status.InvalidConfig, "single: registered model %q referenced but no registry available", sc.Registered)
		}
		entry, err := opts.Registry.LookupModel(sc.Registered, sc.Version)
		if err != nil {
			return nil, err
		}
		path = entry.Path
	}
	if path == "" {
		return nil, status.Errorf(status.InvalidConfig, "single: no model path")
	}
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		return nil, status.Errorf(status.ModelNotFound, "model file %q does not exist", path)
	}

	inputs, err := resolvePorts(sc.Inputs, "input")
	if err != nil {
		return nil, err
	}
	outputs, err := resolvePorts(sc.Outputs, "output")
	if err != nil {
		return nil, err
	}

	if opts.Signatures != nil {
		sigIn, sigOut, err := opts.Signatures.Signature(path)
		if err == nil {
			if inputs, err = reconcilePorts(inputs, sigIn, "input"); err != nil {
				return nil, err
			}
			if outputs, err = reconcilePorts(outputs, sigOut, "output"); err != nil {
				return nil, err
			}
		}
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, status.Errorf(status.IncompleteTopology, "single: model %q has no declared tensor information", path)
	}
	if err := checkPortNames(inputs, outputs); err != nil {
		return nil, err
	}
	return &types.Topology{
		Kind:      types.KindSingle,
		ModelPath: path,
		Inputs:    inputs,
		Outputs:   outputs,
	}, nil
}

// reconcilePorts merges declared ports with the engine-reported signature.
// Declared info must match the signature exactly; when nothing is declared
// the signature alone is used.
func reconcilePorts(declared, sig []types.PortInfo, role string) ([]types.PortInfo, error) {
	if len(sig) == 0 {
		return declared, nil
	}
	if len(declared) == 0 {
		return sig, nil
	}
	if len(declared) != len(sig) {
		return nil, status.Errorf(status.TensorInfoMismatch,
			"%s ports: config declares %d, model signature has %d", role, len(declared), len(sig))
	}
	for i, d := range declared {
		s := sig[i]
		if len(d.Tensors) != len(s.Tensors) {
			return nil, status.Errorf(status.TensorInfoMismatch,
				"%s port %q: config declares %d tensors, model signature has %d", role, d.Name, len(d.Tensors), len(s.Tensors))
		}
		for j := range d.Tensors {
			if !d.Tensors[j].Equal(s.Tensors[j]) {
				return nil, status.Errorf(status.TensorInfoMismatch,
					"%s port %q tensor %d: declared %v does not match model signature %v", role, d.Name, j, d.Tensors[j], s.Tensors[j])
			}
		}
	}
	// Keep declared names; the signature is authoritative only for shapes.
	return declared, nil
}

func resolvePipeline(pc *PipelineConfig, opts Options) (*types.Topology, error) {
	decls := pc.Nodes
	if pc.Registered != "" {
		if len(decls) > 0 {
			return nil, status.Errorf(status.InvalidConfig, "pipeline: nodes and registered are mutually exclusive")
		}
		if opts.Registry == nil {
			return nil, status.Errorf(status.InvalidConfig, "pipeline: registered pipeline %q referenced but no registry available", pc.Registered)
		}
		entry, err := opts.Registry.Pipeline(pc.Registered)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal([]byte(entry.Description), &decls); err != nil {
			return nil, status.Wrap(status.InvalidConfig, fmt.Sprintf("pipeline: parse registered description %q", pc.Registered), err)
		}
	}
	if len(decls) == 0 {
		return nil, status.Errorf(status.InvalidConfig, "pipeline: no nodes declared")
	}

	seen := make(map[string]bool, len(decls))
	var (
		nodes   []types.Node
		inputs  []types.PortInfo
		outputs []types.PortInfo
	)
	for i, d := range decls {
		if d.Name == "" {
			return nil, status.Errorf(status.MissingNodeName, "pipeline: node %d has no name", i)
		}
		if seen[d.Name] {
			return nil, status.Errorf(status.DuplicateNode, "pipeline: duplicate node name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Role {
		case types.RoleSource, types.RoleFilter, types.RoleSink:
		case "":
			return nil, status.Errorf(status.IncompleteTopology, "pipeline: node %q has no role", d.Name)
		default:
			return nil, status.Errorf(status.InvalidConfig, "pipeline: node %q has unknown role %q", d.Name, d.Role)
		}

		var tensors []types.TensorInfo
		if d.Role == types.RoleSource || d.Role == types.RoleSink {
			if len(d.Tensors) == 0 {
				return nil, status.Errorf(status.IncompleteTopology, "pipeline: %s node %q declares no tensor information", d.Role, d.Name)
			}
			var err error
			tensors, err = resolveTensors(d.Tensors, d.Name)
			if err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, types.Node{Name: d.Name, Role: d.Role, Params: d.Params, Tensors: tensors})
		switch d.Role {
		case types.RoleSource:
			inputs = append(inputs, types.PortInfo{Name: d.Name, Tensors: tensors})
		case types.RoleSink:
			outputs = append(outputs, types.PortInfo{Name: d.Name, Tensors: tensors})
		}
	}
	if len(inputs) == 0 {
		return nil, status.Errorf(status.IncompleteTopology, "pipeline: no source node")
	}
	if len(outputs) == 0 {
		return nil, status.Errorf(status.IncompleteTopology, "pipeline: no sink node")
	}
	return &types.Topology{
		Kind:    types.KindPipeline,
		Nodes:   nodes,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}

const defaultDiscoveryTimeoutMS = 5000

func resolveOffload(oc *OffloadConfig) (*types.Topology, error) {
	var role types.OffloadRole
	switch oc.Role {
	case string(types.RoleSender):
		role = types.RoleSender
	case string(types.RoleReceiver):
		role = types.RoleReceiver
	case "":
		return nil, status.Errorf(status.InvalidConfig, "offload: no role")
	default:
		return nil, status.Errorf(status.InvalidConfig, "offload: unknown role %q", oc.Role)
	}
	if oc.Service == "" {
		return nil, status.Errorf(status.InvalidConfig, "offload: no service name")
	}
	if oc.DiscoveryDir == "" {
		return nil, status.Errorf(status.InvalidConfig, "offload: no discovery_dir")
	}
	spec := &types.OffloadSpec{
		Role:         role,
		Service:      oc.Service,
		DiscoveryDir: oc.DiscoveryDir,
		Addr:         oc.Addr,
		TimeoutMS:    oc.TimeoutMS,
	}
	if spec.TimeoutMS <= 0 {
		spec.TimeoutMS = defaultDiscoveryTimeoutMS
	}
	switch role {
	case types.RoleSender:
		if oc.Artifact == "" {
			return nil, status.Errorf(status.InvalidConfig, "offload: sender requires artifact")
		}
		if fi, err := os.Stat(oc.Artifact); err != nil || fi.IsDir() {
			return nil, status.Errorf(status.ModelNotFound, "artifact %q does not exist", oc.Artifact)
		}
		spec.ArtifactPath = oc.Artifact
		spec.ArtifactName = oc.Name
		if spec.ArtifactName == "" {
			spec.ArtifactName = baseName(oc.Artifact)
		}
	case types.RoleReceiver:
		if oc.StorageDir == "" {
			return nil, status.Errorf(status.InvalidConfig, "offload: receiver requires storage_dir")
		}
		spec.StorageDir = oc.StorageDir
	}
	// Offload topologies expose no tensor ports.
	return &types.Topology{Kind: types.KindOffload, Offload: spec}, nil
}

func resolvePorts(decls []PortDecl, role string) ([]types.PortInfo, error) {
	var out []types.PortInfo
	for i, d := range decls {
		name := d.Name
		if name == "" {
			if len(decls) > 1 {
				return nil, status.Errorf(status.InvalidConfig, "%s port %d has no name", role, i)
			}
			name = role
		}
		if len(d.Tensors) == 0 {
			return nil, status.Errorf(status.IncompleteTopology, "%s port %q declares no tensors", role, name)
		}
		tensors, err := resolveTensors(d.Tensors, name)
		if err != nil {
			return nil, err
		}
		out = append(out, types.PortInfo{Name: name, Tensors: tensors})
	}
	return out, nil
}

func resolveTensors(decls []TensorDecl, port string) ([]types.TensorInfo, error) {
	out := make([]types.TensorInfo, 0, len(decls))
	for _, d := range decls {
		dt, err := types.ParseDataType(d.Type)
		if err != nil {
			return nil, status.Errorf(status.UnsupportedType, "port %q: %v", port, err)
		}
		if len(d.Dims) == 0 {
			return nil, status.Errorf(status.IncompleteTopology, "port %q: tensor has no dimensions", port)
		}
		for _, dim := range d.Dims {
			if dim <= 0 {
				return nil, status.Errorf(status.InvalidConfig, "port %q: non-positive dimension %d", port, dim)
			}
		}
		dims := make([]int, len(d.Dims))
		copy(dims, d.Dims)
		out = append(out, types.TensorInfo{Type: dt, Dims: dims})
	}
	return out, nil
}

// checkPortNames enforces unique port names across the whole topology.
func checkPortNames(inputs, outputs []types.PortInfo) error {
	seen := make(map[string]bool, len(inputs)+len(outputs))
	for _, p := range inputs {
		if seen[p.Name] {
			return status.Errorf(status.InvalidConfig, "duplicate port name %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, p := range outputs {
		if seen[p.Name] {
			return status.Errorf(status.InvalidConfig, "duplicate port name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func baseName(path string) string { return filepath.Base(path) }
