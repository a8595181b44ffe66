// Package config loads declarative service configurations and resolves them
// into validated topologies. Loading is format-mechanical; all semantic
// validation lives in Resolve so every rejection carries a distinct status
// code diagnosable by the caller.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tensord/pkg/status"
)

// File is the raw shape of a service config. Exactly one of Single,
// Pipeline or Offload must be present.
type File struct {
	Single   *SingleConfig   `json:"single,omitempty" yaml:"single,omitempty" toml:"single,omitempty"`
	Pipeline *PipelineConfig `json:"pipeline,omitempty" yaml:"pipeline,omitempty" toml:"pipeline,omitempty"`
	Offload  *OffloadConfig  `json:"offload,omitempty" yaml:"offload,omitempty" toml:"offload,omitempty"`

	// Properties seed the handle's information store (e.g. max_input).
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty" toml:"properties,omitempty"`
}

// TensorDecl declares one tensor slot of a port.
type TensorDecl struct {
	Type string `json:"type" yaml:"type" toml:"type"`
	Dims []int  `json:"dims" yaml:"dims" toml:"dims"`
}

// PortDecl declares a named port and its tensor contract.
type PortDecl struct {
	Name    string       `json:"name" yaml:"name" toml:"name"`
	Tensors []TensorDecl `json:"tensors" yaml:"tensors" toml:"tensors"`
}

// SingleConfig declares a single-model topology. Model and Registered are
// mutually exclusive: an inline file path, or the name (and optional
// version) of a registered model.
type SingleConfig struct {
	Model      string     `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
	Registered string     `json:"registered,omitempty" yaml:"registered,omitempty" toml:"registered,omitempty"`
	Version    int        `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Inputs     []PortDecl `json:"inputs,omitempty" yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs    []PortDecl `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty"`
}

// NodeDecl declares one pipeline node.
type NodeDecl struct {
	Name    string            `json:"name" yaml:"name" toml:"name"`
	Role    string            `json:"role" yaml:"role" toml:"role"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Tensors []TensorDecl      `json:"tensors,omitempty" yaml:"tensors,omitempty" toml:"tensors,omitempty"`
}

// PipelineConfig declares a multi-node topology, inline or by reference to
// a registered pipeline description.
type PipelineConfig struct {
	Registered string     `json:"registered,omitempty" yaml:"registered,omitempty" toml:"registered,omitempty"`
	Nodes      []NodeDecl `json:"nodes,omitempty" yaml:"nodes,omitempty" toml:"nodes,omitempty"`
}

// OffloadConfig declares an artifact-transfer topology.
type OffloadConfig struct {
	Role         string `json:"role" yaml:"role" toml:"role"`
	Service      string `json:"service" yaml:"service" toml:"service"`
	DiscoveryDir string `json:"discovery_dir" yaml:"discovery_dir" toml:"discovery_dir"`
	Artifact     string `json:"artifact,omitempty" yaml:"artifact,omitempty" toml:"artifact,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	StorageDir   string `json:"storage_dir,omitempty" yaml:"storage_dir,omitempty" toml:"storage_dir,omitempty"`
	Addr         string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`
	TimeoutMS    int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" toml:"timeout_ms,omitempty"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (*File, error) {
	if path == "" {
		return nil, status.Errorf(status.InvalidConfig, "empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, status.Wrap(status.InvalidConfig, "read config", err)
	}
	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, status.Wrap(status.InvalidConfig, "parse yaml", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, status.Wrap(status.InvalidConfig, "parse json", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return nil, status.Wrap(status.InvalidConfig, "parse toml", err)
		}
	default:
		return nil, status.Errorf(status.InvalidConfig, "unsupported config extension: %s", ext)
	}
	return &f, nil
}
