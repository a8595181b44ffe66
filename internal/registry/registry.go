// Package registry holds process-wide, versioned records of models and
// pipeline descriptions. Entries outlive any single service handle: a config
// may reference a registered name instead of an inline path or description.
package registry

import (
	"sync"

	"tensord/pkg/status"
)

// ModelEntry records one registered model version.
type ModelEntry struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Path    string `json:"path"`
	Public  bool   `json:"public"`
}

// PipelineEntry records one named pipeline description. Descriptions are
// opaque to the registry; config resolution parses them.
type PipelineEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Store is the process-wide registry. Mutations take the write lock;
// lookups during config resolution run concurrently under the read lock.
type Store struct {
	mu        sync.RWMutex
	models    map[string][]ModelEntry // ascending by version
	nextVer   map[string]int
	pipelines map[string]PipelineEntry
}

func NewStore() *Store {
	return &Store{
		models:    make(map[string][]ModelEntry),
		nextVer:   make(map[string]int),
		pipelines: make(map[string]PipelineEntry),
	}
}

// RegisterModel records a model under name and returns the allocated
// version. Versions are monotonic per name, starting at 1; they are not
// reused after deletion.
func (s *Store) RegisterModel(name, path string, public bool) (int, error) {
	if name == "" {
		return 0, status.Errorf(status.InvalidArgument, "model name is empty")
	}
	if path == "" {
		return 0, status.Errorf(status.InvalidArgument, "model path is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ver := s.nextVer[name] + 1
	s.nextVer[name] = ver
	s.models[name] = append(s.models[name], ModelEntry{Name: name, Version: ver, Path: path, Public: public})
	return ver, nil
}

// LookupModel returns the entry for (name, version). Version 0 means the
// latest registered version.
func (s *Store) LookupModel(name string, version int) (ModelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.models[name]
	if len(entries) == 0 {
		return ModelEntry{}, status.Errorf(status.ModelNotFound, "no model registered under %q", name)
	}
	if version == 0 {
		return entries[len(entries)-1], nil
	}
	for _, e := range entries {
		if e.Version == version {
			return e, nil
		}
	}
	return ModelEntry{}, status.Errorf(status.ModelNotFound, "model %q has no version %d", name, version)
}

// DeleteModel removes (name, version). Version 0 removes every version
// under the name. The per-name version counter survives so re-registering
// continues the sequence.
func (s *Store) DeleteModel(name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.models[name]
	if len(entries) == 0 {
		return status.Errorf(status.ModelNotFound, "no model registered under %q", name)
	}
	if version == 0 {
		delete(s.models, name)
		return nil
	}
	for i, e := range entries {
		if e.Version == version {
			s.models[name] = append(entries[:i:i], entries[i+1:]...)
			if len(s.models[name]) == 0 {
				delete(s.models, name)
			}
			return nil
		}
	}
	return status.Errorf(status.ModelNotFound, "model %q has no version %d", name, version)
}

// Models lists every version registered under name, ascending.
func (s *Store) Models(name string) []ModelEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelEntry, len(s.models[name]))
	copy(out, s.models[name])
	return out
}

// SetPipeline stores (or replaces) a named pipeline description.
func (s *Store) SetPipeline(name, description string) error {
	if name == "" {
		return status.Errorf(status.InvalidArgument, "pipeline name is empty")
	}
	if description == "" {
		return status.Errorf(status.InvalidArgument, "pipeline description is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[name] = PipelineEntry{Name: name, Description: description}
	return nil
}

// Pipeline returns the description registered under name.
func (s *Store) Pipeline(name string) (PipelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.pipelines[name]
	if !ok {
		return PipelineEntry{}, status.Errorf(status.ModelNotFound, "no pipeline registered under %q", name)
	}
	return e, nil
}

// DeletePipeline removes the description registered under name.
func (s *Store) DeletePipeline(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[name]; !ok {
		return status.Errorf(status.ModelNotFound, "no pipeline registered under %q", name)
	}
	delete(s.pipelines, name)
	return nil
}
