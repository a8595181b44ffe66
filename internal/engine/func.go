package engine

import (
	"context"
	"fmt"
	"sync"

	"tensord/pkg/types"
)

// InvokeFunc transforms one set of input batches into output batches.
type InvokeFunc func(inputs map[string]types.Batch) (map[string]types.Batch, error)

// Func is a function-backed engine. It keeps default builds free of any
// runtime dependency: tests and the demo daemon supply the computation,
// production deployments plug a real runtime behind the same interface.
type Func struct {
	// Invoke runs one inference. Nil means echo inputs to the first output
	// port unchanged.
	Invoke InvokeFunc
	// Signatures maps model paths to declared port contracts, served to
	// config resolution via the SignatureProvider interface. Optional.
	Signatures map[string]ModelSignature
}

// ModelSignature is the declared contract of one model file.
type ModelSignature struct {
	Inputs  []types.PortInfo
	Outputs []types.PortInfo
}

var _ Engine = (*Func)(nil)
var _ SignatureProvider = (*Func)(nil)

func (f *Func) Open(ctx context.Context, topo *types.Topology) (Session, error) {
	if topo.Kind != types.KindSingle && topo.Kind != types.KindPipeline {
		return nil, fmt.Errorf("func engine cannot execute %s topologies", topo.Kind)
	}
	return &funcSession{engine: f, topo: topo}, nil
}

func (f *Func) Signature(modelPath string) ([]types.PortInfo, []types.PortInfo, error) {
	sig, ok := f.Signatures[modelPath]
	if !ok {
		return nil, nil, fmt.Errorf("no signature for model %s", modelPath)
	}
	return sig.Inputs, sig.Outputs, nil
}

type funcSession struct {
	engine *Func
	topo   *types.Topology

	mu     sync.Mutex
	closed bool
}

func (s *funcSession) Invoke(ctx context.Context, inputs map[string]types.Batch) (map[string]types.Batch, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session closed")
	}
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.engine.Invoke != nil {
		return s.engine.Invoke(inputs)
	}
	// Echo: forward the sole input batch to every output port.
	out := make(map[string]types.Batch, len(s.topo.Outputs))
	for _, p := range s.topo.Outputs {
		for _, in := range inputs {
			out[p.Name] = in.Clone()
			break
		}
	}
	return out, nil
}

func (s *funcSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
