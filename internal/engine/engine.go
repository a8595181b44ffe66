// Package engine abstracts the tensor-execution runtime used by the service
// layer. Concrete runtimes (single-model interpreters, pipeline executors)
// satisfy these interfaces; the service never links a runtime directly.
package engine

import (
	"context"
	"errors"

	"tensord/pkg/types"
)

// Engine opens execution sessions for resolved topologies.
type Engine interface {
	// Open prepares a session for the given topology. Implementations must
	// validate that they can execute the topology's kind and ports.
	Open(ctx context.Context, topo *types.Topology) (Session, error)
}

// Session is one live execution context. Invoke consumes one batch per input
// port and produces one batch per output port. Implementations must return
// when the context is canceled.
type Session interface {
	Invoke(ctx context.Context, inputs map[string]types.Batch) (map[string]types.Batch, error)
	Close() error
}

// SignatureProvider is implemented by engines that can describe a model
// file's declared input/output contract. Config resolution uses it to
// reconcile declared tensor info against the model's actual signature.
type SignatureProvider interface {
	Signature(modelPath string) (inputs, outputs []types.PortInfo, err error)
}

// fatalError marks an engine failure as unrecoverable: the owning handle
// stops draining and rejects further submissions.
type fatalError struct{ err error }

func (e fatalError) Error() string { return "fatal engine failure: " + e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal wraps err so IsFatal reports true.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err carries a fatal engine failure.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}
