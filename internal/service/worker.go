package service

import (
	"context"

	"tensord/internal/engine"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// submit is the admission path: resolve the port, validate the batch
// against its contract, and enqueue or reject. It never blocks and never
// partially mutates the queue.
func (s *svc) submit(port string, batch types.Batch) error {
	st := s.currentState()
	if st == StateStopped {
		submissionsTotal.WithLabelValues("stopped").Inc()
		return status.Errorf(status.ServiceStopped, "service no longer accepts work")
	}
	if len(batch) == 0 {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return status.Errorf(status.InvalidArgument, "empty tensor batch")
	}
	if s.topo.Kind == types.KindOffload {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return status.Errorf(status.InvalidPort, "offload topology has no input ports")
	}
	p, ok := s.topo.InputPort(port)
	if !ok {
		submissionsTotal.WithLabelValues("invalid").Inc()
		if _, isOutput := s.topo.OutputPort(port); isOutput && port != "" {
			return status.Errorf(status.InvalidPort, "%q is an output port", port)
		}
		return status.Errorf(status.InvalidPort, "no input port %q", port)
	}
	if err := checkBatch(batch, p); err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	q := s.queues[p.Name]
	if err := q.push(batch.Clone(), s.info.maxInput()); err != nil {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	submissionsTotal.WithLabelValues("accepted").Inc()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// checkBatch verifies the submitted tensors against the port contract.
func checkBatch(batch types.Batch, p types.PortInfo) error {
	if len(batch) != len(p.Tensors) {
		return status.Errorf(status.InvalidArgument,
			"port %q expects %d tensors, got %d", p.Name, len(p.Tensors), len(batch))
	}
	for i, t := range batch {
		want := p.Tensors[i]
		if !t.Info.Equal(want) {
			return status.Errorf(status.InvalidArgument,
				"port %q tensor %d: got %s%v, want %s%v", p.Name, i, t.Info.Type, t.Info.Dims, want.Type, want.Dims)
		}
		if len(t.Data) != want.ByteSize() {
			return status.Errorf(status.InvalidArgument,
				"port %q tensor %d: payload is %d bytes, want %d", p.Name, i, len(t.Data), want.ByteSize())
		}
	}
	return nil
}

// runWorker drains the input queues into the engine session: one batch per
// input port per invocation, FIFO per port. A non-fatal engine failure is
// attached to the dispatched event and draining continues; a fatal one
// stops the handle.
func (s *svc) runWorker(ctx context.Context) {
	defer s.wg.Done()
	defer s.closeSession()
	for {
		for {
			inputs := s.gather()
			if inputs == nil {
				break
			}
			if !s.runOnce(ctx, inputs) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// gather pops one batch from every input port, or nothing if any port is
// still empty. The worker is the sole consumer, so the two passes cannot
// race with another pop.
func (s *svc) gather() map[string]types.Batch {
	for _, q := range s.queues {
		if q.depth() == 0 {
			return nil
		}
	}
	inputs := make(map[string]types.Batch, len(s.queues))
	for name, q := range s.queues {
		b, ok := q.pop()
		if !ok {
			return nil
		}
		inputs[name] = b
	}
	return inputs
}

// runOnce invokes the engine with one gathered input set. Returns false
// when the worker must exit (cancellation or fatal failure).
func (s *svc) runOnce(ctx context.Context, inputs map[string]types.Batch) bool {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	outputs, err := sess.Invoke(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		engineFailuresTotal.Inc()
		if engine.IsFatal(err) {
			// The failed batch produces no event; the handle stops.
			s.fatalStop(err)
			return false
		}
		s.log.Warn().Err(err).Msg("inference failed")
		for _, p := range s.topo.Outputs {
			s.emit(types.Event{Kind: types.EventNewData, Port: p.Name, Node: s.nodeFor(p.Name), Err: err})
		}
		return true
	}
	for _, p := range s.topo.Outputs {
		b, ok := outputs[p.Name]
		if !ok {
			s.emit(types.Event{
				Kind: types.EventNewData,
				Port: p.Name,
				Node: s.nodeFor(p.Name),
				Err:  status.Errorf(status.InvalidArgument, "engine produced no output for port %q", p.Name),
			})
			continue
		}
		s.emit(types.Event{Kind: types.EventNewData, Port: p.Name, Node: s.nodeFor(p.Name), Tensors: b})
	}
	return true
}

// nodeFor names the pipeline node backing an output port, if any.
func (s *svc) nodeFor(port string) string {
	if s.topo.Kind != types.KindPipeline {
		return ""
	}
	return port
}
