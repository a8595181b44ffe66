package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tensord/internal/engine"
	"tensord/internal/offload"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// svc is the private state behind one handle: exactly one topology, one set
// of input queues, one dispatcher and one information store.
type svc struct {
	handle Handle
	log    zerolog.Logger
	topo   *types.Topology
	info   *infoStore
	eng    engine.Engine

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sess   engine.Session
	recv   *offload.Receiver

	queues map[string]*portQueue
	wake   chan struct{}

	cb   atomic.Pointer[types.EventCallback]
	disp *dispatcher
}

func newService(h Handle, topo *types.Topology, info *infoStore, eng engine.Engine, log zerolog.Logger) *svc {
	s := &svc{
		handle: h,
		log:    log,
		topo:   topo,
		info:   info,
		eng:    eng,
		state:  StateCreated,
		queues: make(map[string]*portQueue, len(topo.Inputs)),
		wake:   make(chan struct{}, 1),
		disp:   newDispatcher(),
	}
	for _, p := range topo.Inputs {
		s.queues[p.Name] = &portQueue{handle: string(h), port: p.Name}
	}
	return s
}

func (s *svc) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// start launches the execution and dispatch contexts. Starting a running
// handle is a no-op; starting after a stop (including a fatal-failure stop)
// opens a fresh engine session and resumes draining. A destroyed handle is
// rejected so a Start racing a concurrent Destroy can never revive it.
func (s *svc) start() error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateDestroyed:
		s.mu.Unlock()
		return status.Errorf(status.InvalidHandle, "handle %q is destroyed", s.handle)
	}
	// Reap goroutines left over from a previous run (a fatal engine failure
	// leaves the dispatcher alive so completed results still deliver).
	leftover := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if leftover != nil {
		leftover()
		s.wg.Wait()
		s.closeSession()
	}

	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateDestroyed:
		// A concurrent destroy won the race while the lock was released.
		s.mu.Unlock()
		return status.Errorf(status.InvalidHandle, "handle %q is destroyed", s.handle)
	}
	ctx, cancel := context.WithCancel(context.Background())

	switch s.topo.Kind {
	case types.KindOffload:
		if err := s.startOffload(ctx); err != nil {
			cancel()
			s.mu.Unlock()
			return err
		}
	default:
		if s.eng == nil {
			cancel()
			s.mu.Unlock()
			return status.Errorf(status.EngineFailure, "no execution engine configured for %s topology", s.topo.Kind)
		}
		sess, err := s.eng.Open(ctx, s.topo)
		if err != nil {
			cancel()
			s.mu.Unlock()
			return status.Wrap(status.EngineFailure, "open engine session", err)
		}
		s.sess = sess
		s.wg.Add(2)
		go s.runWorker(ctx)
		go s.disp.run(ctx, s)
	}

	s.cancel = cancel
	s.state = StateRunning
	s.mu.Unlock()
	s.log.Info().Str("kind", string(s.topo.Kind)).Msg("service started")
	return nil
}

// startOffload wires the offload role under s.mu.
func (s *svc) startOffload(ctx context.Context) error {
	spec := s.topo.Offload
	s.wg.Add(1)
	go s.disp.run(ctx, s)
	switch spec.Role {
	case types.RoleReceiver:
		recv := offload.NewReceiver(spec, s.log, s.emit)
		if err := recv.Start(ctx); err != nil {
			// the caller cancels ctx on error, which reaps the dispatcher
			return err
		}
		s.recv = recv
	case types.RoleSender:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = offload.Send(ctx, spec, s.log, s.emit)
		}()
	}
	return nil
}

// stop transitions to Stopped and tears down the execution context. Queued
// batches are kept; a later start drains them.
func (s *svc) stop() {
	s.mu.Lock()
	if s.state == StateCreated || s.state == StateRunning {
		s.state = StateStopped
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
		s.closeSession()
	}
	s.log.Info().Msg("service stopped")
}

// destroy cancels outstanding work and releases the topology. Pending
// queued-but-undispatched entries are discarded without invoking the
// callback.
func (s *svc) destroy() {
	s.mu.Lock()
	s.state = StateDestroyed
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.closeSession()
	s.cb.Store(nil)
	for _, q := range s.queues {
		q.clear()
		queueDepth.DeleteLabelValues(q.handle, q.port)
	}
}

// fatalStop records a fatal engine failure: the handle leaves Running and
// rejects further submissions, while the dispatcher stays alive so results
// completed before the failure still reach the callback.
func (s *svc) fatalStop(err error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateStopped
	}
	s.mu.Unlock()
	s.log.Error().Err(err).Msg("fatal engine failure, service stopped")
}

func (s *svc) closeSession() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	recv := s.recv
	s.recv = nil
	s.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
	if recv != nil {
		_ = recv.Close()
	}
}

func (s *svc) setCallback(cb types.EventCallback) {
	if cb == nil {
		s.cb.Store(nil)
		return
	}
	s.cb.Store(&cb)
}

// emit hands one event to the dispatcher with an immutable payload snapshot.
func (s *svc) emit(ev types.Event) {
	if ev.Tensors != nil {
		ev.Tensors = ev.Tensors.Clone()
	}
	s.disp.push(ev)
}

func (s *svc) portInfo(name string, input bool) (types.PortInfo, error) {
	if s.topo.Kind == types.KindOffload {
		return types.PortInfo{}, status.Errorf(status.InvalidPort, "offload topology has no tensor ports")
	}
	// The unnamed default port exists only on single-model topologies;
	// pipelines always need an explicit node name.
	if name == "" && s.topo.Kind != types.KindSingle {
		return types.PortInfo{}, status.Errorf(status.InvalidPort, "port name required for %s topology", s.topo.Kind)
	}
	ports := s.topo.Inputs
	role := "input"
	if !input {
		ports = s.topo.Outputs
		role = "output"
	}
	if name == "" && len(ports) == 1 {
		return ports[0], nil
	}
	for _, p := range ports {
		if p.Name == name {
			return p, nil
		}
	}
	return types.PortInfo{}, status.Errorf(status.InvalidPort, "no %s port %q", role, name)
}

func (s *svc) snapshot() Snapshot {
	depths := make(map[string]int, len(s.queues))
	for name, q := range s.queues {
		depths[name] = q.depth()
	}
	return Snapshot{
		Handle:      string(s.handle),
		State:       s.currentState(),
		Kind:        s.topo.Kind,
		Inputs:      s.topo.Inputs,
		Outputs:     s.topo.Outputs,
		QueueDepths: depths,
	}
}
