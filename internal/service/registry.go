package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tensord/internal/config"
	"tensord/internal/engine"
	modelreg "tensord/internal/registry"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// Handle is the caller-visible token identifying one configured service
// instance. Tokens are unforgeable (random UUIDs) and validated against the
// issuing registry on every operation, so a stale or tampered token fails
// with status.InvalidHandle instead of touching freed state.
type Handle string

// Options configures a handle registry.
type Options struct {
	// Engine executes single-model and pipeline topologies. May be nil for
	// registries that only host offload handles.
	Engine engine.Engine
	// Models is the process-wide model/pipeline registry consulted for
	// `registered:` config references. Nil allocates a fresh store.
	Models *modelreg.Store
	Logger zerolog.Logger
}

// Registry issues and validates service handles. All public operations
// resolve the token first; everything after that runs against the private
// per-handle state.
type Registry struct {
	log    zerolog.Logger
	eng    engine.Engine
	models *modelreg.Store

	mu      sync.RWMutex
	handles map[Handle]*svc
}

func NewRegistry(opts Options) *Registry {
	models := opts.Models
	if models == nil {
		models = modelreg.NewStore()
	}
	return &Registry{
		log:     opts.Logger,
		eng:     opts.Engine,
		models:  models,
		handles: make(map[Handle]*svc),
	}
}

// Models exposes the model/pipeline registry backing this handle registry.
func (r *Registry) Models() *modelreg.Store { return r.models }

// Create loads and resolves the config at path and issues a handle bound to
// the resulting topology. A rejected config leaves no handle behind.
func (r *Registry) Create(path string) (Handle, error) {
	f, err := config.Load(path)
	if err != nil {
		return "", err
	}
	return r.CreateFromConfig(f)
}

// CreateFromConfig resolves an already-loaded config. Useful for callers
// that build configs programmatically.
func (r *Registry) CreateFromConfig(f *config.File) (Handle, error) {
	opts := config.Options{Registry: r.models}
	if sp, ok := r.eng.(config.SignatureProvider); ok {
		opts.Signatures = sp
	}
	topo, props, err := config.Resolve(f, opts)
	if err != nil {
		return "", err
	}
	info := newInfoStore()
	for k, v := range props {
		if err := info.set(k, v); err != nil {
			return "", status.Wrap(status.InvalidConfig, "invalid property "+k, err)
		}
	}

	h := Handle(uuid.NewString())
	s := newService(h, topo, info, r.eng, r.log.With().Str("handle", string(h)).Logger())

	r.mu.Lock()
	r.handles[h] = s
	r.mu.Unlock()
	handlesLive.Inc()
	r.log.Info().Str("handle", string(h)).Str("kind", string(topo.Kind)).Msg("handle created")
	return h, nil
}

// resolve validates the token. The identity check never dereferences
// handle-owned state: an unknown or already-destroyed token stops here.
func (r *Registry) resolve(h Handle) (*svc, error) {
	if h == "" {
		return nil, status.Errorf(status.InvalidHandle, "empty handle")
	}
	r.mu.RLock()
	s, ok := r.handles[h]
	r.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(status.InvalidHandle, "unknown or destroyed handle %q", h)
	}
	return s, nil
}

// Destroy invalidates the handle, cancels its execution context and drains
// outstanding work. Destroying a running handle is accepted; destroying an
// already-destroyed one fails with status.InvalidHandle.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	s, ok := r.handles[h]
	if ok {
		delete(r.handles, h)
	}
	r.mu.Unlock()
	if !ok {
		return status.Errorf(status.InvalidHandle, "unknown or destroyed handle %q", h)
	}
	s.destroy()
	handlesLive.Dec()
	r.log.Info().Str("handle", string(h)).Msg("handle destroyed")
	return nil
}

// Start transitions the handle to Running and launches its execution and
// dispatch contexts.
func (r *Registry) Start(h Handle) error {
	s, err := r.resolve(h)
	if err != nil {
		return err
	}
	return s.start()
}

// Stop halts draining and rejects subsequent submissions with
// status.ServiceStopped. Queued batches survive a stop and drain again
// after a new Start.
func (r *Registry) Stop(h Handle) error {
	s, err := r.resolve(h)
	if err != nil {
		return err
	}
	s.stop()
	return nil
}

// Request submits one tensor batch to the named input port (empty name
// addresses the sole port of a single-model topology). Admission is
// non-blocking: a full queue is reported as status.Backpressure and the
// queue is left untouched.
func (r *Registry) Request(h Handle, port string, batch types.Batch) error {
	s, err := r.resolve(h)
	if err != nil {
		return err
	}
	return s.submit(port, batch)
}

// SetEventCallback registers cb as the handle's single callback slot. A nil
// cb clears the slot; after the call returns no new invocation of the old
// callback starts, though one already in flight may still be completing.
func (r *Registry) SetEventCallback(h Handle, cb types.EventCallback) error {
	s, err := r.resolve(h)
	if err != nil {
		return err
	}
	s.setCallback(cb)
	return nil
}

// SetInformation stores a key/value pair in the handle's information store.
func (r *Registry) SetInformation(h Handle, key, value string) error {
	s, err := r.resolve(h)
	if err != nil {
		return err
	}
	return s.info.set(key, value)
}

// GetInformation looks up a key. An unset key is status.KeyNotFound, never
// an empty string.
func (r *Registry) GetInformation(h Handle, key string) (string, error) {
	s, err := r.resolve(h)
	if err != nil {
		return "", err
	}
	return s.info.get(key)
}

// InputInformation returns the contract of the named input port. The empty
// name resolves only for single-model topologies.
func (r *Registry) InputInformation(h Handle, port string) (types.PortInfo, error) {
	s, err := r.resolve(h)
	if err != nil {
		return types.PortInfo{}, err
	}
	return s.portInfo(port, true)
}

// OutputInformation returns the contract of the named output port.
func (r *Registry) OutputInformation(h Handle, port string) (types.PortInfo, error) {
	s, err := r.resolve(h)
	if err != nil {
		return types.PortInfo{}, err
	}
	return s.portInfo(port, false)
}

// State reports the handle's lifecycle state.
func (r *Registry) State(h Handle) (State, error) {
	s, err := r.resolve(h)
	if err != nil {
		return "", err
	}
	return s.currentState(), nil
}

// Snapshot returns a read-only projection of the handle, including queue
// depths per input port.
func (r *Registry) Snapshot(h Handle) (Snapshot, error) {
	s, err := r.resolve(h)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Handles lists the currently live handles.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.handles))
	for h := range r.handles {
		out = append(out, h)
	}
	return out
}

// Close destroys every live handle. Used on daemon shutdown.
func (r *Registry) Close() {
	for _, h := range r.Handles() {
		_ = r.Destroy(h)
	}
}
