// Package offload moves trained artifacts between two service instances:
// a sender that owns the artifact and a receiver that stores it. Discovery
// goes through a shared directory of endpoint records; the transfer itself
// is one streamed HTTP request. Session state is message-passed — neither
// side shares mutable state with the other, and stopping one side only
// tears down its own session.
package offload

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tensord/internal/common/fsutil"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

const (
	headerArtifact = "X-Artifact-Name"
	headerSession  = "X-Offload-Session"
)

// Receipt is the JSON body a receiver returns for a stored artifact.
type Receipt struct {
	Artifact string `json:"artifact"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Session  string `json:"session"`
}

// Receiver listens for artifact transfers and stores them under the
// configured storage directory. Completed (and failed) transfers are
// surfaced as Reply events through the emit callback.
type Receiver struct {
	spec    *types.OffloadSpec
	log     zerolog.Logger
	emit    func(types.Event)
	session string

	srv        *http.Server
	ln         net.Listener
	recordFile string
	storage    string
	closeOnce  sync.Once
	closeErr   error
}

// NewReceiver builds a receiver for the given offload spec. emit must be
// non-nil; it runs on the receiver's request goroutine.
func NewReceiver(spec *types.OffloadSpec, log zerolog.Logger, emit func(types.Event)) *Receiver {
	return &Receiver{
		spec:    spec,
		log:     log,
		emit:    emit,
		session: uuid.NewString(),
	}
}

// Session returns the receiver's session id, published in its discovery
// record.
func (r *Receiver) Session() string { return r.session }

// Addr returns the bound listen address. Valid after Start.
func (r *Receiver) Addr() string {
	if r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

// Start binds the listener, publishes the discovery record and begins
// serving. It returns once the receiver is reachable; serving continues in
// the background until Close or context cancellation.
func (r *Receiver) Start(ctx context.Context) error {
	storage, err := fsutil.EnsureDir(r.spec.StorageDir)
	if err != nil {
		return status.Wrap(status.TransferFailed, "prepare storage dir", err)
	}
	r.storage = storage

	addr := r.spec.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return status.Wrap(status.TransferFailed, "listen", err)
	}
	r.ln = ln

	rec := Record{
		Name:    r.spec.Service,
		Addr:    ln.Addr().String(),
		Session: r.session,
		PID:     os.Getpid(),
		Started: time.Now().Unix(),
	}
	recordFile, err := publish(r.spec.DiscoveryDir, rec)
	if err != nil {
		ln.Close()
		return status.Wrap(status.TransferFailed, "publish discovery record", err)
	}
	r.recordFile = recordFile

	r.srv = &http.Server{Handler: r.routes(), BaseContext: func(net.Listener) context.Context { return ctx }}
	go func() {
		if err := r.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.log.Error().Err(err).Msg("offload receiver serve")
		}
	}()
	context.AfterFunc(ctx, func() { _ = r.Close() })
	r.log.Info().Str("addr", rec.Addr).Str("service", r.spec.Service).Msg("offload receiver listening")
	return nil
}

func (r *Receiver) routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Post("/v1/artifacts", r.handlePut)
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (r *Receiver) handlePut(w http.ResponseWriter, req *http.Request) {
	name := req.Header.Get(headerArtifact)
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		httpError(w, http.StatusBadRequest, "missing or invalid artifact name")
		return
	}
	n, dest, err := r.store(name, req)
	if err != nil {
		r.log.Warn().Err(err).Str("artifact", name).Msg("artifact transfer failed")
		r.emit(types.Event{
			Kind:    types.EventReply,
			Session: r.session,
			Meta:    map[string]string{"artifact": name},
			Err:     err,
		})
		transfersTotal.WithLabelValues("receiver", "failed").Inc()
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.log.Info().Str("artifact", name).Str("path", dest).Int64("bytes", n).Msg("artifact stored")
	r.emit(types.Event{
		Kind:    types.EventReply,
		Session: r.session,
		Meta: map[string]string{
			"artifact": name,
			"path":     dest,
			"bytes":    fmt.Sprintf("%d", n),
		},
	})
	transfersTotal.WithLabelValues("receiver", "completed").Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Receipt{Artifact: name, Path: dest, Bytes: n, Session: r.session})
}

// store streams the request body to a temp file, verifies completeness
// against the declared length, and renames into place. A truncated stream
// never leaves a partial artifact behind.
func (r *Receiver) store(name string, req *http.Request) (int64, string, error) {
	tmp, err := os.CreateTemp(r.storage, "."+name+".*")
	if err != nil {
		return 0, "", status.Wrap(status.TransferFailed, "create temp file", err)
	}
	defer os.Remove(tmp.Name())
	n, err := copyBody(tmp, req)
	cerr := tmp.Close()
	if err != nil {
		return 0, "", err
	}
	if cerr != nil {
		return 0, "", status.Wrap(status.TransferFailed, "close temp file", cerr)
	}
	if req.ContentLength >= 0 && n != req.ContentLength {
		return 0, "", status.Errorf(status.TransferFailed,
			"truncated artifact %q: got %d of %d bytes", name, n, req.ContentLength)
	}
	dest := filepath.Join(r.storage, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, "", status.Wrap(status.TransferFailed, "store artifact", err)
	}
	return n, dest, nil
}

func copyBody(dst *os.File, req *http.Request) (int64, error) {
	n, err := dst.ReadFrom(req.Body)
	if err != nil {
		return n, status.Wrap(status.TransferFailed, "stream artifact body", err)
	}
	return n, nil
}

// Close shuts the server down, closes the listener and removes the
// discovery record. Safe to call more than once.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		if r.recordFile != "" {
			_ = os.Remove(r.recordFile)
		}
		if r.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			r.closeErr = r.srv.Shutdown(ctx)
		}
	})
	return r.closeErr
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "code": code})
}
