// Package httpapi exposes a small admin surface over the handle registry:
// health, status, metrics, request submission and buffered event draining.
// It is an operational aid, not part of the service contract — the core API
// is the service.Registry itself.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tensord/internal/service"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Config controls optional middleware on the admin mux.
type Config struct {
	Logger zerolog.Logger
	// CORS enables permissive-origin handling for the listed origins.
	CORSOrigins []string
}

// Server wires the admin routes to one handle registry. Delivered events
// are buffered per handle so they can be drained over HTTP.
type Server struct {
	reg *service.Registry
	log zerolog.Logger

	mu     sync.Mutex
	events map[service.Handle][]eventView
}

// eventView is the JSON projection of one delivered event.
type eventView struct {
	Kind    string            `json:"kind"`
	Port    string            `json:"port,omitempty"`
	Node    string            `json:"node,omitempty"`
	Session string            `json:"session,omitempty"`
	Floats  []float32         `json:"floats,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func NewServer(reg *service.Registry, cfg Config) *Server {
	return &Server{
		reg:    reg,
		log:    cfg.Logger,
		events: make(map[service.Handle][]eventView),
	}
}

// Watch registers a buffering callback on the handle so its events become
// drainable via GET /v1/handles/{handle}/events.
func (s *Server) Watch(h service.Handle) error {
	return s.reg.SetEventCallback(h, func(ev types.Event) {
		view := eventView{
			Kind:    string(ev.Kind),
			Port:    ev.Port,
			Node:    ev.Node,
			Session: ev.Session,
			Meta:    ev.Meta,
		}
		if ev.Err != nil {
			view.Error = ev.Err.Error()
		}
		if len(ev.Tensors) > 0 {
			if f, err := ev.Tensors[0].Float32s(); err == nil {
				view.Floats = f
			}
		}
		s.mu.Lock()
		s.events[h] = append(s.events[h], view)
		s.mu.Unlock()
	})
}

// Mux builds the chi router.
func (s *Server) Mux(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", s.handleStatus)
	r.Route("/v1/handles/{handle}", func(r chi.Router) {
		r.Post("/request", s.handleRequest)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	handles := s.reg.Handles()
	snaps := make([]service.Snapshot, 0, len(handles))
	for _, h := range handles {
		if snap, err := s.reg.Snapshot(h); err == nil {
			snaps = append(snaps, snap)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"handles": snaps})
}

// requestBody is the JSON submission payload: float32 values for one port.
type requestBody struct {
	Port   string    `json:"port,omitempty"`
	Floats []float32 `json:"floats"`
	Dims   []int     `json:"dims,omitempty"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Floats) == 0 {
		writeJSONError(w, http.StatusBadRequest, "floats is required")
		return
	}
	h := service.Handle(chi.URLParam(r, "handle"))
	batch := types.Batch{types.FromFloat32s(body.Floats, body.Dims...)}
	if err := s.reg.Request(h, body.Port, batch); err != nil {
		writeStatusError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	h := service.Handle(chi.URLParam(r, "handle"))
	if _, err := s.reg.State(h); err != nil {
		writeStatusError(w, err)
		return
	}
	s.mu.Lock()
	drained := s.events[h]
	delete(s.events, h)
	s.mu.Unlock()
	if drained == nil {
		drained = []eventView{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": drained})
}

// writeStatusError maps the status taxonomy onto HTTP codes: retryable
// backpressure becomes 429, bad tokens 404, terminal stops 503.
func writeStatusError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch status.CodeOf(err) {
	case status.Backpressure:
		code = http.StatusTooManyRequests
		IncrementBackpressure("queue_full")
	case status.InvalidHandle:
		code = http.StatusNotFound
	case status.InvalidPort, status.InvalidArgument, status.KeyNotFound:
		code = http.StatusBadRequest
	case status.ServiceStopped:
		code = http.StatusServiceUnavailable
	}
	writeJSONError(w, code, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "code": code})
}
