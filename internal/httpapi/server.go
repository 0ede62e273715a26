// Package httpapi exposes the invocation engine over HTTP.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/metrics"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

type server struct {
	engine  *engine.Engine
	metrics *metrics.Collector
	modes   *engine.ModeSwitch
	maxBody int64
}

// Option configures the router.
type Option func(*server)

// WithMetrics instruments every route and serves GET /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *server) {
		s.metrics = c
	}
}

// WithModeSwitch enables PUT /mode. It must be the engine's mode source.
func WithModeSwitch(m *engine.ModeSwitch) Option {
	return func(s *server) {
		s.modes = m
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewRouter returns the north-bound HTTP surface of eng.
//
//	POST   /listeners            register (body: {"params":{"event":...},"isNotSupportedApi":bool})
//	GET    /listeners            list registered listeners
//	GET    /listeners/{id}       latest notification of one listener
//	POST   /events/response      latest notification by message (body: {"params":{"event":id}})
//	DELETE /listeners?event=...  clear one event
//	DELETE /listeners/all        clear everything
//	GET    /resolve/{event}      surface and module of an identifier
//	PUT    /mode                 switch dispatch mode (WithModeSwitch)
//	GET    /metrics              Prometheus exposition (WithMetrics)
//	GET    /healthz
func NewRouter(eng *engine.Engine, opts ...Option) http.Handler {
	s := &server{engine: eng, maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Post("/listeners", s.register)
	r.Get("/listeners", s.list)
	r.Delete("/listeners", s.clear)
	r.Delete("/listeners/all", s.clearAll)
	r.Get("/listeners/{id}", s.fetch)
	r.Post("/events/response", s.eventResponse)
	r.Get("/resolve/{event}", s.resolve)
	if s.modes != nil {
		r.Put("/mode", s.setMode)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.NorthBoundEventHandling(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"listeners": s.engine.Listeners()})
}

func (s *server) fetch(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid listener id")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Fetch(id))
}

func (s *server) eventResponse(w http.ResponseWriter, r *http.Request) {
	var msg map[string]any
	if !s.decode(w, r, &msg) {
		return
	}
	res, err := s.engine.EventResponse(msg)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) clear(w http.ResponseWriter, r *http.Request) {
	event := r.URL.Query().Get("event")
	ok, err := s.engine.ClearEventListeners(r.Context(), event)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": ok})
}

func (s *server) clearAll(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.ClearAllListeners(r.Context())
	body := map[string]any{"status": status}
	if err != nil {
		slog.Warn("clear all listeners incomplete", "error", err)
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) resolve(w http.ResponseWriter, r *http.Request) {
	event, err := url.PathUnescape(chi.URLParam(r, "event"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid event identifier")
		return
	}
	sdkType, module := s.engine.SdkTypeAndModule(event)
	writeJSON(w, http.StatusOK, map[string]string{"sdkType": sdkType, "module": module})
}

func (s *server) setMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	m, err := dispatch.ParseMode(body.Mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.modes.Set(m)
	slog.Info("dispatch mode changed", "mode", m)
	writeJSON(w, http.StatusOK, map[string]any{"mode": m})
}

// decode reads a JSON body into v, answering 415/400 itself on failure.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
