package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/clublogbridge/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout is how long in-flight requests get once the server
	// context is cancelled.
	shutdownTimeout = 5 * time.Second

	// readHeaderTimeout guards against slow-header clients.
	readHeaderTimeout = 10 * time.Second
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Health   store.Health    `json:"health"`
	Readings []store.Reading `json:"readings"`
}

// Server exposes the bridge's local status surface:
//   - GET /api/status: health snapshot and all current readings
//   - GET /api/sse: Server-Sent Events stream of reading updates
//   - GET /healthz: 200 while connected to ClubLog, 503 otherwise
//   - GET /metrics: Prometheus scrape endpoint, when a handler is supplied
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	store      store.Store
	port       int
	metrics    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server]. metrics may be nil, in which case
// /metrics is not routed. The server is not started until [Server.Start].
func NewServer(st store.Store, port int, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   st,
		port:    port,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the router serving all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/sse", s.handleSSE)
	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until ctx is cancelled and then shuts down with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// request contexts derive from ctx so long-lived SSE handlers
		// observe shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Health:   s.store.Health(),
		Readings: s.store.GetAll(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h := s.store.Health()
	status := http.StatusOK
	if !h.Connected {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"connected":    h.Connected,
		"state":        h.State,
		"total_errors": h.TotalErrors,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams reading updates as Server-Sent Events.
//
// The stream opens with one "health" event and one "reading" event per
// stored reading, then a "reading" event per update. Every write carries a
// deadline so a stalled client cannot block the handler from seeing
// shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sw := &sseWriter{w: w, rc: http.NewResponseController(w), logger: s.logger, deadlines: true}

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if err := sw.send("health", s.store.Health()); err != nil {
		return
	}
	for _, reading := range s.store.GetAll() {
		if err := sw.send("reading", reading); err != nil {
			return
		}
	}

	for {
		select {
		case reading, ok := <-ch:
			if !ok {
				return
			}
			if err := sw.send("reading", reading); err != nil {
				return
			}
		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// sseWriter writes named events with a per-write deadline.
type sseWriter struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	logger    *slog.Logger
	deadlines bool
}

func (sw *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		sw.logger.Warn("sse encode failed", "event", event, "error", err)
		return nil
	}
	if sw.deadlines {
		if err := sw.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			sw.logger.Debug("sse write deadlines not supported", "error", err)
			sw.deadlines = false
		}
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return sw.rc.Flush()
}
