// Package api implements the Lifeline HTTP API: hook endpoints for hosts
// that post events instead of running the CLI, read-only views of
// checkpoints and modes, and a websocket stream of hook events.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nugget/lifeline/internal/buildinfo"
	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/mode"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Hooks answers host hook events. [*lifecycle.Hooks] satisfies this
// interface.
type Hooks interface {
	Stop(ctx context.Context, sig hook.StopSignal) hook.StopDecision
	PreCompact(ctx context.Context, ev hook.PreCompactEvent) hook.RecoveryOutput
	HandlePrompt(ctx context.Context, ev hook.PromptEvent) hook.ContextOutput
	HandleSessionStart(ctx context.Context, ev hook.SessionStartEvent) hook.ContextOutput
	Recover(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, string)
}

// CheckpointLister lists checkpoint metadata. [*checkpoint.Store]
// satisfies this interface.
type CheckpointLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]*checkpoint.Checkpoint, error)
}

// ModeLister reports a session's mode activations. [*mode.Store]
// satisfies this interface.
type ModeLister interface {
	States(ctx context.Context, sessionID string) ([]mode.State, error)
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	hooks       Hooks
	checkpoints CheckpointLister
	modes       ModeLister
	bus         *events.Bus
	logger      *slog.Logger
	server      *http.Server

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new API server.
func NewServer(address string, port int, hooks Hooks, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		hooks:   hooks,
		logger:  logger,
		closing: make(chan struct{}),
	}
}

// SetCheckpoints configures the store behind the checkpoint endpoints.
func (s *Server) SetCheckpoints(cl CheckpointLister) {
	s.checkpoints = cl
}

// SetModes configures the store behind the mode endpoint.
func (s *Server) SetModes(ml ModeLister) {
	s.modes = ml
}

// SetEventBus configures the bus streamed by the events endpoint.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// Handler returns the API's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Hook endpoints
	mux.HandleFunc("POST /v1/hooks/stop", s.handleStop)
	mux.HandleFunc("POST /v1/hooks/precompact", s.handlePreCompact)
	mux.HandleFunc("POST /v1/hooks/prompt", s.handlePrompt)
	mux.HandleFunc("POST /v1/hooks/session-start", s.handleSessionStart)

	// Read-only views
	mux.HandleFunc("GET /v1/recovery/{sessionID}", s.handleRecovery)
	mux.HandleFunc("GET /v1/checkpoints", s.handleCheckpointList)
	mux.HandleFunc("GET /v1/modes/{sessionID}", s.handleModes)

	// Live event stream
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns [http.ErrServerClosed]
// after [Server.Shutdown].
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Pre-compaction may wait on a checkpoint already in flight.
		WriteTimeout: 60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and ends open event streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack supports the websocket upgrade on /v1/events.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Lifeline",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// --- Hooks ---

// decodeHook reads a hook payload into v. On failure it answers with a
// bare continue so the host is never blocked, and returns false.
func (s *Server) decodeHook(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := hook.Decode(r.Body, v); err != nil {
		s.logger.Warn("malformed hook payload", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, hook.WithContext("", ""), s.logger)
		return false
	}
	return true
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var sig hook.StopSignal
	if !s.decodeHook(w, r, &sig) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.hooks.Stop(r.Context(), sig), s.logger)
}

func (s *Server) handlePreCompact(w http.ResponseWriter, r *http.Request) {
	var ev hook.PreCompactEvent
	if !s.decodeHook(w, r, &ev) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.hooks.PreCompact(r.Context(), ev), s.logger)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var ev hook.PromptEvent
	if !s.decodeHook(w, r, &ev) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.hooks.HandlePrompt(r.Context(), ev), s.logger)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var ev hook.SessionStartEvent
	if !s.decodeHook(w, r, &ev) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.hooks.HandleSessionStart(r.Context(), ev), s.logger)
}

// --- Views ---

// RecoveryResponse is returned by the recovery endpoint.
type RecoveryResponse struct {
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint"`
	Message    string                 `json:"message"`
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	cp, msg := s.hooks.Recover(r.Context(), sessionID)
	if cp == nil {
		s.errorResponse(w, http.StatusNotFound, "no checkpoint for session "+sessionID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, RecoveryResponse{Checkpoint: cp, Message: msg}, s.logger)
}

func (s *Server) handleCheckpointList(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "checkpoints not configured")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.checkpoints.List(r.Context(), r.URL.Query().Get("session"), limit)
	if err != nil {
		s.logger.Error("list checkpoints failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}
	if list == nil {
		list = []*checkpoint.Checkpoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"checkpoints": list,
		"count":       len(list),
	}, s.logger)
}

// ModeView is a mode activation as returned by the modes endpoint.
type ModeView struct {
	ID          mode.ID   `json:"id"`
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"`
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	if s.modes == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "modes not configured")
		return
	}
	sessionID := r.PathValue("sessionID")
	states, err := s.modes.States(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("list modes failed", "session_id", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list modes")
		return
	}

	views := make([]ModeView, len(states))
	for i, st := range states {
		views[i] = ModeView{ID: st.ID, Name: mode.Name(st.ID), Active: st.Active, ActivatedAt: st.ActivatedAt}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": sessionID,
		"modes":      views,
	}, s.logger)
}
