// Package api serves the contract over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"multicall/internal/contract"
	"multicall/internal/logger"
	"multicall/internal/multicall"
	"multicall/internal/state"
)

const (
	// maxQuerySize is the maximum query message size in bytes.
	maxQuerySize = 8 << 20 // 8 MB

	// maxPodSize is the maximum pod code size in bytes.
	maxPodSize = 4 << 20 // 4 MB

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second
)

// Contract is the entry point the API exposes.
type Contract interface {
	Query(ctx context.Context, msg []byte) ([]byte, error)
	Execute(ctx context.Context, msg []byte) error
}

// Deployer installs pods on this node.
type Deployer interface {
	Deploy(ctx context.Context, code []byte) (state.Address, error)
}

// PodCounter reports how many pods the node serves.
type PodCounter interface {
	Pods() int
}

// Config wires the server to the node.
type Config struct {
	Addr     string                 // Addr is the HTTP listen address
	Contract Contract               // Contract answers /query and /execute
	Deployer Deployer               // Deployer enables POST /pods when set
	Heights  multicall.HeightSource // Heights reports the block height in /status
	Pods     PodCounter             // Pods reports the pod count in /status
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router *mux.Router
}

// New creates a new HTTP API server.
func New(log *slog.Logger, cfg Config) *Server {
	s := &Server{cfg: cfg, log: log}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// newRouter registers the routes.
func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/query", s.handleQuery).Methods("POST")
	r.HandleFunc("/execute", s.handleExecute).Methods("POST")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")

	if s.cfg.Deployer != nil {
		r.HandleFunc("/pods", s.handleDeploy).Methods("POST")
	}

	r.Use(s.logRequests)

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	done := make(chan error, 1)
	go func() {
		s.log.Info("http api started", "addr", ln.Addr().String())
		done <- srv.Serve(ln)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-done; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	s.log.Info("http api stopped")

	return nil
}

// handleQuery handles POST /query requests.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, maxQuerySize)
	if !ok {
		return
	}

	resp, err := s.cfg.Contract.Query(r.Context(), body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, contract.ErrVersionNotFound) {
			status = http.StatusNotFound
		}

		s.log.Debug("query failed", "error", err)
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// handleExecute handles POST /execute requests.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, maxQuerySize)
	if !ok {
		return
	}

	err := s.cfg.Contract.Execute(r.Context(), body)
	switch {
	case errors.Is(err, multicall.ErrExecuteNotSupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleDeploy handles POST /pods requests. The body is the raw WASM code.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, maxPodSize)
	if !ok {
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty pod code")
		return
	}

	addr, err := s.cfg.Deployer.Deploy(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"address": addr.String(),
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version": contract.Version,
	}

	if s.cfg.Heights != nil {
		status["height"] = s.cfg.Heights.Height()
	}

	if s.cfg.Pods != nil {
		status["pods"] = s.cfg.Pods.Pods()
	}

	writeJSON(w, http.StatusOK, status)
}

// logRequests logs every request with its duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, logger.Timed(start))
	})
}

// readBody reads at most limit bytes of the request body. It writes the
// error response itself and reports false on failure.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}

	if int64(len(body)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}

	return body, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
