package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/tallyhq/ledgergate/config"
	"github.com/tallyhq/ledgergate/health"
	"github.com/tallyhq/ledgergate/metric"
)

// Server hosts the pipeline over HTTP: the /graphql endpoint, the
// playground, /health and /metrics.
type Server struct {
	config    config.ServerConfig
	executor  *Executor
	assembler *ContextAssembler
	metrics   *metric.MetricsRegistry
	health    *health.Registry
	logger    *slog.Logger

	httpServer *http.Server
	mux        *http.ServeMux

	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates the HTTP host for the pipeline.
func NewServer(
	cfg config.ServerConfig, executor *Executor, assembler *ContextAssembler,
	metrics *metric.MetricsRegistry, logger *slog.Logger,
) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if executor == nil || assembler == nil {
		return nil, fmt.Errorf("executor and assembler are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:    cfg,
		executor:  executor,
		assembler: assembler,
		metrics:   metrics,
		logger:    logger.With("component", "server"),
		mux:       http.NewServeMux(),
		stopChan:  make(chan struct{}),
	}, nil
}

// SetHealthRegistry attaches component health checks to /health. Must be
// called before Setup.
func (s *Server) SetHealthRegistry(registry *health.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = registry
}

// Setup configures routes and the underlying http.Server.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc("/graphql", s.handleGraphQL)
	s.mux.HandleFunc("/health", s.handleHealth)

	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	if s.config.EnablePlayground {
		s.mux.Handle("/", playground.Handler("ledgergate", "/graphql"))
		s.logger.Info("Playground enabled", "path", "/")
	}

	var handler http.Handler = s.mux
	if len(s.config.AllowedOrigins) > 0 {
		handler = s.corsMiddleware(handler)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Server configured", "address", addr)
	return nil
}

// Start runs the server until the context is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Server starting", "address", server.Addr)
		if ready != nil {
			close(ready)
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(s.config.ShutdownTimeout)

	case <-s.stopChan:
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed", "error", err)
		return err
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// handleGraphQL is the single pipeline entry point. Context assembly
// failures are transport-level and carry their HTTP status; everything past
// assembly answers 200 with errors inside the GraphQL envelope.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// The request ID is minted here so every error shape leaving this
	// handler carries it, including the ones before a RequestContext exists.
	requestID := uuid.NewString()

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope(&APIError{
			Code:       CodeBadUserInput,
			StatusCode: http.StatusBadRequest,
			RequestID:  requestID,
			Message:    "malformed request body",
			Timestamp:  time.Now().UTC(),
		}))
		return
	}

	rc, err := s.assembler.Assemble(r.Context(), r, requestID)
	if err != nil {
		apiErr := s.executor.normalizer.Normalize(err, requestID)
		writeJSON(w, apiErr.StatusCode, errorEnvelope(apiErr))
		return
	}

	resp := s.executor.Execute(r.Context(), rc, req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	registry := s.health
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	if registry == nil {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		return
	}

	snapshot := registry.Snapshot(r.Context())
	if !snapshot.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(snapshot)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, candidate := range s.config.AllowedOrigins {
			if candidate == "*" || candidate == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+WorkspaceHeader)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorEnvelope(apiErr *APIError) any {
	return map[string]any{
		"errors": gqlerror.List{apiErr.GQLError()},
	}
}
