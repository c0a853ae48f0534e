// Package gateway implements the engine's HTTP surface: the Gateway
// Dispatcher (C5) over a project's dynamic route table, the Direct
// Invoker (C6), invocation listing, the owner-scoped aggregate endpoint,
// health, and Prometheus metrics.
//
// The outer surface is registered once at startup and is therefore
// static, so it uses github.com/go-chi/chi/v5 the way
// ThirdAILabs-Thirdai-Platform-v2 does; a project's own route table is
// data loaded per request and is handled by internal/route instead.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clowdy-platform/engine/internal/engine"
	"github.com/clowdy-platform/engine/internal/httperr"
	"github.com/clowdy-platform/engine/internal/identity"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/prometrics"
	"github.com/clowdy-platform/engine/internal/route"
	"github.com/clowdy-platform/engine/internal/store"
)

// Server is the engine's HTTP gateway.
type Server struct {
	meta     *metadata.Store
	records  *store.Store
	eng      *engine.Engine
	routes   *route.Cache
	identity *identity.Verifier // nil disables the owner-scoped /stats endpoint
	log      *logger.Logger

	maxBodyBytes int64
	httpServer   *http.Server
}

// Config controls the HTTP listener.
type Config struct {
	HTTPPort     int
	MaxBodyBytes int64
}

// New builds a Server and registers every route. identityVerifier may be
// nil, in which case /stats responds 503 rather than panicking.
func New(meta *metadata.Store, records *store.Store, eng *engine.Engine, identityVerifier *identity.Verifier, cfg Config, log *logger.Logger) *Server {
	s := &Server{
		meta:         meta,
		records:      records,
		eng:          eng,
		routes:       route.NewCache(),
		identity:     identityVerifier,
		log:          log,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", prometrics.Handler())

	r.Post("/invoke/{functionID}", s.handleDirectInvoke)
	r.Get("/functions/{functionID}/invocations", s.handleListInvocations)

	r.HandleFunc("/gateway/{slug}", s.handleGateway)
	r.HandleFunc("/gateway/{slug}/*", s.handleGateway)

	r.Group(func(protected chi.Router) {
		if s.identity != nil {
			protected.Use(s.identity.Verifier(), s.identity.Authenticator())
		}
		protected.Get("/stats", s.handleStats)
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}
	return s
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("starting gateway on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down, forcing a close if it
// doesn't drain in time.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("gateway shutdown timed out, forcing close: %v", err)
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// writeEngineError maps the engine's terminal classification onto an HTTP
// status, distinct from a request-shape error caught before execution.
func writeEngineError(w http.ResponseWriter, result *engine.Result) {
	switch result.Status {
	case store.StatusTimeout:
		httperr.GatewayTimeout(w, "function execution timed out")
	default:
		httperr.Internal(w, decodeErrorMessage(result.OutputJSON))
	}
}

func decodeErrorMessage(outputJSON string) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(outputJSON), &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return outputJSON
}
