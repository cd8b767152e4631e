// Package server exposes the graph pipeline over HTTP.
//
// The server is stateless: every request carries its own enumeration text
// and the response is derived entirely from it. The only shared state is an
// optional cache for graph responses and rendered artifacts, keyed by
// content hash, so replicas behind a load balancer can share a Redis
// backend.
package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hwblueprint/pcigraph/pkg/cache"
	"github.com/hwblueprint/pcigraph/pkg/config"
)

// Server routes pipeline requests.
type Server struct {
	router   chi.Router
	logger   *log.Logger
	cache    cache.Cache
	cacheTTL time.Duration
	maxBody  int64
}

// New assembles the router. A nil cache disables caching.
func New(cfg config.Config, logger *log.Logger, c cache.Cache) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Server.Timeout()
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:   logger,
		cache:    c,
		cacheTTL: ttl,
		maxBody:  cfg.Server.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/graph", s.handleGraph)
		r.Post("/render", s.handleRender)
	})
	s.router = r
	return s, nil
}

// Handler returns the http handler for the assembled routes.
func (s *Server) Handler() http.Handler { return s.router }

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID tags every request with a UUID, echoed in the X-Request-ID
// response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
