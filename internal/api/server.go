package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/cache"
)

// maxValueBytes bounds a single PUT body.
const maxValueBytes = 64 << 20

// Server is the operator-facing HTTP surface: cache CRUD, node management,
// stats and Prometheus metrics.
type Server struct {
	cache    *cache.DistributedCache
	logger   *zap.Logger
	registry *prometheus.Registry
	http     *http.Server
}

// NewServer wires the admin router over the cache engine.
func NewServer(port int, c *cache.DistributedCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(cache.NewCollector(c))

	s := &Server{
		cache:    c,
		logger:   logger,
		registry: registry,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/nodes", s.handleListNodes)
		r.Post("/nodes", s.handleAddNode)
		r.Delete("/nodes/{id}", s.handleRemoveNode)
		r.Post("/clear", s.handleClear)

		r.Get("/cache/{key}", s.handleGet)
		r.Put("/cache/{key}", s.handleSet)
		r.Delete("/cache/{key}", s.handleDelete)
	})
	return r
}

// requestID stamps every request with a correlation id.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, req)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		s.logger.Debug("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.GetMetrics())
}

func (s *Server) handleListNodes(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.GetNodeStatus())
}

type addNodeRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, req *http.Request) {
	var in addNodeRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		http.Error(w, "invalid node payload", http.StatusBadRequest)
		return
	}
	node, err := cache.NewNode(in.ID, in.Address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.cache.AddNode(node); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if err := s.cache.RemoveNode(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, req *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(req, "key"))
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	value, found := s.cache.Get(req.Context(), key)
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(value)
}

func (s *Server) handleSet(w http.ResponseWriter, req *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(req, "key"))
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	var ttl time.Duration
	if raw := req.URL.Query().Get("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxValueBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if err := s.cache.Set(req.Context(), key, value, ttl); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, cache.ErrCapacityExceeded) {
			status = http.StatusInsufficientStorage
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, req *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(req, "key"))
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	_ = s.cache.Delete(req.Context(), key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, req *http.Request) {
	removed := s.cache.Clear(req.Context())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Start begins serving; it blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("admin api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serving: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
