// Package server provides the HTTP API for Kotoba.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/gemini"
	"github.com/hyperjump/kotoba/internal/rag"
	"github.com/hyperjump/kotoba/pkg/utils"
	"go.uber.org/zap"
)

// Info describes the running configuration for GET /api/status.
type Info struct {
	StoreKind        string
	EmbeddingBackend string
	Dimensions       int
	ChunkSize        int
	ChunkOverlap     int
	// DiskUsage reports bytes used by a durable store; nil for in-memory stores.
	DiskUsage func() (int64, error)
	// GeminiUsage reports request counters when a Gemini backend is configured.
	GeminiUsage func() gemini.Usage
}

// Server is the HTTP server for the Kotoba API.
type Server struct {
	svc    *rag.Service
	config *config.ServerConfig
	info   Info
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc *rag.Service, cfg *config.ServerConfig, info Info, logger *zap.Logger) *Server {
	return &Server{
		svc:    svc,
		config: cfg,
		info:   info,
		logger: utils.OrNop(logger),
	}
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/api/process-video", s.handleProcessVideo)
	r.Post("/api/index", s.handleIndex)
	r.With(middleware.Timeout(s.chatTimeout())).Post("/api/chat", s.handleChat)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Delete("/api/sessions/{id}", s.handleDeleteSession)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) chatTimeout() time.Duration {
	if s.config != nil && s.config.ChatTimeout > 0 {
		return s.config.ChatTimeout
	}
	return 60 * time.Second
}

// requestID tags every request and response with an X-Request-Id, keeping one sent by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
