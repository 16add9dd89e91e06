// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the search proxy and the generation engine over
// HTTP using gin.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/slopped-in/internal/engine"
	"github.com/pdiddy/slopped-in/internal/postcache"
	"github.com/pdiddy/slopped-in/internal/search"
	"github.com/pdiddy/slopped-in/pkg/types"
)

// Searcher runs one paper search.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]types.PaperRecord, error)
}

// Engine is the generation orchestrator as seen by the API.
type Engine interface {
	Snapshot() types.EngineStatus
	Models() []types.ModelInfo
	SelectModel(modelID string) error
	InitializeEngine(ctx context.Context, modelID string) error
	Retry(ctx context.Context) error
	GenerateForPaper(ctx context.Context, req engine.GenerateRequest, onIncrement func(string)) (string, error)
	DeleteModelCache(ctx context.Context) bool
}

// Server holds the API's collaborators.
type Server struct {
	search Searcher
	engine Engine
	posts  postcache.Store
	logger *zap.Logger

	// bg scopes background model loads; they outlive the request that
	// started them.
	bg    context.Context
	loads sync.WaitGroup
}

// New builds a Server. posts may be nil, in which case /api/posts always
// answers 404. Background loads run under bg.
func New(bg context.Context, s Searcher, e Engine, posts postcache.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{search: s, engine: e, posts: posts, logger: logger, bg: bg}
}

// Wait blocks until background model loads have returned.
func (s *Server) Wait() {
	s.loads.Wait()
}

// Router returns the gin engine serving every route.
func (s *Server) Router(cfg types.ServerConfig) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.logger))
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/search", s.handleSearch)
	api.GET("/models", s.handleModels)
	api.POST("/generate", s.handleGenerate)
	api.GET("/posts", s.handlePost)

	eng := api.Group("/engine")
	eng.GET("", s.handleStatus)
	eng.POST("/select", s.handleSelect)
	eng.POST("/init", s.handleInit)
	eng.POST("/retry", s.handleRetry)
	eng.DELETE("/cache", s.handleClearCache)

	return r, nil
}

// HTTPServer wraps the router in an http.Server. No write timeout is set
// because generations stream for as long as the model runs.
func (s *Server) HTTPServer(cfg types.ServerConfig) (*http.Server, error) {
	r, err := s.Router(cfg)
	if err != nil {
		return nil, err
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}, nil
}

// accessLog writes one structured line per request.
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
