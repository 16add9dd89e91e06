// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/slopped-in/internal/engine"
	"github.com/pdiddy/slopped-in/internal/httputil"
	"github.com/pdiddy/slopped-in/internal/prompt"
	"github.com/pdiddy/slopped-in/internal/ratelimit"
	"github.com/pdiddy/slopped-in/internal/search"
	"github.com/pdiddy/slopped-in/pkg/types"
)

// User-facing error messages for /api/search.
const (
	msgQueryRequired  = "Query parameter 'q' is required"
	msgInvalidYears   = "Query parameter 'years' must be one of: all, month, year"
	msgTooManyRequest = "Too many requests. Please try again later."
	msgUpstreamFailed = "Failed to fetch papers from ArXiv"
)

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSearch(c *gin.Context) {
	req := search.Request{
		ClientKey: httputil.ClientKey(c.ClientIP(), c.Request.Header),
		Query:     c.Query("q"),
		Years:     c.Query("years"),
	}

	papers, err := s.search.Search(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, types.SearchResponse{Papers: papers})
	case errors.Is(err, ratelimit.ErrLimited):
		abort(c, http.StatusTooManyRequests, msgTooManyRequest)
	case errors.Is(err, search.ErrEmptyQuery):
		abort(c, http.StatusBadRequest, msgQueryRequired)
	case errors.Is(err, search.ErrInvalidRecency):
		abort(c, http.StatusBadRequest, msgInvalidYears)
	default:
		c.Error(err)
		abort(c, http.StatusInternalServerError, msgUpstreamFailed)
	}
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":   s.engine.Models(),
		"selected": s.engine.Snapshot().Model,
		"levels":   prompt.Levels,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

type modelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Model) == "" {
		abort(c, http.StatusBadRequest, "Body must be JSON with a \"model\" field")
		return
	}
	if err := s.engine.SelectModel(req.Model); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

// handleInit starts loading a model in the background and answers 202.
// Clients poll /api/engine for progress.
func (s *Server) handleInit(c *gin.Context) {
	var req modelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "Body must be JSON")
			return
		}
	}

	snap := s.engine.Snapshot()
	modelID := req.Model
	if modelID == "" {
		modelID = snap.Model
	}
	if !knownModel(s.engine.Models(), modelID) {
		abort(c, http.StatusBadRequest, "Unknown model: "+modelID)
		return
	}
	switch {
	case snap.State == types.EngineGenerating:
		abort(c, http.StatusConflict, engine.ErrBusy.Error())
		return
	case snap.State == types.EngineReady && snap.Model == modelID:
		c.JSON(http.StatusOK, snap)
		return
	}

	s.background(func(ctx context.Context) error {
		return s.engine.InitializeEngine(ctx, modelID)
	})
	c.JSON(http.StatusAccepted, types.EngineStatus{State: types.EngineLoading, Model: modelID})
}

func (s *Server) handleRetry(c *gin.Context) {
	snap := s.engine.Snapshot()
	if snap.State != types.EngineError {
		abort(c, http.StatusConflict, engine.ErrNotFailed.Error())
		return
	}
	s.background(s.engine.Retry)
	c.JSON(http.StatusAccepted, types.EngineStatus{State: types.EngineLoading, Model: snap.Model})
}

// background runs a model load under the server's context. Failures are
// reflected in the engine state, so they are only logged here.
func (s *Server) background(load func(context.Context) error) {
	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		if err := load(s.bg); err != nil && !errors.Is(err, engine.ErrStaleLoad) {
			s.logger.Warn("background model load failed", zap.Error(err))
		}
	}()
}

func (s *Server) handleClearCache(c *gin.Context) {
	ok := s.engine.DeleteModelCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *Server) handlePost(c *gin.Context) {
	link := strings.TrimSpace(c.Query("link"))
	if link == "" {
		abort(c, http.StatusBadRequest, "Query parameter 'link' is required")
		return
	}
	if s.posts == nil {
		abort(c, http.StatusNotFound, "No cached post")
		return
	}
	entry, ok, err := s.posts.Get(c.Request.Context(), link)
	if err != nil {
		c.Error(err)
		abort(c, http.StatusInternalServerError, "Failed to read post cache")
		return
	}
	if !ok {
		abort(c, http.StatusNotFound, "No cached post")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func knownModel(models []types.ModelInfo, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}
