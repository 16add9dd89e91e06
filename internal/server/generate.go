// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/slopped-in/internal/engine"
	"github.com/pdiddy/slopped-in/internal/prompt"
)

type generateRequest struct {
	Abstract   string `json:"abstract"`
	StyleLevel int    `json:"style_level"`
	Link       string `json:"link"`
}

// genEvent is either a cumulative text update or the final outcome.
type genEvent struct {
	text  string
	final bool
	err   error
}

// handleGenerate streams a post as server-sent events: one "message" event
// per increment carrying the full text so far, then "done" with the final
// post or "error" with the failure. Requests that fail before the first
// token (engine not ready, bad input) get a plain JSON error instead.
//
// The generation runs to completion even if the client disconnects, so the
// finished post still lands in the post cache.
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Body must be JSON with \"abstract\" and \"style_level\" fields")
		return
	}
	if strings.TrimSpace(req.Abstract) == "" {
		abort(c, http.StatusBadRequest, "Field 'abstract' is required")
		return
	}
	if req.StyleLevel == 0 {
		req.StyleLevel = prompt.DefaultLevel
	}
	if _, err := prompt.LevelInfo(req.StyleLevel); err != nil {
		abort(c, http.StatusBadRequest, "Field 'style_level' must be between 1 and 5")
		return
	}

	clientGone := c.Request.Context().Done()
	events := make(chan genEvent, 16)
	send := func(ev genEvent) {
		select {
		case events <- ev:
		case <-clientGone:
		}
	}

	genCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		post, err := s.engine.GenerateForPaper(genCtx, engine.GenerateRequest{
			Link:       req.Link,
			Abstract:   req.Abstract,
			StyleLevel: req.StyleLevel,
		}, func(text string) {
			send(genEvent{text: text})
		})
		send(genEvent{text: post, final: true, err: err})
	}()

	var first genEvent
	select {
	case first = <-events:
	case <-clientGone:
		return
	}
	if first.final && first.err != nil {
		switch {
		case errors.Is(first.err, engine.ErrNotReady):
			abort(c, http.StatusConflict, "Engine is not ready")
		case errors.Is(first.err, prompt.ErrStyleLevel), errors.Is(first.err, prompt.ErrEmptyAbstract):
			abort(c, http.StatusBadRequest, first.err.Error())
		default:
			c.Error(first.err)
			abort(c, http.StatusInternalServerError, "Generation failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	ev := first
	for {
		switch {
		case !ev.final:
			c.SSEvent("message", gin.H{"text": ev.text})
		case ev.err != nil:
			c.Error(ev.err)
			c.SSEvent("error", gin.H{"error": ev.err.Error()})
		default:
			c.SSEvent("done", gin.H{"text": ev.text})
		}
		c.Writer.Flush()
		if ev.final {
			return
		}

		select {
		case ev = <-events:
		case <-clientGone:
			return
		}
	}
}
