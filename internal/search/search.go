// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search proxies topic queries to the arXiv API and returns
// normalized paper records. Each call is rate limited per client, makes at
// most one upstream request, and never retries.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/slopped-in/internal/ratelimit"
	"github.com/pdiddy/slopped-in/pkg/types"
)

var (
	// ErrEmptyQuery rejects a missing or whitespace-only query.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrInvalidRecency rejects a years value other than all, month, or year.
	ErrInvalidRecency = errors.New("invalid recency filter")

	// ErrUpstream wraps network failures, non-2xx statuses, and unparsable feeds.
	ErrUpstream = errors.New("upstream search failed")
)

const (
	defaultMaxResults = 10
	defaultTimeout    = 15 * time.Second
	defaultUserAgent  = "slopped-in/0.1"
)

// Request is one search from one client.
type Request struct {
	// ClientKey identifies the caller for rate limiting.
	ClientKey string

	// Query is the free-text topic.
	Query string

	// Years is the raw recency filter: "", "all", "month", or "year".
	Years string
}

// Proxy runs searches against arXiv.
type Proxy struct {
	cfg     types.SearchConfig
	client  *http.Client
	limiter ratelimit.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

// NewProxy builds a proxy. A nil limiter disables rate limiting (the CLI
// uses this); a nil logger discards logs.
func NewProxy(cfg types.SearchConfig, limiter ratelimit.Limiter, logger *zap.Logger) *Proxy {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = arxivAPIBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		now:     time.Now,
		logger:  logger,
	}
}

// Search checks the caller's rate limit, validates the request, queries
// arXiv once, and returns the normalized entries in upstream relevance order.
//
// Errors: ratelimit.ErrLimited when throttled, ErrEmptyQuery or
// ErrInvalidRecency for bad input (no upstream call is made), ErrUpstream
// for anything that goes wrong talking to arXiv.
func (p *Proxy) Search(ctx context.Context, req Request) ([]types.PaperRecord, error) {
	if p.limiter != nil {
		ok, err := p.limiter.Allow(ctx, req.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !ok {
			p.logger.Info("search rate limited", zap.String("client", req.ClientKey))
			return nil, ratelimit.ErrLimited
		}
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	recency, err := ParseRecency(req.Years)
	if err != nil {
		return nil, err
	}

	expr := BuildExpression(query, recency, p.now())
	start := time.Now()

	feed, err := fetchFeed(ctx, p.client, buildQueryURL(p.cfg.BaseURL, expr, p.cfg.MaxResults), p.cfg.UserAgent)
	if err != nil {
		p.logger.Error("arXiv search failed",
			zap.String("client", req.ClientKey),
			zap.String("expression", expr),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	papers := Normalize(feed)
	if len(papers) > p.cfg.MaxResults {
		papers = papers[:p.cfg.MaxResults]
	}

	p.logger.Info("search",
		zap.String("client", req.ClientKey),
		zap.String("expression", expr),
		zap.Int("results", len(papers)),
		zap.Duration("elapsed", time.Since(start)))
	return papers, nil
}
