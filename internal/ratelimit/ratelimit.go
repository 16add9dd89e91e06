// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit enforces a per-client sliding-window request limit in
// front of the upstream search API. Window keeps timestamps in process
// memory; RedisStore keeps them in Redis so several proxy instances share
// one budget per client.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pdiddy/slopped-in/pkg/types"
)

// ErrLimited is returned by callers that turn a denied Allow into an error.
var ErrLimited = errors.New("too many requests")

const (
	defaultWindow         = 60 * time.Second
	defaultMaxRequests    = 20
	defaultSweepThreshold = 1000
)

// Limiter decides whether a client may make another request. Allow records
// the request when it returns true and records nothing when it returns false.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Window is an in-memory sliding-window limiter. The check and the append
// happen under one lock, so concurrent requests from the same client cannot
// both slip in under the limit.
type Window struct {
	window         time.Duration
	maxRequests    int
	sweepThreshold int
	now            func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewWindow builds an in-memory limiter. A nil now uses time.Now; zero
// config values take the defaults (60s, 20 requests, sweep above 1000 keys).
func NewWindow(cfg types.RateLimitConfig, now func() time.Time) *Window {
	cfg = applyDefaults(cfg)
	if now == nil {
		now = time.Now
	}
	return &Window{
		window:         cfg.Window,
		maxRequests:    cfg.MaxRequests,
		sweepThreshold: cfg.SweepThreshold,
		now:            now,
		hits:           make(map[string][]time.Time),
	}
}

// Allow reports whether key is under its limit and, if so, records the request.
func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	now := w.now()
	start := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	recent := prune(w.hits[key], start)
	if len(recent) >= w.maxRequests {
		w.hits[key] = recent
		return false, nil
	}
	w.hits[key] = append(recent, now)

	if len(w.hits) > w.sweepThreshold {
		w.sweepLocked(start)
	}
	return true, nil
}

// Sweep drops stale timestamps for every key and forgets keys with none left.
func (w *Window) Sweep() {
	start := w.now().Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepLocked(start)
}

// Keys returns how many clients currently hold window state.
func (w *Window) Keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

// Interval is how often a periodic Sweep is worthwhile.
func (w *Window) Interval() time.Duration { return w.window }

func (w *Window) sweepLocked(start time.Time) {
	for key, ts := range w.hits {
		recent := prune(ts, start)
		if len(recent) == 0 {
			delete(w.hits, key)
			continue
		}
		w.hits[key] = recent
	}
}

// prune keeps timestamps strictly after start. ts is ordered, so the
// first survivor marks the cut.
func prune(ts []time.Time, start time.Time) []time.Time {
	for i, t := range ts {
		if t.After(start) {
			return ts[i:]
		}
	}
	return ts[:0]
}

func applyDefaults(cfg types.RateLimitConfig) types.RateLimitConfig {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = defaultMaxRequests
	}
	if cfg.SweepThreshold <= 0 {
		cfg.SweepThreshold = defaultSweepThreshold
	}
	return cfg
}
