// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine orchestrates the local language model that writes posts:
// loading a selected model with progress reporting, streaming generations,
// and evicting downloaded weights.
//
// The orchestrator is a small state machine:
//
//	idle ──init──▶ loading ──ok──▶ ready ──generate──▶ generating ──▶ ready
//	                  │                                     (success or failure)
//	                  └─fail─▶ error ──retry──▶ loading
//
// Selecting another model or clearing the cache returns it to idle from any
// state. Every load carries a token; a load that finishes after its token
// was superseded is discarded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/slopped-in/internal/postcache"
	"github.com/pdiddy/slopped-in/internal/prompt"
	"github.com/pdiddy/slopped-in/pkg/types"
)

var (
	// ErrNotReady is returned by GeneratePost unless the engine is ready.
	ErrNotReady = errors.New("engine not ready")

	// ErrNoAccelerator means the host lacks required hardware acceleration.
	ErrNoAccelerator = errors.New("hardware acceleration is not available on this machine")

	// ErrUnknownModel rejects a model identifier not in the configured list.
	ErrUnknownModel = errors.New("unknown model")

	// ErrStaleLoad is returned to a load that was superseded by a model
	// switch or cache clear before it finished.
	ErrStaleLoad = errors.New("model load superseded")

	// ErrBusy rejects a load while a generation is running.
	ErrBusy = errors.New("engine is generating")

	// ErrNotFailed is returned by Retry when there is no failed load to retry.
	ErrNotFailed = errors.New("engine is not in the error state")
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
)

// Probe checks for hardware acceleration before a load.
type Probe func() error

// GenerateRequest asks for a post about one paper.
type GenerateRequest struct {
	// Link identifies the paper. When set, the finished post is cached under it.
	Link       string
	Abstract   string
	StyleLevel int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards logs.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPostCache records successful GenerateForPaper results in s.
func WithPostCache(s postcache.Store) Option {
	return func(o *Orchestrator) { o.posts = s }
}

// WithProbe makes every load run p first; a failure puts the engine in the
// error state with ErrNoAccelerator.
func WithProbe(p Probe) Option {
	return func(o *Orchestrator) { o.probe = p }
}

// WithPromptBuilder replaces the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// WithClock sets the clock used to stamp cached posts.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the model lifecycle for one user session.
type Orchestrator struct {
	runtime     Runtime
	models      []types.ModelInfo
	cachePrefix string
	temperature float64
	maxTokens   int
	loadTimeout time.Duration

	builder *prompt.Builder
	posts   postcache.Store
	probe   Probe
	logger  *zap.Logger
	now     func() time.Time

	loads singleflight.Group

	mu       sync.Mutex
	state    types.EngineState
	progress int
	errMsg   string
	modelID  string
	model    Model
	token    uint64
}

// New returns an idle orchestrator with cfg.DefaultModel selected (or the
// first configured model).
func New(rt Runtime, cfg types.EngineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runtime:     rt,
		models:      cfg.Models,
		cachePrefix: cfg.CachePrefix,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		loadTimeout: cfg.LoadTimeout,
		state:       types.EngineIdle,
		now:         time.Now,
	}
	if len(o.models) == 0 {
		o.models = DefaultModels
	}
	if o.temperature <= 0 {
		o.temperature = defaultTemperature
	}
	if o.maxTokens <= 0 {
		o.maxTokens = defaultMaxTokens
	}
	o.modelID = o.models[0].ID
	if _, ok := findModel(o.models, cfg.DefaultModel); ok {
		o.modelID = cfg.DefaultModel
	}

	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.builder == nil {
		o.builder = prompt.NewBuilder(prompt.DefaultBank(), nil)
	}
	return o
}

// Models returns the configured models.
func (o *Orchestrator) Models() []types.ModelInfo {
	return append([]types.ModelInfo(nil), o.models...)
}

// Snapshot returns the current state, progress, selected model, and the
// last load error.
func (o *Orchestrator) Snapshot() types.EngineStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return types.EngineStatus{
		State:    o.state,
		Model:    o.modelID,
		Progress: o.progress,
		Error:    o.errMsg,
	}
}

// SelectModel switches to modelID. Switching to a different model drops the
// loaded handle, invalidates any in-flight load, and returns to idle.
// Selecting the current model changes nothing.
func (o *Orchestrator) SelectModel(modelID string) error {
	if _, ok := findModel(o.models, modelID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if modelID == o.modelID {
		return nil
	}
	o.resetLocked()
	o.modelID = modelID
	o.logger.Info("model selected", zap.String("model", modelID))
	return nil
}

// InitializeEngine loads modelID (the selected model when empty) and blocks
// until the load settles. Loading the model that is already ready is a
// no-op; a concurrent call for a load in progress waits for that load.
//
// On failure the engine is left in the error state and the error is
// returned. A load superseded by SelectModel or DeleteModelCache returns
// ErrStaleLoad and leaves the newer state alone.
func (o *Orchestrator) InitializeEngine(ctx context.Context, modelID string) error {
	o.mu.Lock()
	if modelID == "" {
		modelID = o.modelID
	}
	if _, ok := findModel(o.models, modelID); !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	switch {
	case o.state == types.EngineGenerating:
		o.mu.Unlock()
		return ErrBusy
	case o.state == types.EngineReady && o.modelID == modelID && o.model != nil:
		o.mu.Unlock()
		return nil
	case o.state == types.EngineLoading && o.modelID == modelID:
		// Join the load already running.
	default:
		o.resetLocked()
		o.modelID = modelID
		o.state = types.EngineLoading
	}
	token := o.token
	o.mu.Unlock()

	key := fmt.Sprintf("%s#%d", modelID, token)
	_, err, _ := o.loads.Do(key, func() (any, error) {
		return nil, o.load(ctx, modelID, token)
	})
	return err
}

// Retry reloads the selected model after a failed load.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.state != types.EngineError {
		o.mu.Unlock()
		return ErrNotFailed
	}
	o.resetLocked()
	o.state = types.EngineLoading
	modelID, token := o.modelID, o.token
	o.mu.Unlock()

	_, err, _ := o.loads.Do(fmt.Sprintf("%s#%d", modelID, token), func() (any, error) {
		return nil, o.load(ctx, modelID, token)
	})
	return err
}

func (o *Orchestrator) load(ctx context.Context, modelID string, token uint64) error {
	log := o.logger.With(zap.String("model", modelID), zap.Uint64("load", token))

	if o.probe != nil {
		if err := o.probe(); err != nil {
			err = fmt.Errorf("%w: %v", ErrNoAccelerator, err)
			o.fail(token, err)
			log.Error("accelerator check failed", zap.Error(err))
			return err
		}
	}

	if o.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.loadTimeout)
		defer cancel()
	}

	log.Info("loading model")
	start := time.Now()
	m, err := o.runtime.Load(ctx, modelID, func(p float64) { o.setProgress(token, p) })

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		log.Info("discarding superseded load")
		return ErrStaleLoad
	}
	if err != nil {
		o.state = types.EngineError
		o.errMsg = err.Error()
		log.Error("model load failed", zap.Error(err))
		return err
	}
	o.state = types.EngineReady
	o.progress = 100
	o.model = m
	log.Info("model ready", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (o *Orchestrator) fail(token uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		return
	}
	o.state = types.EngineError
	o.errMsg = err.Error()
}

// setProgress records load progress p in [0, 1] as a whole percentage.
// Progress never moves backwards within one load.
func (o *Orchestrator) setProgress(token uint64, p float64) {
	pct := int(math.Round(p * 100))
	pct = max(0, min(100, pct))

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token || o.state != types.EngineLoading {
		return
	}
	if pct > o.progress {
		o.progress = pct
	}
}

// resetLocked returns to idle and supersedes any in-flight load or generation.
func (o *Orchestrator) resetLocked() {
	o.token++
	o.state = types.EngineIdle
	o.progress = 0
	o.errMsg = ""
	o.model = nil
}

// GeneratePost streams a post about abstract at the given style level.
// onIncrement, when non-nil, receives the full text generated so far after
// every chunk. The engine must be ready; otherwise ErrNotReady is returned
// without any state change. Whether generation succeeds or fails, the
// engine returns to ready.
func (o *Orchestrator) GeneratePost(ctx context.Context, abstract string, level int, onIncrement func(string)) (string, error) {
	post, _, err := o.generate(ctx, abstract, level, onIncrement)
	return post, err
}

// generate is GeneratePost that also reports the id of the model that
// wrote the post, which may no longer be the selected one.
func (o *Orchestrator) generate(ctx context.Context, abstract string, level int, onIncrement func(string)) (string, string, error) {
	o.mu.Lock()
	if o.state != types.EngineReady || o.model == nil {
		o.mu.Unlock()
		return "", "", ErrNotReady
	}
	text, err := o.builder.Build(abstract, level)
	if err != nil {
		o.mu.Unlock()
		return "", "", err
	}
	o.state = types.EngineGenerating
	model, token := o.model, o.token
	o.mu.Unlock()

	defer o.finishGeneration(token)

	session := uuid.NewString()
	log := o.logger.With(zap.String("session", session), zap.String("model", model.ID()), zap.Int("style_level", level))
	log.Info("generation started")
	start := time.Now()

	stream, err := model.ChatStream(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: text}},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		return "", "", err
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("generation failed", zap.Error(err), zap.Int("chars", buf.Len()))
			return "", "", fmt.Errorf("generation: %w", err)
		}
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if onIncrement != nil {
			onIncrement(buf.String())
		}
	}

	log.Info("generation finished", zap.Int("chars", buf.Len()), zap.Duration("elapsed", time.Since(start)))
	return buf.String(), model.ID(), nil
}

func (o *Orchestrator) finishGeneration(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token == o.token && o.state == types.EngineGenerating {
		o.state = types.EngineReady
	}
}

// GenerateForPaper runs GeneratePost and, on success, caches the post under
// req.Link. A cache write failure is logged and does not fail the call.
func (o *Orchestrator) GenerateForPaper(ctx context.Context, req GenerateRequest, onIncrement func(string)) (string, error) {
	post, modelID, err := o.generate(ctx, req.Abstract, req.StyleLevel, onIncrement)
	if err != nil {
		return "", err
	}
	if o.posts == nil || strings.TrimSpace(req.Link) == "" {
		return post, nil
	}

	entry := types.PostEntry{
		Link:       req.Link,
		StyleLevel: req.StyleLevel,
		Model:      modelID,
		Post:       post,
		UpdatedAt:  o.now(),
	}
	if err := o.posts.Put(ctx, entry); err != nil {
		o.logger.Warn("caching post failed", zap.String("link", req.Link), zap.Error(err))
	}
	return post, nil
}

// DeleteModelCache drops the loaded model, returns to idle, and removes the
// stored weights of every configured model plus any runtime model whose name
// starts with the configured cache prefix. Cleanup is best-effort: failures
// are logged and reported as false, never returned.
func (o *Orchestrator) DeleteModelCache(ctx context.Context) bool {
	o.mu.Lock()
	o.resetLocked()
	o.mu.Unlock()

	ok := true
	deleted := map[string]bool{}
	remove := func(id string) {
		if deleted[id] {
			return
		}
		deleted[id] = true
		if err := o.runtime.Delete(ctx, id); err != nil {
			ok = false
			o.logger.Warn("deleting model weights failed", zap.String("model", id), zap.Error(err))
		}
	}

	for _, m := range o.models {
		remove(m.ID)
	}

	if o.cachePrefix != "" {
		names, err := o.runtime.List(ctx)
		if err != nil {
			ok = false
			o.logger.Warn("listing runtime models failed", zap.Error(err))
		}
		for _, name := range names {
			if strings.HasPrefix(name, o.cachePrefix) {
				remove(name)
			}
		}
	}

	o.logger.Info("model cache cleared", zap.Int("models", len(deleted)), zap.Bool("success", ok))
	return ok
}
