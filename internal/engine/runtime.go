// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import "context"

// Runtime is the local inference server the orchestrator drives. It owns
// downloaded weights; the orchestrator only decides when to load, use, and
// evict them.
type Runtime interface {
	// Load makes modelID ready for chat, downloading weights if needed.
	// progress receives values in [0, 1] and may be called from any goroutine
	// until Load returns.
	Load(ctx context.Context, modelID string, progress func(float64)) (Model, error)

	// Delete removes locally stored weights for modelID. Deleting a model
	// that is not present is not an error.
	Delete(ctx context.Context, modelID string) error

	// List returns the identifiers of every locally stored model.
	List(ctx context.Context) ([]string, error)
}

// Model is a loaded model handle.
type Model interface {
	ID() string
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// Stream yields incremental completion text. Recv returns io.EOF after the
// last chunk. Close must be called once the caller stops reading.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a streaming chat completion request.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}
