// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// EngineState is the lifecycle state of the on-device model engine.
type EngineState string

const (
	EngineIdle       EngineState = "idle"
	EngineLoading    EngineState = "loading"
	EngineReady      EngineState = "ready"
	EngineGenerating EngineState = "generating"
	EngineError      EngineState = "error"
)

// EngineStatus is a point-in-time view of the orchestrator.
type EngineStatus struct {
	State    EngineState `json:"state"`
	Model    string      `json:"model"`
	Progress int         `json:"progress"`
	Error    string      `json:"error,omitempty"`
}

// ModelInfo describes a model the engine knows how to load.
type ModelInfo struct {
	// ID is the identifier passed to the local model runtime.
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Label is the short display name (e.g. "Qwen 3B").
	Label string `json:"label" yaml:"label" mapstructure:"label"`

	// Size is the approximate download size (e.g. "~2GB").
	Size string `json:"size" yaml:"size" mapstructure:"size"`
}

// PostEntry is the last generated post for one paper.
type PostEntry struct {
	Link       string    `json:"link"`
	StyleLevel int       `json:"style_level"`
	Model      string    `json:"model"`
	Post       string    `json:"post"`
	UpdatedAt  time.Time `json:"updated_at"`
}
