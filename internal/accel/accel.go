// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package accel detects whether the host offers hardware acceleration for
// local model inference. The engine refuses to load a model without it when
// engine.require_accelerator is set.
package accel

import (
	"errors"
	"os/exec"
	"runtime"
)

// ErrUnavailable means no supported accelerator was found.
var ErrUnavailable = errors.New("no hardware acceleration available")

const (
	binNvidia = "nvidia-smi"
	binROCm   = "rocm-smi"
)

// Accelerator is one kind of inference hardware.
type Accelerator interface {
	// Name returns the accelerator kind ("cuda", "rocm", or "metal").
	Name() string

	// Available reports whether the accelerator is present and responding.
	Available() bool
}

// executor abstracts command execution and platform lookup for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	Platform() (goos, goarch string)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) Platform() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}

// smiProbe detects a GPU through its vendor management tool. The tool must
// be on PATH and exit zero when asked to list devices.
type smiProbe struct {
	name string
	bin  string
	args []string
	exec executor
}

func (p *smiProbe) Name() string { return p.name }

func (p *smiProbe) Available() bool {
	if _, err := p.exec.LookPath(p.bin); err != nil {
		return false
	}
	return p.exec.RunSilent(p.bin, p.args...) == nil
}

// metalProbe reports Apple silicon, where Metal is always present.
type metalProbe struct {
	exec executor
}

func (p *metalProbe) Name() string { return "metal" }

func (p *metalProbe) Available() bool {
	goos, goarch := p.exec.Platform()
	return goos == "darwin" && goarch == "arm64"
}

func probes(exec executor) []Accelerator {
	return []Accelerator{
		&smiProbe{name: "cuda", bin: binNvidia, args: []string{"-L"}, exec: exec},
		&smiProbe{name: "rocm", bin: binROCm, args: []string{"--showproductname"}, exec: exec},
		&metalProbe{exec: exec},
	}
}

var defaultExec = &osExecutor{}

// Detect returns the first available accelerator, trying CUDA, then ROCm,
// then Metal. Returns ErrUnavailable if none responds.
func Detect() (Accelerator, error) {
	return detect(defaultExec)
}

func detect(exec executor) (Accelerator, error) {
	for _, p := range probes(exec) {
		if p.Available() {
			return p, nil
		}
	}
	return nil, ErrUnavailable
}
