// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package accel

import (
	"errors"
	"strings"
	"testing"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	goos, goarch  string
	calls         []string
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, key)
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) Platform() (string, string) {
	if m.goos == "" {
		return "linux", "amd64"
	}
	return m.goos, m.goarch
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "nvidia",
			exec: &mockExecutor{
				availableBins: map[string]bool{"nvidia-smi": true},
				runnableCmds:  map[string]bool{"nvidia-smi -L": true},
			},
			wantName: "cuda",
		},
		{
			name: "rocm when nvidia missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"rocm-smi": true},
				runnableCmds:  map[string]bool{"rocm-smi --showproductname": true},
			},
			wantName: "rocm",
		},
		{
			name: "nvidia-smi on PATH but no device, rocm works",
			exec: &mockExecutor{
				availableBins: map[string]bool{"nvidia-smi": true, "rocm-smi": true},
				runnableCmds:  map[string]bool{"rocm-smi --showproductname": true},
			},
			wantName: "rocm",
		},
		{
			name:     "apple silicon",
			exec:     &mockExecutor{goos: "darwin", goarch: "arm64"},
			wantName: "metal",
		},
		{
			name:    "intel mac",
			exec:    &mockExecutor{goos: "darwin", goarch: "amd64"},
			wantErr: true,
		},
		{
			name:    "nothing",
			exec:    &mockExecutor{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := detect(tt.exec)
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("detect() error = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("detect() unexpected error: %v", err)
			}
			if acc.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", acc.Name(), tt.wantName)
			}
		})
	}
}

func TestSMIProbeSkipsRunWhenNotOnPath(t *testing.T) {
	m := &mockExecutor{}
	p := &smiProbe{name: "cuda", bin: binNvidia, args: []string{"-L"}, exec: m}
	if p.Available() {
		t.Error("Available() = true, want false")
	}
	if len(m.calls) != 0 {
		t.Errorf("RunSilent called %v, want no calls", m.calls)
	}
}
