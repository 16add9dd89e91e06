//go:build mage

// Package main contains Mage build targets for slopped-in developer tooling.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "slopped-in"
	cmdPkg  = "./cmd/slopped-in"
)

// sampleConfig is written by Init when no config file exists.
const sampleConfig = `server:
  addr: ":8080"
  trusted_proxies: []
search:
  max_results: 10
rate_limit:
  window: 60s
  max_requests: 20
  backend: memory
engine:
  endpoint: http://localhost:11434
  default_model: qwen2.5:3b-instruct-q4_K_M
  require_accelerator: true
post_cache:
  backend: sqlite
`

// Init creates the secrets directory and a starter slopped-in.yaml.
func Init() error {
	if err := os.MkdirAll(".secrets", 0o700); err != nil {
		return fmt.Errorf("creating .secrets: %w", err)
	}
	fmt.Println("   .secrets/")

	const cfgFile = "slopped-in.yaml"
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Println("  ", cfgFile, "exists, leaving it alone")
		return nil
	}
	if err := os.WriteFile(cfgFile, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfgFile, err)
	}
	fmt.Println("  ", cfgFile)
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Serve builds the binary and runs the HTTP API.
func Serve() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "serve")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}

// docFiles are the prose and prompt files counted by Stats.
var docFiles = []string{"*.md", "internal/prompt/*.yaml"}

// Stats prints project metrics: Go production/test lines per package and
// word counts of the docs and the few-shot example bank.
func Stats() error {
	counts, err := countGoLines(".")
	if err != nil {
		return err
	}
	var prod, test int
	for _, c := range counts {
		fmt.Printf("  %-28s %6d prod %6d test\n", c.pkg, c.prod, c.test)
		prod += c.prod
		test += c.test
	}
	words, err := countDocWords(".", docFiles)
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prod)
	fmt.Printf("Lines of code (Go, tests):      %d\n", test)
	fmt.Printf("Words (docs and prompts):        %d\n", words)
	return nil
}

type lineCount struct {
	pkg        string
	prod, test int
}

// countGoLines counts non-blank Go lines per directory under root, skipping
// hidden and underscore-prefixed directories (reference material) and bin/.
func countGoLines(root string) ([]lineCount, error) {
	byDir := map[string]*lineCount{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == binDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n := 0
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				n++
			}
		}

		dir, _ := filepath.Rel(root, filepath.Dir(path))
		c, ok := byDir[dir]
		if !ok {
			c = &lineCount{pkg: filepath.ToSlash(dir)}
			byDir[dir] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := make([]lineCount, 0, len(byDir))
	for _, c := range byDir {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].pkg < counts[j].pkg })
	return counts, nil
}

// countDocWords counts whitespace-separated words in the files under root
// matching patterns. Patterns that match nothing are not an error.
func countDocWords(root string, patterns []string) (int, error) {
	total := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return 0, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return 0, fmt.Errorf("reading %s: %w", path, err)
			}
			total += len(strings.Fields(string(data)))
		}
	}
	return total, nil
}
