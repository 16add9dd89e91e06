// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed examples.yaml
var defaultExamples []byte

// Bank maps each style level to its worked example posts.
type Bank map[int][]string

// bankFile is the on-disk layout of an example bank.
type bankFile struct {
	Levels map[int][]string `yaml:"levels"`
}

// DefaultBank returns the built-in example bank.
func DefaultBank() Bank {
	b, err := ParseBank(defaultExamples)
	if err != nil {
		panic(fmt.Sprintf("built-in example bank: %v", err))
	}
	return b
}

// LoadBank reads an example bank from a YAML file.
func LoadBank(path string) (Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading example bank: %w", err)
	}
	b, err := ParseBank(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBank decodes and validates a YAML example bank. Blank examples are
// dropped; every level from MinLevel to MaxLevel must keep at least one.
func ParseBank(data []byte) (Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing example bank: %w", err)
	}

	b := Bank{}
	for level, examples := range f.Levels {
		if level < MinLevel || level > MaxLevel {
			return nil, fmt.Errorf("%w: bank has examples for level %d", ErrStyleLevel, level)
		}
		for _, ex := range examples {
			if ex = strings.TrimSpace(ex); ex != "" {
				b[level] = append(b[level], ex)
			}
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate reports the first level without any example.
func (b Bank) Validate() error {
	for level := MinLevel; level <= MaxLevel; level++ {
		if len(b[level]) == 0 {
			return fmt.Errorf("example bank has no examples for level %d", level)
		}
	}
	return nil
}
