// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt assembles the generation prompt that turns a paper abstract
// into a social post: persona framing, worked examples for the requested
// style level, a tone instruction, and the abstract itself.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"text/template"
)

var (
	// ErrStyleLevel rejects a style level outside MinLevel..MaxLevel.
	ErrStyleLevel = errors.New("style level out of range")

	// ErrEmptyAbstract rejects a blank abstract.
	ErrEmptyAbstract = errors.New("abstract is empty")
)

const (
	MinLevel     = 1
	MaxLevel     = 5
	DefaultLevel = 3
)

// Level describes one position on the style scale.
type Level struct {
	Value       int    `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Levels lists the style scale from most formal to most sensational.
var Levels = []Level{
	{1, "Academic", "Formal & professional"},
	{2, "Balanced", "Mix of formal & engaging"},
	{3, "Engaging", "Clear & accessible"},
	{4, "Catchy", "Attention-grabbing"},
	{5, "Viral", "Maximum clickbait"},
}

// LevelInfo returns the Level for value.
func LevelInfo(value int) (Level, error) {
	if value < MinLevel || value > MaxLevel {
		return Level{}, fmt.Errorf("%w: %d (want %d-%d)", ErrStyleLevel, value, MinLevel, MaxLevel)
	}
	return Levels[value-1], nil
}

const (
	formalInstruction = `Write in a formal, neutral register. Use complete sentences and short paragraphs. No emojis, no hype, no rhetorical questions beyond a single closing one.`

	punchyInstruction = `Write in a terse, hook-driven register. Open with a one-line hook that stops the scroll. Keep every paragraph to one or two short lines with blank lines between them. Use emojis sparingly, at most two in the whole post. End with a specific question that invites comments.`
)

// generationTmpl is the single user message sent to the model.
var generationTmpl = template.Must(template.New("generation").Parse(`ROLE: You are a LinkedIn ghostwriter who turns academic research into posts people actually read.

{{if eq (len .Examples) 1}}Here is an example post at the requested style:{{else}}Here are example posts at the requested style:{{end}}
{{range .Examples}}
---
{{.}}
---
{{end}}
STYLE ({{.Level.Label}}: {{.Level.Description}}):
{{.Instruction}}

PERSPECTIVE: You are a reporter describing someone else's research. Refer to the work as "researchers", "the authors", or "this study". Never write as the paper's author: do not use "we", "our", or "I" when describing the research.

Do not invent numbers or findings that are not in the abstract. Do not use hashtags in the middle of sentences.

Abstract:
{{.Abstract}}

Post:`))

// Rand picks an index in [0, n).
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Builder renders generation prompts from an example bank.
type Builder struct {
	// Bank supplies examples per level. Nil uses DefaultBank.
	Bank Bank

	// Rand chooses among a level's examples. Nil uses the global source.
	Rand Rand

	// Examples is how many examples to include per prompt (default 1).
	Examples int
}

// NewBuilder returns a Builder over bank using r for example selection.
func NewBuilder(bank Bank, r Rand) *Builder {
	return &Builder{Bank: bank, Rand: r}
}

// Build renders the prompt for abstract at the given style level.
func (b *Builder) Build(abstract string, level int) (string, error) {
	info, err := LevelInfo(level)
	if err != nil {
		return "", err
	}
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return "", ErrEmptyAbstract
	}

	bank := b.Bank
	if bank == nil {
		bank = DefaultBank()
	}
	examples := b.pick(bank[level])
	if len(examples) == 0 {
		return "", fmt.Errorf("no examples for style level %d", level)
	}

	instruction := formalInstruction
	if level >= 3 {
		instruction = punchyInstruction
	}

	var buf bytes.Buffer
	err = generationTmpl.Execute(&buf, struct {
		Examples    []string
		Level       Level
		Instruction string
		Abstract    string
	}{examples, info, instruction, abstract})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}

// pick returns up to b.Examples distinct examples chosen at random,
// preserving the bank's order among those chosen.
func (b *Builder) pick(pool []string) []string {
	n := b.Examples
	if n <= 0 {
		n = 1
	}
	if n >= len(pool) {
		return append([]string(nil), pool...)
	}

	r := b.Rand
	if r == nil {
		r = globalRand{}
	}

	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	// Partial Fisher-Yates: the first n slots end up holding a uniform sample.
	for i := 0; i < n; i++ {
		j := i + r.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	chosen := idx[:n]
	slices.Sort(chosen)

	out := make([]string, n)
	for i, k := range chosen {
		out[i] = pool[k]
	}
	return out
}
