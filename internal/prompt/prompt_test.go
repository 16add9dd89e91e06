package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand always returns the same offset, clamped to n.
type fixedRand struct{ i int }

func (r fixedRand) IntN(n int) int {
	if r.i >= n {
		return n - 1
	}
	return r.i
}

func testBank() Bank {
	return Bank{
		1: {"formal-a", "formal-b"},
		2: {"balanced-a"},
		3: {"engaging-a", "engaging-b", "engaging-c"},
		4: {"catchy-a"},
		5: {"viral-a", "viral-b"},
	}
}

const abstract = "We propose a method for folding proteins faster."

func TestLevelInfo(t *testing.T) {
	l, err := LevelInfo(5)
	require.NoError(t, err)
	assert.Equal(t, "Viral", l.Label)
	assert.Equal(t, "Maximum clickbait", l.Description)

	for _, v := range []int{0, 6, -1} {
		_, err := LevelInfo(v)
		assert.ErrorIs(t, err, ErrStyleLevel, "level %d", v)
	}
}

func TestDefaultBankCoversEveryLevel(t *testing.T) {
	b := DefaultBank()
	require.NoError(t, b.Validate())
	for level := MinLevel; level <= MaxLevel; level++ {
		for _, ex := range b[level] {
			assert.NotEmpty(t, strings.TrimSpace(ex))
		}
	}
}

func TestParseBank(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "complete",
			yaml: "levels:\n  1: [a]\n  2: [b]\n  3: [c]\n  4: [d]\n  5: [e, f]\n",
		},
		{
			name:    "missing level",
			yaml:    "levels:\n  1: [a]\n  2: [b]\n  3: [c]\n  5: [e]\n",
			wantErr: "level 4",
		},
		{
			name:    "blank examples do not count",
			yaml:    "levels:\n  1: [a]\n  2: [\"  \"]\n  3: [c]\n  4: [d]\n  5: [e]\n",
			wantErr: "level 2",
		},
		{
			name:    "level out of range",
			yaml:    "levels:\n  1: [a]\n  2: [b]\n  3: [c]\n  4: [d]\n  5: [e]\n  6: [x]\n",
			wantErr: "level 6",
		},
		{
			name:    "not yaml",
			yaml:    "levels: [unclosed",
			wantErr: "parsing example bank",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBank([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"e", "f"}, b[5])
		})
	}
}

func TestLoadBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels:\n  1: [one]\n  2: [two]\n  3: [three]\n  4: [four]\n  5: [five]\n"), 0o644))

	b, err := LoadBank(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, b[3])

	_, err = LoadBank(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildRejectsBadInput(t *testing.T) {
	b := NewBuilder(testBank(), fixedRand{})

	_, err := b.Build(abstract, 0)
	assert.ErrorIs(t, err, ErrStyleLevel)
	_, err = b.Build(abstract, 6)
	assert.ErrorIs(t, err, ErrStyleLevel)
	_, err = b.Build("   ", 3)
	assert.ErrorIs(t, err, ErrEmptyAbstract)
}

func TestBuildInstructionByLevel(t *testing.T) {
	b := NewBuilder(testBank(), fixedRand{})
	for level := MinLevel; level <= MaxLevel; level++ {
		p, err := b.Build(abstract, level)
		require.NoError(t, err)

		if level <= 2 {
			assert.Contains(t, p, formalInstruction, "level %d", level)
			assert.NotContains(t, p, punchyInstruction, "level %d", level)
		} else {
			assert.Contains(t, p, punchyInstruction, "level %d", level)
			assert.NotContains(t, p, formalInstruction, "level %d", level)
		}
		assert.Contains(t, p, Levels[level-1].Label)
	}
}

func TestBuildStructure(t *testing.T) {
	b := NewBuilder(testBank(), fixedRand{})
	p, err := b.Build("  "+abstract+"\n", 4)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p, "ROLE:"))
	assert.True(t, strings.HasSuffix(p, "Post:"))
	assert.Contains(t, p, "catchy-a")
	assert.Contains(t, p, "reporter describing someone else's research")
	assert.Contains(t, p, "Abstract:\n"+abstract+"\n")

	// Example, then style, then perspective, then the abstract.
	order := []string{"catchy-a", "STYLE (", "PERSPECTIVE:", "Abstract:"}
	last := -1
	for _, marker := range order {
		i := strings.Index(p, marker)
		require.GreaterOrEqual(t, i, 0, marker)
		assert.Greater(t, i, last, "%q out of order", marker)
		last = i
	}
}

func TestBuildSelectionIsDrivenByRand(t *testing.T) {
	tests := []struct {
		pick int
		want string
		not  []string
	}{
		{0, "engaging-a", []string{"engaging-b", "engaging-c"}},
		{1, "engaging-b", []string{"engaging-a", "engaging-c"}},
		{2, "engaging-c", []string{"engaging-a", "engaging-b"}},
	}
	for _, tt := range tests {
		b := NewBuilder(testBank(), fixedRand{tt.pick})
		p, err := b.Build(abstract, 3)
		require.NoError(t, err)
		assert.Contains(t, p, tt.want)
		for _, n := range tt.not {
			assert.NotContains(t, p, n)
		}
	}
}

func TestBuildOnlyUsesRequestedLevel(t *testing.T) {
	b := NewBuilder(testBank(), fixedRand{})
	p, err := b.Build(abstract, 1)
	require.NoError(t, err)
	for _, other := range []string{"balanced", "engaging", "catchy", "viral"} {
		assert.NotContains(t, p, other+"-")
	}
}

func TestBuildMultipleExamplesAreDistinct(t *testing.T) {
	b := &Builder{Bank: testBank(), Rand: fixedRand{}, Examples: 2}
	p, err := b.Build(abstract, 3)
	require.NoError(t, err)

	assert.Contains(t, p, "Here are example posts")
	assert.Contains(t, p, "engaging-a")
	assert.Contains(t, p, "engaging-b")
	assert.NotContains(t, p, "engaging-c")
}

func TestBuildMoreExamplesThanBankHolds(t *testing.T) {
	b := &Builder{Bank: testBank(), Examples: 5}
	p, err := b.Build(abstract, 5)
	require.NoError(t, err)
	assert.Contains(t, p, "viral-a")
	assert.Contains(t, p, "viral-b")
}

func TestBuildDefaultsToBuiltInBank(t *testing.T) {
	var b Builder
	p, err := b.Build(abstract, DefaultLevel)
	require.NoError(t, err)
	assert.Contains(t, p, abstract)
}
