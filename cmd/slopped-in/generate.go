// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/slopped-in/internal/engine"
	"github.com/pdiddy/slopped-in/internal/postcache"
	"github.com/pdiddy/slopped-in/internal/prompt"
	"github.com/pdiddy/slopped-in/pkg/types"
)

const progressInterval = 250 * time.Millisecond

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0A66C2"))
	postStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(72)
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a social post from a paper abstract",
	Long: `Generate loads the selected model on this machine (downloading it on first
use) and rewrites an abstract as a short social post at the chosen style
level, from 1 (Academic) to 5 (Viral). Tokens stream to stdout as they are
produced.

With --link, the finished post is cached under that paper link. --link
without --abstract prints the cached post instead of generating. Pass
--abstract - to read the abstract from stdin.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("abstract", "", "abstract text, or - for stdin")
	generateCmd.Flags().String("link", "", "paper link the post is cached under")
	generateCmd.Flags().Int("level", prompt.DefaultLevel, "style level from 1 (Academic) to 5 (Viral)")
	generateCmd.Flags().String("model", "", "model id (default from config)")
	generateCmd.Flags().Bool("box", false, "print the finished post in a box instead of streaming")
	_ = viper.BindPFlag("engine.default_model", generateCmd.Flags().Lookup("model"))

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	abstract, _ := cmd.Flags().GetString("abstract")
	link, _ := cmd.Flags().GetString("link")
	level, _ := cmd.Flags().GetInt("level")
	boxed, _ := cmd.Flags().GetBool("box")

	info, err := prompt.LevelInfo(level)
	if err != nil {
		return err
	}
	if abstract == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading abstract: %w", err)
		}
		abstract = string(data)
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	posts, err := postcache.Open(cfg.PostCache)
	if err != nil {
		return err
	}
	defer posts.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if strings.TrimSpace(abstract) == "" {
		if link == "" {
			return fmt.Errorf("provide --abstract, or --link to show a cached post")
		}
		entry, ok, err := posts.Get(ctx, link)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no cached post for %s; pass --abstract to generate one", link)
		}
		printPost(out, entry.Post, entry.StyleLevel, entry.Model)
		return nil
	}

	orch, err := newOrchestrator(cfg.Engine, posts)
	if err != nil {
		return err
	}
	if err := loadWithProgress(ctx, orch, cmd.ErrOrStderr()); err != nil {
		return err
	}

	var streamed int
	onIncrement := func(text string) {
		if boxed {
			return
		}
		fmt.Fprint(out, text[streamed:])
		streamed = len(text)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), labelStyle.Render(fmt.Sprintf("%s post (%s)", info.Label, orch.Snapshot().Model)))

	post, err := orch.GenerateForPaper(ctx, engine.GenerateRequest{
		Link:       link,
		Abstract:   abstract,
		StyleLevel: level,
	}, onIncrement)
	if err != nil {
		if streamed > 0 {
			fmt.Fprintln(out)
		}
		return err
	}
	if boxed {
		fmt.Fprintln(out, postStyle.Render(post))
		return nil
	}
	fmt.Fprintln(out)
	return nil
}

// loadWithProgress initializes the selected model and reports download
// progress on w until the load settles.
func loadWithProgress(ctx context.Context, orch *engine.Orchestrator, w io.Writer) error {
	done := make(chan error, 1)
	go func() { done <- orch.InitializeEngine(ctx, "") }()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case err := <-done:
			if last >= 0 {
				fmt.Fprintln(w)
			}
			if err != nil {
				return fmt.Errorf("loading %s: %w", orch.Snapshot().Model, err)
			}
			return nil
		case <-ticker.C:
			snap := orch.Snapshot()
			if snap.State != types.EngineLoading || snap.Progress == last {
				continue
			}
			last = snap.Progress
			fmt.Fprintf(w, "\rLoading %s: %3d%%", snap.Model, snap.Progress)
		}
	}
}

func printPost(w io.Writer, post string, level int, model string) {
	label := fmt.Sprintf("style %d", level)
	if info, err := prompt.LevelInfo(level); err == nil {
		label = info.Label
	}
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%s post (%s)", label, model)))
	fmt.Fprintln(w, postStyle.Render(post))
}
