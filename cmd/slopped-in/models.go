package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pdiddy/slopped-in/internal/prompt"
)

var selectedStyle = lipgloss.NewStyle().Bold(true)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models and style levels available for generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAppConfig()
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(cfg.Engine, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		selected := orch.Snapshot().Model
		fmt.Fprintln(out, "Models:")
		for _, m := range orch.Models() {
			line := fmt.Sprintf("  %-30s %-10s %s", m.ID, m.Label, m.Size)
			if m.ID == selected {
				line = selectedStyle.Render(line + "  (selected)")
			}
			fmt.Fprintln(out, line)
		}

		fmt.Fprintln(out, "\nStyle levels:")
		for _, l := range prompt.Levels {
			fmt.Fprintf(out, "  %d  %-9s %s\n", l.Value, l.Label, l.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
