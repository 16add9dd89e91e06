package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slopped-in/internal/search"
)

// cliClientKey is the rate-limit key used for terminal searches.
const cliClientKey = "cli"

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search arXiv for papers",
	Long: `Search queries arXiv for papers matching a free-text topic, optionally
restricted to the last month or year, and prints title, authors, date, and
link for each result.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringP("query", "q", "", "free-text topic (required)")
	searchCmd.Flags().String("years", "all", "recency filter: all, month, or year")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().Bool("dry-run", false, "print the arXiv search expression without querying")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if strings.TrimSpace(query) == "" && len(args) > 0 {
		query = strings.Join(args, " ")
	}
	years, _ := cmd.Flags().GetString("years")
	asJSON, _ := cmd.Flags().GetBool("json")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("provide a topic with --query")
	}
	recency, err := search.ParseRecency(years)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), search.BuildExpression(strings.TrimSpace(query), recency, time.Now()))
		return nil
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	// Terminal searches are not rate limited; the limiter guards the shared API.
	proxy := search.NewProxy(cfg.Search, nil, logger.Named("search"))

	papers, err := proxy.Search(cmd.Context(), search.Request{
		ClientKey: cliClientKey,
		Query:     query,
		Years:     years,
	})
	if err != nil {
		return err
	}

	if asJSON {
		return search.FormatJSON(papers, cmd.OutOrStdout())
	}
	search.FormatTable(papers, cmd.OutOrStdout())
	return nil
}
