package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/slopped-in/internal/postcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage downloaded models and cached posts",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete downloaded model weights and cached posts",
	Long: `Clear removes the weights of every known model from the local runtime and
empties the post cache. Use --posts-only to keep the models.`,
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().Bool("posts-only", false, "clear cached posts but keep model weights")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	postsOnly, _ := cmd.Flags().GetBool("posts-only")

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
	if err := posts.Clear(ctx); err != nil {
		return fmt.Errorf("clearing posts: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cleared cached posts.")
	if postsOnly {
		return nil
	}

	orch, err := newOrchestrator(cfg.Engine, posts)
	if err != nil {
		return err
	}
	if !orch.DeleteModelCache(ctx) {
		return fmt.Errorf("some model weights could not be deleted; see log")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Deleted model weights.")
	return nil
}
