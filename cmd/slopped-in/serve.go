// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/slopped-in/internal/postcache"
	"github.com/pdiddy/slopped-in/internal/ratelimit"
	"github.com/pdiddy/slopped-in/internal/search"
	"github.com/pdiddy/slopped-in/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve starts the HTTP API: the rate-limited arXiv search proxy at
/api/search, the engine controls under /api/engine, streaming generation at
/api/generate, and cached posts at /api/posts.

The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("rate-limit-backend", "", "rate limit store: memory or redis")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("rate_limit.backend", serveCmd.Flags().Lookup("rate-limit-backend"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter, window, closeLimiter, err := newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeLimiter()

	posts, err := postcache.Open(cfg.PostCache)
	if err != nil {
		return err
	}
	defer posts.Close()

	orch, err := newOrchestrator(cfg.Engine, posts)
	if err != nil {
		return err
	}

	proxy := search.NewProxy(cfg.Search, limiter, logger.Named("search"))
	api := server.New(ctx, proxy, orch, posts, logger.Named("http"))

	gin.SetMode(gin.ReleaseMode)
	srv, err := api.HTTPServer(cfg.Server)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("rate_limit", string(cfg.RateLimit.Backend)),
			zap.String("model", orch.Snapshot().Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if window != nil {
		g.Go(func() error {
			sweep(gctx, window)
			return nil
		})
	}

	err = g.Wait()
	api.Wait()
	return err
}

// sweep drops idle clients from the in-memory limiter once per window
// until ctx ends.
func sweep(ctx context.Context, w *ratelimit.Window) {
	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
			logger.Debug("rate limiter swept", zap.Int("clients", w.Keys()))
		}
	}
}
