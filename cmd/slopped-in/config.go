// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/slopped-in/internal/accel"
	"github.com/pdiddy/slopped-in/internal/engine"
	"github.com/pdiddy/slopped-in/internal/postcache"
	"github.com/pdiddy/slopped-in/internal/prompt"
	"github.com/pdiddy/slopped-in/internal/ratelimit"
	"github.com/pdiddy/slopped-in/internal/secrets"
	"github.com/pdiddy/slopped-in/pkg/types"
)

const defaultUserAgent = "slopped-in/0.1"

// setDefaults registers every key so environment variables can override it
// without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("search.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.user_agent", defaultUserAgent)

	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.max_requests", 20)
	v.SetDefault("rate_limit.sweep_threshold", 1000)
	v.SetDefault("rate_limit.backend", string(types.RateLimitMemory))
	v.SetDefault("rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.redis.password", "")
	v.SetDefault("rate_limit.redis.db", 0)
	v.SetDefault("rate_limit.redis.key_prefix", ratelimit.DefaultKeyPrefix)

	v.SetDefault("engine.endpoint", engine.DefaultEndpoint)
	v.SetDefault("engine.default_model", engine.DefaultModels[0].ID)
	v.SetDefault("engine.cache_prefix", "")
	v.SetDefault("engine.require_accelerator", true)
	v.SetDefault("engine.temperature", 0.7)
	v.SetDefault("engine.max_tokens", 500)
	v.SetDefault("engine.examples_file", "")
	v.SetDefault("engine.load_timeout", time.Duration(0))

	v.SetDefault("post_cache.backend", string(types.PostCacheSQLite))
	v.SetDefault("post_cache.path", defaultPostCachePath())
}

func defaultPostCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".slopped-in", "posts.db")
	}
	return filepath.Join(home, ".config", "slopped-in", "posts.db")
}

// loadAppConfig decodes the merged flags, environment, and config file.
func loadAppConfig() (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	cfg.RateLimit.Redis.Password = loadedSecrets.Or(secrets.RedisPassword, cfg.RateLimit.Redis.Password)
	return cfg, nil
}

// newLimiter builds the configured limiter. The returned Window is non-nil
// for the memory backend so the caller can sweep it periodically; close
// releases the Redis connection.
func newLimiter(ctx context.Context, cfg types.RateLimitConfig) (ratelimit.Limiter, *ratelimit.Window, func(), error) {
	switch cfg.Backend {
	case "", types.RateLimitMemory:
		w := ratelimit.NewWindow(cfg, nil)
		return w, w, func() {}, nil
	case types.RateLimitRedis:
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return ratelimit.NewRedisStore(client, cfg, nil), nil, func() { client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

// newOrchestrator wires the engine to the local runtime, the optional
// example bank override, the accelerator probe, and the post cache.
func newOrchestrator(cfg types.EngineConfig, posts postcache.Store) (*engine.Orchestrator, error) {
	opts := []engine.Option{engine.WithLogger(logger)}
	if posts != nil {
		opts = append(opts, engine.WithPostCache(posts))
	}
	if cfg.ExamplesFile != "" {
		bank, err := prompt.LoadBank(cfg.ExamplesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithPromptBuilder(prompt.NewBuilder(bank, nil)))
	}
	if cfg.RequireAccelerator {
		opts = append(opts, engine.WithProbe(func() error {
			a, err := accel.Detect()
			if err != nil {
				return err
			}
			logger.Debug("accelerator found", zap.String("accelerator", a.Name()))
			return nil
		}))
	}

	rt := engine.NewLocalRuntime(cfg.Endpoint, nil, logger.Named("runtime"))
	return engine.New(rt, cfg, opts...), nil
}
