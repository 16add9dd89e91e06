package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "slopped-in/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a request. WriteTimeout is left unset on
	// the server because /api/generate streams for as long as the model does.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`

	// TrustedProxies lists proxy CIDRs whose X-Forwarded-For headers are
	// honored when deriving the client key. Empty trusts none.
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// SearchConfig holds settings for the search proxy.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the arXiv query endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// MaxResults is the upstream result cap (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// RateLimitBackend selects where sliding-window timestamps live.
type RateLimitBackend string

const (
	RateLimitMemory RateLimitBackend = "memory"
	RateLimitRedis  RateLimitBackend = "redis"
)

// RedisConfig holds connection settings for the Redis rate-limit store.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	DB        int    `json:"db" yaml:"db" mapstructure:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RateLimitConfig holds settings for the per-client sliding-window limiter.
type RateLimitConfig struct {
	// Window is the trailing interval requests are counted over (default 60s).
	Window time.Duration `json:"window" yaml:"window" mapstructure:"window"`

	// MaxRequests is the number of requests allowed per window (default 20).
	MaxRequests int `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// SweepThreshold is the key count above which the in-memory store drops
	// idle clients on access (default 1000).
	SweepThreshold int `json:"sweep_threshold" yaml:"sweep_threshold" mapstructure:"sweep_threshold"`

	// Backend selects memory or redis.
	Backend RateLimitBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	Redis RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// EngineConfig holds settings for the generation orchestrator and the
// local model runtime it drives.
type EngineConfig struct {
	// Endpoint is the base URL of the local model server.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// DefaultModel is selected at startup.
	DefaultModel string `json:"default_model" yaml:"default_model" mapstructure:"default_model"`

	// Models lists the models the engine may load.
	Models []ModelInfo `json:"models" yaml:"models" mapstructure:"models"`

	// CachePrefix namespaces runtime cache entries owned by slopped-in.
	// Cache clearing removes every runtime model whose name starts with it.
	CachePrefix string `json:"cache_prefix" yaml:"cache_prefix" mapstructure:"cache_prefix"`

	// RequireAccelerator makes a missing GPU a hard load failure.
	RequireAccelerator bool `json:"require_accelerator" yaml:"require_accelerator" mapstructure:"require_accelerator"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens caps generated output (default 500).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// ExamplesFile optionally replaces the built-in few-shot example bank.
	ExamplesFile string `json:"examples_file,omitempty" yaml:"examples_file,omitempty" mapstructure:"examples_file"`

	// LoadTimeout bounds a model download. Zero means no limit.
	LoadTimeout time.Duration `json:"load_timeout" yaml:"load_timeout" mapstructure:"load_timeout"`
}

// PostCacheBackend selects where generated posts are kept.
type PostCacheBackend string

const (
	PostCacheSQLite PostCacheBackend = "sqlite"
	PostCacheMemory PostCacheBackend = "memory"
)

// PostCacheConfig holds settings for the link → post cache.
type PostCacheConfig struct {
	Backend PostCacheBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file (default ~/.config/slopped-in/posts.db).
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// AppConfig groups every component's configuration.
type AppConfig struct {
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Engine    EngineConfig    `json:"engine" yaml:"engine" mapstructure:"engine"`
	PostCache PostCacheConfig `json:"post_cache" yaml:"post_cache" mapstructure:"post_cache"`
}
