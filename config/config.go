package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Race      RaceConfig      `yaml:"race"`
	Relays    []RelayConfig   `yaml:"relays"`
	Browser   BrowserConfig   `yaml:"browser"`
	Cache     CacheConfig     `yaml:"cache"`
	Webhook   WebhookConfig   `yaml:"webhook"`

	// Proxy is a forward proxy URL. When set, a "proxy" strategy is
	// registered and the browser is launched behind it.
	Proxy string `yaml:"proxy"`
}

// RaceConfig controls the strategy race.
type RaceConfig struct {
	// PerStrategyTimeout bounds a single strategy.
	PerStrategyTimeout time.Duration `yaml:"per_strategy_timeout"` // default: 8s

	// OverallTimeout bounds the whole race; raised to PerStrategyTimeout if lower.
	OverallTimeout time.Duration `yaml:"overall_timeout"` // default: 20s

	// MaxOverallTimeout caps client-requested overall timeouts.
	MaxOverallTimeout time.Duration `yaml:"max_overall_timeout"` // default: 120s

	// Strategies lists the enabled strategy kinds in registration order.
	// Known kinds: direct, proxy, relay, render, render-stealth.
	Strategies []string `yaml:"strategies"` // default: [direct, proxy, relay, render-stealth]

	// MemoryTTL is how long a host's winning strategy is remembered.
	MemoryTTL time.Duration `yaml:"memory_ttl"` // default: 24h
}

// RelayConfig describes one server-side fetch relay.
type RelayConfig struct {
	Name              string  `yaml:"name"`
	Endpoint          string  `yaml:"endpoint"`
	Envelope          string  `yaml:"envelope"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser behind the render strategies.
type BrowserConfig struct {
	// Enabled launches the browser at startup.
	Enabled bool `yaml:"enabled"` // default: true

	Headless   bool   `yaml:"headless"`    // default: true
	MaxPages   int    `yaml:"max_pages"`   // default: 5
	NoSandbox  bool   `yaml:"no_sandbox"`  // default: false
	BrowserBin string `yaml:"browser_bin"` // default: auto-download

	// Proxy is filled from Config.Proxy.
	Proxy string `yaml:"-"`

	// NavigationTimeout bounds navigation and load; the race deadline still applies.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 15s

	// BlockedResourceTypes lists resource types to block.
	BlockedResourceTypes []string `yaml:"blocked_resource_types"` // default: [Image, Stylesheet, Font, Media]

	// BlockAds blocks requests to known ad and tracking domains.
	BlockAds bool `yaml:"block_ads"` // default: true
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5
	Burst             int     `yaml:"burst"`               // default: 10
}

// CacheConfig controls the per-strategy document cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`     // default: true
	MaxEntries int           `yaml:"max_entries"` // default: 1000
	MaxAge     time.Duration `yaml:"max_age"`     // default: 10m
	TTL        time.Duration `yaml:"ttl"`         // default: 1h
}

// WebhookConfig controls result notifications.
type WebhookConfig struct {
	// Secret signs payloads when a request does not carry its own.
	Secret string `yaml:"secret"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("RACEFETCH_HOST", "0.0.0.0"),
			Port: envIntOr("RACEFETCH_PORT", 8080),
			Mode: envOr("RACEFETCH_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("RACEFETCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("RACEFETCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RACEFETCH_RATE_RPS", 5.0),
			Burst:             envIntOr("RACEFETCH_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("RACEFETCH_LOG_LEVEL", "info"),
			Format: envOr("RACEFETCH_LOG_FORMAT", "json"),
		},
		Race: RaceConfig{
			PerStrategyTimeout: envDurationOr("RACEFETCH_STRATEGY_TIMEOUT", 8*time.Second),
			OverallTimeout:     envDurationOr("RACEFETCH_OVERALL_TIMEOUT", 20*time.Second),
			MaxOverallTimeout:  envDurationOr("RACEFETCH_MAX_OVERALL_TIMEOUT", 120*time.Second),
			Strategies: envSliceOr("RACEFETCH_STRATEGIES", []string{
				"direct", "proxy", "relay", "render-stealth",
			}),
			MemoryTTL: envDurationOr("RACEFETCH_MEMORY_TTL", 24*time.Hour),
		},
		Relays: relaysFromEnv(),
		Browser: BrowserConfig{
			Enabled:           envBoolOr("RACEFETCH_BROWSER", true),
			Headless:          envBoolOr("RACEFETCH_HEADLESS", true),
			MaxPages:          envIntOr("RACEFETCH_MAX_PAGES", 5),
			NoSandbox:         envBoolOr("RACEFETCH_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("RACEFETCH_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("RACEFETCH_NAV_TIMEOUT", 15*time.Second),
			BlockedResourceTypes: envSliceOr("RACEFETCH_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("RACEFETCH_BLOCK_ADS", true),
		},
		Cache: CacheConfig{
			Enabled:    envBoolOr("RACEFETCH_CACHE", true),
			MaxEntries: envIntOr("RACEFETCH_CACHE_MAX_ENTRIES", 1000),
			MaxAge:     envDurationOr("RACEFETCH_CACHE_MAX_AGE", 10*time.Minute),
			TTL:        envDurationOr("RACEFETCH_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("RACEFETCH_WEBHOOK_SECRET"),
		},
		Proxy: os.Getenv("RACEFETCH_PROXY"),
	}
	cfg.Browser.Proxy = cfg.Proxy
	return cfg
}

// LoadFile loads the environment defaults and overlays the YAML file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for i := range cfg.Relays {
		if cfg.Relays[i].Name == "" {
			cfg.Relays[i].Name = relayName(i)
		}
	}
	cfg.Browser.Proxy = cfg.Proxy
	return cfg, nil
}

// relaysFromEnv builds relay configs from RACEFETCH_RELAYS, a comma list of
// endpoints. RACEFETCH_RELAY_ENVELOPE and RACEFETCH_RELAY_RPS apply to all.
func relaysFromEnv() []RelayConfig {
	endpoints := envSliceOr("RACEFETCH_RELAYS", []string{
		"https://api.allorigins.win/raw?url={url}",
	})
	envelope := os.Getenv("RACEFETCH_RELAY_ENVELOPE")
	rps := envFloatOr("RACEFETCH_RELAY_RPS", 2.0)

	relays := make([]RelayConfig, 0, len(endpoints))
	for i, ep := range endpoints {
		relays = append(relays, RelayConfig{
			Name:              relayName(i),
			Endpoint:          ep,
			Envelope:          envelope,
			RequestsPerSecond: rps,
			Burst:             2,
		})
	}
	return relays
}

// relayName names the i-th relay: relay, relay-2, relay-3, ...
func relayName(i int) string {
	if i == 0 {
		return "relay"
	}
	return fmt.Sprintf("relay-%d", i+1)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
