package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Strategy is the default extraction strategy when a request names none.
	Strategy string // "direct" or "agent"; default: "direct"

	Browser   BrowserConfig
	Session   SessionConfig
	Agent     AgentConfig
	LLM       LLMConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// BrowserConfig controls the browser driver.
type BrowserConfig struct {
	// Driver selects the browser automation library.
	Driver string // "rod", "chromedp" or "playwright"; default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// ExtraHeaders are sent with every request the page makes.
	// Format: "Name=value,Name2=value2".
	ExtraHeaders map[string]string

	// BlockedResourceTypes lists resource types to block.
	// Allowed: "Image", "Stylesheet", "Font", "Media". Default: none, so the
	// direct strategy returns the page as a user would see it.
	BlockedResourceTypes []string

	// InstallPlaywright downloads the playwright driver and Chromium on
	// first launch when the playwright driver is selected.
	InstallPlaywright bool // default: false
}

// SessionConfig controls the session manager's retry policy and pacing.
type SessionConfig struct {
	// MaxAttempts bounds launch+navigate attempts per extraction.
	MaxAttempts int // default: 3

	InitialBackoff    time.Duration // default: 500ms
	BackoffMultiplier float64       // default: 2
	MaxBackoff        time.Duration // default: 5s

	// SettleMin and SettleMax bound the random delay after each navigation.
	SettleMin time.Duration // default: 6s
	SettleMax time.Duration // default: 9s

	// NavigationTimeout bounds a single navigation attempt.
	NavigationTimeout time.Duration // default: 30s

	// Timeout bounds a whole extraction. Zero disables it.
	Timeout time.Duration // default: 120s
}

// AgentConfig controls the agent runtime.
type AgentConfig struct {
	// MaxSteps bounds LLM round trips per run.
	MaxSteps int // default: 8

	// TextMode selects how read_text renders the page: "visible",
	// "readability" or "markdown".
	TextMode string // default: "visible"

	// MaxTextTokens truncates page text handed to the model.
	MaxTextTokens int // default: 8000
}

// LLMConfig selects and authenticates the agent's language model.
type LLMConfig struct {
	Provider  string // "openai" or "anthropic"; default: "openai"
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int           // default: 4096
	Timeout   time.Duration // default: 60s
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxConcurrent bounds simultaneous extractions (each owns a browser).
	MaxConcurrent int // default: 2
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging. Logs always go to stderr.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	provider := strings.ToLower(envOr("URLGRAB_LLM_PROVIDER", "openai"))

	return &Config{
		Strategy: envOr("URLGRAB_STRATEGY", "direct"),
		Browser: BrowserConfig{
			Driver:               strings.ToLower(envOr("URLGRAB_DRIVER", "rod")),
			Headless:             envBoolOr("URLGRAB_HEADLESS", true),
			NoSandbox:            envBoolOr("URLGRAB_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("URLGRAB_BROWSER_BIN"),
			Proxy:                os.Getenv("URLGRAB_PROXY"),
			ExtraHeaders:         envMapOr("URLGRAB_EXTRA_HEADERS", nil),
			BlockedResourceTypes: envSliceOr("URLGRAB_BLOCKED_RESOURCES", nil),
			InstallPlaywright:    envBoolOr("URLGRAB_PLAYWRIGHT_INSTALL", false),
		},
		Session: SessionConfig{
			MaxAttempts:       envIntOr("URLGRAB_MAX_ATTEMPTS", 3),
			InitialBackoff:    envDurationOr("URLGRAB_RETRY_INITIAL", 500*time.Millisecond),
			BackoffMultiplier: envFloatOr("URLGRAB_RETRY_MULTIPLIER", 2),
			MaxBackoff:        envDurationOr("URLGRAB_RETRY_MAX", 5*time.Second),
			SettleMin:         envDurationOr("URLGRAB_SETTLE_MIN", 6*time.Second),
			SettleMax:         envDurationOr("URLGRAB_SETTLE_MAX", 9*time.Second),
			NavigationTimeout: envDurationOr("URLGRAB_NAV_TIMEOUT", 30*time.Second),
			Timeout:           envDurationOr("URLGRAB_TIMEOUT", 120*time.Second),
		},
		Agent: AgentConfig{
			MaxSteps:      envIntOr("URLGRAB_AGENT_MAX_STEPS", 8),
			TextMode:      strings.ToLower(envOr("URLGRAB_AGENT_TEXT_MODE", "visible")),
			MaxTextTokens: envIntOr("URLGRAB_AGENT_MAX_TEXT_TOKENS", 8000),
		},
		LLM: LLMConfig{
			Provider:  provider,
			APIKey:    envOr("URLGRAB_LLM_API_KEY", providerKey(provider)),
			Model:     envOr("URLGRAB_LLM_MODEL", defaultModel(provider)),
			BaseURL:   os.Getenv("URLGRAB_LLM_BASE_URL"),
			MaxTokens: envIntOr("URLGRAB_LLM_MAX_TOKENS", 4096),
			Timeout:   envDurationOr("URLGRAB_LLM_TIMEOUT", 60*time.Second),
		},
		Server: ServerConfig{
			Host:          envOr("URLGRAB_HOST", "0.0.0.0"),
			Port:          envIntOr("URLGRAB_PORT", 8080),
			Mode:          envOr("URLGRAB_MODE", "release"),
			MaxConcurrent: envIntOr("URLGRAB_MAX_CONCURRENT", 2),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("URLGRAB_AUTH_ENABLED", true),
			APIKeys: envSliceOr("URLGRAB_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("URLGRAB_RATE_RPS", 1.0),
			Burst:             envIntOr("URLGRAB_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("URLGRAB_LOG_LEVEL", "info"),
			Format: envOr("URLGRAB_LOG_FORMAT", "json"),
		},
	}
}

// providerKey falls back to the provider SDK's conventional variable.
func providerKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5"
	default:
		return "gpt-4o-mini"
	}
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

// envMapOr parses "k=v,k2=v2". Entries without "=" are skipped.
func envMapOr(key string, fallback map[string]string) map[string]string {
	pairs := envSliceOr(key, nil)
	if len(pairs) == 0 {
		return fallback
	}
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
