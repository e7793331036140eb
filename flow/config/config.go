// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime settings. Every field binds to an
// environment variable; nothing is required so a bare environment still
// yields a usable (demo-capable) configuration.
type Config struct {
	// Provider API keys.
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	XAIAPIKey        string `envconfig:"XAI_API_KEY"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`

	// Degraded-mode controls.
	DemoMode        bool   `envconfig:"FLOWLINE_DEMO_MODE"`
	DisableFallback bool   `envconfig:"FLOWLINE_DISABLE_FALLBACK"`
	MockResponses   string `envconfig:"FLOWLINE_MOCK_RESPONSES"`

	// Web-research backend.
	ResearchAPIURL string `envconfig:"RESEARCH_API_URL" default:"https://api.firecrawl.dev"`
	ResearchAPIKey string `envconfig:"RESEARCH_API_KEY"`

	// Tool server catalog file (JSON). Empty disables catalog loading.
	ToolCatalogPath string `envconfig:"FLOWLINE_TOOL_CATALOG"`

	// Persistence. SQLitePath is used unless MySQLDSN is set.
	SQLitePath string `envconfig:"FLOWLINE_SQLITE_PATH"`
	MySQLDSN   string `envconfig:"FLOWLINE_MYSQL_DSN"`

	// Logging.
	LogLevel string `envconfig:"FLOWLINE_LOG_LEVEL" default:"info"`
}

// Load reads .env (when present) and binds the environment to a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigureLogging applies the configured level to the global zerolog
// logger. Unknown levels fall back to info.
func (c *Config) ConfigureLogging() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// Keys returns the provider keys as a name-indexed map, the shape the
// agent executor consumes.
func (c *Config) Keys() map[string]string {
	return map[string]string{
		"anthropic":  c.AnthropicAPIKey,
		"openai":     c.OpenAIAPIKey,
		"google":     c.GeminiAPIKey,
		"xai":        c.XAIAPIKey,
		"openrouter": c.OpenRouterAPIKey,
	}
}
