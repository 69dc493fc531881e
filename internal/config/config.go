package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	DelayModeDeferred = "deferred"
	DelayModeInline   = "inline"
)

type Config struct {
	Port        string `koanf:"port"`
	VerifyToken string `koanf:"verify_token"`
	JWTSecret   string `koanf:"jwt_secret"`

	DBDriver    string `koanf:"db_driver"`
	DBPath      string `koanf:"db_path"`
	DatabaseURL string `koanf:"database_url"`

	GraphAPIBaseURL string  `koanf:"graph_api_base_url"`
	GraphAPIRPS     float64 `koanf:"graph_api_rps"`

	BatchSize          int           `koanf:"batch_size"`
	MaxFlowSteps       int           `koanf:"max_flow_steps"`
	DelayMode          string        `koanf:"delay_mode"`
	InlineDelayCeiling time.Duration `koanf:"inline_delay_ceiling"`
	ResumePollInterval time.Duration `koanf:"resume_poll_interval"`
	RiverEnabled       bool          `koanf:"river_enabled"`
	RiverMaxWorkers    int           `koanf:"river_max_workers"`

	LogLevel  string `koanf:"log_level"`
	LogPretty bool   `koanf:"log_pretty"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                 "8080",
		"db_driver":            "sqlite",
		"db_path":              "./automation.db",
		"graph_api_base_url":   "https://graph.facebook.com/v19.0",
		"graph_api_rps":        5.0,
		"batch_size":           50,
		"max_flow_steps":       100,
		"delay_mode":           DelayModeDeferred,
		"inline_delay_ceiling": "60s",
		"resume_poll_interval": "30s",
		"river_enabled":        false,
		"river_max_workers":    5,
		"log_level":            "info",
		"log_pretty":           false,
	}
}

// LoadConfig layers defaults, an optional TOML file named by CONFIG_FILE and
// the process environment (after .env has been loaded).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file loaded")
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	known := defaults()
	for _, key := range []string{"verify_token", "jwt_secret", "database_url"} {
		known[key] = nil
	}
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres")
	}
	if c.RiverEnabled && c.DBDriver != "postgres" {
		return fmt.Errorf("RIVER_ENABLED requires DB_DRIVER=postgres")
	}
	switch c.DelayMode {
	case DelayModeDeferred, DelayModeInline:
	default:
		return fmt.Errorf("unsupported DELAY_MODE %q", c.DelayMode)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxFlowSteps <= 0 {
		c.MaxFlowSteps = 100
	}
	return nil
}
