// Package config provides application-wide configuration.
// Values come from an optional YAML file overlaid by environment variables
// (env wins). All fields have safe defaults so the binary runs locally
// without any setup, apart from two secrets: JWT_SECRET (enforced by
// pkg/auth) and RELAY_KEY_SECRET (enforced at server startup).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for Relay.
type Config struct {
	// HTTP
	HTTPHost string `yaml:"http_host"` // RELAY_HTTP_HOST — default: "0.0.0.0"
	HTTPPort int    `yaml:"http_port"` // RELAY_HTTP_PORT — default: 8080

	// Storage
	DBPath string `yaml:"db_path"` // RELAY_DB_PATH — default: "relay.db"

	// Outbound LLM requests
	RequestTimeout time.Duration `yaml:"request_timeout"` // RELAY_REQUEST_TIMEOUT — default: 60s

	// Provider base URL overrides (primarily for tests and proxies).
	OpenAIBaseURL    string `yaml:"openai_base_url"`    // RELAY_OPENAI_BASE_URL
	GroqBaseURL      string `yaml:"groq_base_url"`      // RELAY_GROQ_BASE_URL
	AnthropicBaseURL string `yaml:"anthropic_base_url"` // RELAY_ANTHROPIC_BASE_URL
	GoogleBaseURL    string `yaml:"google_base_url"`    // RELAY_GOOGLE_BASE_URL

	// KeyEncryptionSecret derives the AEAD key that encrypts stored API keys
	// at rest. The server refuses to start when it is empty.
	KeyEncryptionSecret string `yaml:"key_encryption_secret"` // RELAY_KEY_SECRET
}

const (
	envKeyHTTPHost         = "RELAY_HTTP_HOST"
	envKeyHTTPPort         = "RELAY_HTTP_PORT"
	envKeyDBPath           = "RELAY_DB_PATH"
	envKeyRequestTimeout   = "RELAY_REQUEST_TIMEOUT"
	envKeyOpenAIBaseURL    = "RELAY_OPENAI_BASE_URL"
	envKeyGroqBaseURL      = "RELAY_GROQ_BASE_URL"
	envKeyAnthropicBaseURL = "RELAY_ANTHROPIC_BASE_URL"
	envKeyGoogleBaseURL    = "RELAY_GOOGLE_BASE_URL"
	envKeyKeySecret        = "RELAY_KEY_SECRET"
	envKeyConfigFile       = "RELAY_CONFIG"
)

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		HTTPHost:       "0.0.0.0",
		HTTPPort:       8080,
		DBPath:         "relay.db",
		RequestTimeout: 60 * time.Second,
	}
}

// Load builds the effective configuration: defaults, then the YAML file named
// by RELAY_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadFile overlays values from a YAML file onto cfg.
// yaml.Unmarshal leaves fields absent from the file untouched, so the
// defaults survive a partial file.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables onto cfg. Env always wins.
func applyEnv(cfg *Config) {
	cfg.HTTPHost = envOr(envKeyHTTPHost, cfg.HTTPHost)
	cfg.DBPath = envOr(envKeyDBPath, cfg.DBPath)
	cfg.OpenAIBaseURL = envOr(envKeyOpenAIBaseURL, cfg.OpenAIBaseURL)
	cfg.GroqBaseURL = envOr(envKeyGroqBaseURL, cfg.GroqBaseURL)
	cfg.AnthropicBaseURL = envOr(envKeyAnthropicBaseURL, cfg.AnthropicBaseURL)
	cfg.GoogleBaseURL = envOr(envKeyGoogleBaseURL, cfg.GoogleBaseURL)
	cfg.KeyEncryptionSecret = envOr(envKeyKeySecret, cfg.KeyEncryptionSecret)

	if v := os.Getenv(envKeyHTTPPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv(envKeyRequestTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
