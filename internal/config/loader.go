package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// DefaultGreeting opens every new conversation.
const DefaultGreeting = "👋 Hello! I’m your Crypto AI Assistant. I can provide you with real-time cryptocurrency prices, market insights, and risk analysis. 🚀 What would you like to explore today?"

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Parse decodes JSONC config bytes.
func Parse(data []byte) (*Config, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Templates live inside string literals; expand them on the standardized
	// JSON so values are escaped like any other string content.
	expanded := expandEnvTemplates(string(std))

	var cfg Config
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value,
// JSON-escaped.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		quoted, _ := json.Marshal(os.Getenv(parts[1]))
		return strings.Trim(string(quoted), `"`)
	})
}

// applyDefaults fills in zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}

	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers = map[string]ProviderConfig{
			"deepseek-chat":     {Driver: "deepseek", Model: "deepseek-chat", Label: "DeepSeek-V3"},
			"deepseek-reasoner": {Driver: "deepseek", Model: "deepseek-reasoner", Label: "DeepSeek-R1"},
		}
	}
	if cfg.Models.Default == "" {
		if _, ok := cfg.Models.Providers["deepseek-chat"]; ok {
			cfg.Models.Default = "deepseek-chat"
		} else if len(cfg.Models.Providers) == 1 {
			for name := range cfg.Models.Providers {
				cfg.Models.Default = name
			}
		}
	}

	if cfg.Market.VSCurrency == "" {
		cfg.Market.VSCurrency = "usd"
	}
	if cfg.Market.PerPage == 0 {
		cfg.Market.PerPage = 10
	}
	if cfg.Market.Interval == 0 {
		cfg.Market.Interval = Duration(5 * time.Second)
	}
	if cfg.Market.RequestsPerMinute == 0 {
		cfg.Market.RequestsPerMinute = 30
	}

	if cfg.Chat.Greeting == "" {
		cfg.Chat.Greeting = DefaultGreeting
	}

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
	// Auth resolution is deferred to models.ResolveAuth at model init time.
}
