// Package config loads the coinchat JSONC configuration.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Config is the root configuration for coinchat.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Models  ModelsConfig  `json:"models"`
	Market  MarketConfig  `json:"market"`
	Chat    ChatConfig    `json:"chat"`
	Events  EventsConfig  `json:"events"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default string `json:"default"`
	// CatalogURL, when set, is queried for the list of selectable models
	// instead of the configured providers.
	CatalogURL string                    `json:"catalog_url,omitempty"`
	Providers  map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // openai, deepseek, ollama, claude, gemini
	Model     string         `json:"model"`
	Label     string         `json:"label,omitempty"`
	Disabled  bool           `json:"disabled,omitempty"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // literal key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`   // bearer token, preferred over APIKey
}

// MarketConfig configures the market data poller.
type MarketConfig struct {
	BaseURL           string   `json:"base_url,omitempty"`
	VSCurrency        string   `json:"vs_currency"`
	PerPage           int      `json:"per_page"`
	Interval          Duration `json:"interval"`
	RequestsPerMinute int      `json:"requests_per_minute"`
	Disabled          bool     `json:"disabled,omitempty"`
}

// ChatConfig configures new chat sessions.
type ChatConfig struct {
	Greeting     string `json:"greeting"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"`
	// LogDir, when set, receives a JSONL trace of bus events per session.
	LogDir string `json:"log_dir,omitempty"`
}

// Validate checks cross-field constraints once defaults are applied.
func (c *Config) Validate() error {
	if c.Models.Default != "" && len(c.Models.Providers) > 0 {
		if _, ok := c.Models.Providers[c.Models.Default]; !ok {
			return fmt.Errorf("models.default %q is not a configured provider", c.Models.Default)
		}
	}
	for name, p := range c.Models.Providers {
		if p.Driver == "" {
			return fmt.Errorf("models.providers.%s: driver is required", name)
		}
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	return nil
}

// Duration wraps time.Duration for JSON. It accepts "5s"-style strings or a
// number of seconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		secs, perr := strconv.ParseFloat(string(b), 64)
		if perr != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
