package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
	// JSONC comments and trailing commas are allowed
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"models": {
		"default": "r1",
		"providers": {
			"r1": {
				"driver": "deepseek",
				"model": "deepseek-reasoner",
				"label": "DeepSeek-R1",
				"auth": {
					"api_key": "${{ .Env.DEEPSEEK_API_KEY }}"
				},
				"max_tokens": 4096,
				"timeout": "90s"
			}
		}
	},
	"market": {"interval": "10s", "per_page": 20},
}`)

	t.Setenv("DEEPSEEK_API_KEY", `key-with-"quote"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Addr() != "0.0.0.0:9999" {
		t.Errorf("expected addr 0.0.0.0:9999, got %s", cfg.Gateway.Addr())
	}
	if cfg.Models.Default != "r1" {
		t.Errorf("expected default r1, got %s", cfg.Models.Default)
	}

	p, ok := cfg.Models.Providers["r1"]
	if !ok {
		t.Fatal("expected r1 provider")
	}
	if p.Auth.APIKey != `key-with-"quote"` {
		t.Errorf("expected expanded api_key, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", p.MaxTokens)
	}
	if p.Timeout.Duration() != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", p.Timeout.Duration())
	}
	if cfg.Market.Interval.Duration() != 10*time.Second {
		t.Errorf("expected market interval 10s, got %v", cfg.Market.Interval.Duration())
	}
	if cfg.Market.PerPage != 20 {
		t.Errorf("expected per_page 20, got %d", cfg.Market.PerPage)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18430 {
		t.Errorf("expected default port 18430, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Events.LogLevel != "info" {
		t.Errorf("expected default log_level info, got %q", cfg.Events.LogLevel)
	}
	if cfg.Chat.Greeting != DefaultGreeting {
		t.Errorf("unexpected greeting %q", cfg.Chat.Greeting)
	}
	if cfg.Market.Interval.Duration() != 5*time.Second {
		t.Errorf("expected market interval 5s, got %v", cfg.Market.Interval.Duration())
	}
	if cfg.Market.VSCurrency != "usd" || cfg.Market.PerPage != 10 {
		t.Errorf("unexpected market defaults: %+v", cfg.Market)
	}
}

func TestLoadDefaults_Providers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Models.Default != "deepseek-chat" {
		t.Errorf("expected default deepseek-chat, got %q", cfg.Models.Default)
	}
	for name, label := range map[string]string{"deepseek-chat": "DeepSeek-V3", "deepseek-reasoner": "DeepSeek-R1"} {
		p, ok := cfg.Models.Providers[name]
		if !ok {
			t.Fatalf("missing default provider %s", name)
		}
		if p.Driver != "deepseek" || p.Label != label {
			t.Errorf("%s: unexpected provider %+v", name, p)
		}
	}
}

func TestLoad_SingleProviderBecomesDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"models": {"providers": {"local": {"driver": "ollama", "model": "llama3"}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Default != "local" {
		t.Errorf("expected default local, got %q", cfg.Models.Default)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `{"gateway": }`},
		{"unknown default", `{"models": {"default": "nope", "providers": {"a": {"driver": "openai"}}}}`},
		{"missing driver", `{"models": {"providers": {"a": {"model": "x"}}}}`},
		{"bad duration", `{"market": {"interval": "soon"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Gateway.Port != 18430 {
		t.Errorf("expected defaults, got port %d", cfg.Gateway.Port)
	}
}

func TestDuration_Seconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"market": {"interval": 15}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Market.Interval.Duration() != 15*time.Second {
		t.Errorf("expected 15s, got %v", cfg.Market.Interval.Duration())
	}
}
