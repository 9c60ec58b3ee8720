package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

// openAIDefaults are the per-driver fallbacks for OpenAI-compatible APIs.
type openAIDefaults struct {
	provider string
	baseURL  string
	model    string
	timeout  time.Duration
}

// NewOpenAI creates an OpenAI ChatModel.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	return newOpenAICompatible(ctx, cfg, auth, openAIDefaults{
		provider: "openai",
		model:    "gpt-4o-mini",
		timeout:  60 * time.Second,
	})
}

func newOpenAICompatible(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth, def openAIDefaults) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  auth.Value,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	}
	if modelConfig.Model == "" {
		modelConfig.Model = def.model
	}
	if modelConfig.BaseURL == "" {
		modelConfig.BaseURL = def.baseURL
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	modelConfig.Timeout = def.timeout
	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	}

	if temp, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &temp
	}
	if topP, ok := floatOption(cfg.Options, "top_p"); ok {
		modelConfig.TopP = &topP
	}

	modelConfig.HTTPClient = newHTTPClient(def.provider, modelConfig.Timeout)

	return einoopenai.NewChatModel(ctx, modelConfig)
}

// floatOption reads a numeric provider option. JSON numbers decode as float64.
func floatOption(opts map[string]any, key string) (float32, bool) {
	v, ok := opts[key].(float64)
	return float32(v), ok
}

func intOption(opts map[string]any, key string) (int, bool) {
	v, ok := opts[key].(float64)
	return int(v), ok
}
