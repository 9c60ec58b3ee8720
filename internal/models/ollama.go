package models

import (
	"context"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates an Ollama ChatModel.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	modelConfig := &einoollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: 300 * time.Second,
	}
	if modelConfig.BaseURL == "" {
		modelConfig.BaseURL = defaultOllamaBaseURL
	}
	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	}

	opts := &einoollama.Options{NumPredict: cfg.MaxTokens}
	if v, ok := floatOption(cfg.Options, "temperature"); ok {
		opts.Temperature = v
	}
	if v, ok := floatOption(cfg.Options, "top_p"); ok {
		opts.TopP = v
	}
	if v, ok := intOption(cfg.Options, "num_ctx"); ok {
		opts.NumCtx = v
	}
	if v, ok := intOption(cfg.Options, "num_predict"); ok {
		opts.NumPredict = v
	}
	if v, ok := intOption(cfg.Options, "top_k"); ok {
		opts.TopK = v
	}
	modelConfig.Options = opts

	modelConfig.HTTPClient = newHTTPClient("ollama", modelConfig.Timeout)

	return einoollama.NewChatModel(ctx, modelConfig)
}
