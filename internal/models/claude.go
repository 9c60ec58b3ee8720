package models

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

const (
	defaultClaudeModel     = "claude-sonnet-4-5"
	defaultClaudeMaxTokens = 4096
)

// NewClaude creates an Anthropic ChatModel.
func NewClaude(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelConfig := &claude.Config{
		APIKey:    auth.Value,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	if modelConfig.Model == "" {
		modelConfig.Model = defaultClaudeModel
	}
	if modelConfig.MaxTokens == 0 {
		modelConfig.MaxTokens = defaultClaudeMaxTokens
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	if temp, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &temp
	}

	return claude.NewChatModel(ctx, modelConfig)
}
