package models

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

const defaultDeepSeekBaseURL = "https://api.deepseek.com"

// NewDeepSeek creates a DeepSeek ChatModel over its OpenAI-compatible API.
// deepseek-reasoner streams its chain of thought as reasoning content.
func NewDeepSeek(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	return newOpenAICompatible(ctx, cfg, auth, openAIDefaults{
		provider: "deepseek",
		baseURL:  defaultDeepSeekBaseURL,
		model:    "deepseek-chat",
		timeout:  5 * time.Minute,
	})
}
