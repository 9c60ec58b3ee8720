package models

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

// NewMistral creates a Mistral AI ChatModel via the OpenAI-compatible API.
func NewMistral(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	return newOpenAICompatible(ctx, cfg, auth, openAIDefaults{
		provider: "mistral",
		baseURL:  "https://api.mistral.ai/v1",
		model:    "mistral-small-latest",
		timeout:  5 * time.Minute,
	})
}
