package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	RouterModel *model.RouterModelConfig
	AgentModel  *model.AgentModelConfig
	// RateLimitRPS throttles both models on one shared bucket; 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

// ChatModels holds the router model and the agent model shared by the
// context-retrieval and action nodes. Tools are bound per node.
type ChatModels struct {
	Router          einomodel.ToolCallingChatModel
	Agent           einomodel.ToolCallingChatModel
	RouterModelName string
	AgentModelName  string
}

// NewChatModels creates both Gemini chat models over one genai client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.RouterModel == nil || config.AgentModel == nil {
		return nil, fmt.Errorf("model configs are required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// Routing is a classification; it runs cold and without thinking.
	router, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterModel.Model,
		Temperature: &config.RouterModel.Temperature,
		MaxTokens:   &config.RouterModel.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	agent, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AgentModel.Model,
		Temperature: &config.AgentModel.Temperature,
		MaxTokens:   &config.AgentModel.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.AgentModel.ThinkingBudget),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	limiter := NewLimiter(config.RateLimitRPS, config.RateLimitBurst)
	return &ChatModels{
		Router:          WithRateLimit(router, limiter),
		Agent:           WithRateLimit(agent, limiter),
		RouterModelName: config.RouterModel.Model,
		AgentModelName:  config.AgentModel.Model,
	}, nil
}
