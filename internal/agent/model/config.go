package model

// ================ Config ================
type ConversationConfig struct {
	CheckpointBackend string `envconfig:"CHECKPOINT_BACKEND" default:"memory"`
	CheckpointTTL     string `envconfig:"CHECKPOINT_TTL" default:"24h"`
	Router            struct {
		MaxTurns int `envconfig:"CONVERSATION_ROUTER_MAX_TURNS" default:"6"`
	}
	Tools struct {
		MaxIterations int `envconfig:"CONVERSATION_TOOL_MAX_ITERATIONS" default:"10"`
		Concurrency   int `envconfig:"CONVERSATION_TOOL_CONCURRENCY" default:"4"`
	}
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

type AgentModelConfig struct {
	Model          string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"AGENT_MAX_TOKENS" default:"4096"`
	Temperature    float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
	ThinkingBudget int32   `envconfig:"AGENT_THINKING_BUDGET" default:"2000"`
}

type PromptConfig struct {
	CompanyName string `envconfig:"PROMPT_COMPANY_NAME" default:"Acme Corp"`
}
