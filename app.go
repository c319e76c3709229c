package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hrassist/server/internal/agent/graph"
	"github.com/hrassist/server/internal/agent/graph/nodes"
	"github.com/hrassist/server/internal/agent/model"
	"github.com/hrassist/server/internal/agent/repo"
	"github.com/hrassist/server/internal/core"
	logx "github.com/hrassist/server/pkg/logger"
	pkgredis "github.com/hrassist/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the assistant, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis      pkgredis.Config
	HRDriver   string `envconfig:"HRDATA_DRIVER" default:"sqlite"`
	HRDSN      string `envconfig:"HRDATA_DSN" default:"hrdata.db"`
	ServerAddr string `envconfig:"SERVER_ADDR" default:":8080"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
	// Provider request throttle shared by both models; 0 disables it.
	RateLimitRPS   float64 `envconfig:"GEMINI_RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"GEMINI_RATE_LIMIT_BURST" default:"5"`

	// Agent configs
	Router       model.RouterModelConfig
	Agent        model.AgentModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

func loadConfig(envFile string) (*AppConfig, error) {
	if err := godotenv.Load(envFile); err != nil {
		// .env is optional outside local runs
		logx.Debug().Err(err).Str("file", envFile).Msg("No env file loaded")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Env), Level: cfg.LogLevel})
	return &cfg, nil
}

// app holds the long-lived dependencies of one process.
type app struct {
	runner  *graph.Runner
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("Close failed")
		}
	}
}

func openHRRepository(ctx context.Context, cfg *AppConfig) (model.HRRepository, error) {
	switch strings.ToLower(cfg.HRDriver) {
	case "sqlite":
		r, err := repo.NewSQLiteHRRepository(ctx, cfg.HRDSN)
		if err != nil {
			return nil, err
		}
		if err := r.Seed(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	case "postgres":
		return repo.NewPostgresHRRepository(ctx, cfg.HRDSN)
	default:
		return nil, fmt.Errorf("unknown HRDATA_DRIVER %q (want sqlite or postgres)", cfg.HRDriver)
	}
}

func openCheckpointStore(ctx context.Context, cfg *AppConfig) (model.CheckpointStore, func() error, error) {
	switch strings.ToLower(cfg.Conversation.CheckpointBackend) {
	case "", "memory":
		if core.ParseEnvironment(cfg.Env).IsProduction() {
			logx.Warn().Msg("Checkpoints are kept in memory and are lost on restart")
		}
		return repo.NewMemoryCheckpointStore(), func() error { return nil }, nil
	case "redis":
		ttl, err := time.ParseDuration(cfg.Conversation.CheckpointTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid CHECKPOINT_TTL %q: %w", cfg.Conversation.CheckpointTTL, err)
		}
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise redis client: %w", err)
		}
		logx.Info().Dur("ttl", ttl).Msg("Connected to Redis successfully")
		return repo.NewRedisCheckpointStore(rdb, ttl), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown CHECKPOINT_BACKEND %q (want memory or redis)", cfg.Conversation.CheckpointBackend)
	}
}

// newApp wires the HR repository, checkpoint store and chat models into a runner.
func newApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	a := &app{}

	hr, err := openHRRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, hr.Close)

	store, closeStore, err := openCheckpointStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		RouterModel: &cfg.Router,
		AgentModel:  &cfg.Agent,

		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner, err = graph.NewRunner(ctx, graph.Config{
		ChatModels:   cms,
		HR:           hr,
		Checkpoints:  store,
		Conversation: cfg.Conversation,
		Prompt:       cfg.Prompt,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
