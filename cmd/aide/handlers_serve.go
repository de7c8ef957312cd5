package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/internal/agent/providers"
	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/canvas"
	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/internal/channels/discord"
	"github.com/haasonsaas/aide/internal/channels/slack"
	"github.com/haasonsaas/aide/internal/channels/telegram"
	"github.com/haasonsaas/aide/internal/compaction"
	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/gateway"
	"github.com/haasonsaas/aide/internal/identity"
	"github.com/haasonsaas/aide/internal/memory"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/security"
	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/internal/skills"
	"github.com/haasonsaas/aide/internal/storage"
	canvastool "github.com/haasonsaas/aide/internal/tools/canvas"
	"github.com/haasonsaas/aide/internal/tools/clock"
	"github.com/haasonsaas/aide/internal/tools/files"
	"github.com/haasonsaas/aide/internal/verify"
	"github.com/haasonsaas/aide/internal/x402"
)

// runServe implements the serve command: configuration loading, component
// wiring, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Observability.Logging.Level
	if debug {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  logLevel,
		Format: cfg.Observability.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	logger.Info("starting aide gateway",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	metrics := observability.Default()

	if cfg.Observability.Tracing.Enabled {
		_, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName:  cfg.Observability.Tracing.ServiceName,
			Environment:  cfg.Observability.Tracing.Environment,
			Endpoint:     cfg.Observability.Tracing.Endpoint,
			SamplingRate: cfg.Observability.Tracing.SamplingRate,
			Insecure:     cfg.Observability.Tracing.Insecure,
		})
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	server, cleanup, err := buildServer(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	// Cancel on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	logger.Info("aide gateway started",
		"http_addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"http_enabled", cfg.Gateway.Enabled,
		"canvas", cfg.Canvas.Enabled,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadServeConfig loads the config file. A missing file is only acceptable
// at the default path, where built-in defaults keep a dev setup running.
func loadServeConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigName {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildServer wires every component behind the gateway. The returned cleanup
// releases resources the server does not own (storage handles) and is safe
// to call after Stop.
func buildServer(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*gateway.Server, func(), error) {
	engine := cfg.Engines["default"]

	policy, err := security.NewPolicy(security.Config{
		WorkspaceRoot:          cfg.Security.WorkspaceRoot,
		BlockedPaths:           cfg.Security.BlockedPaths,
		BlockedCommands:        cfg.Security.BlockedCommands,
		RedactPatterns:         cfg.Security.RedactPatterns,
		EnforceSymlinkBoundary: cfg.Security.EnforceSymlinkBoundary == nil || *cfg.Security.EnforceSymlinkBoundary,
		ConfirmExec:            cfg.Autonomy.RequireConfirmation,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("security policy: %w", err)
	}

	provider, err := buildProvider(cfg, engine, logger)
	if err != nil {
		return nil, nil, err
	}

	stores, err := openStores(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	cleanup := func() {
		if err := stores.Close(); err != nil {
			logger.Warn("close storage", "error", err)
		}
	}

	var summarizer compaction.Summarizer
	if cfg.Agent.CompactionStrategy != "drop_oldest" {
		summarizer = agent.NewProviderSummarizer(provider, engine.Model)
	}

	sessionManager := sessions.NewManager(sessions.Config{
		MaxTokens:           cfg.Agent.MaxTokens,
		CompactionThreshold: cfg.Agent.CompactionThreshold,
		CompactionStrategy:  cfg.Agent.CompactionStrategy,
		Summarizer:          summarizer,
		SteeringCap:         cfg.Agent.SteeringCap,
		Store:               stores.Sessions,
		Logger:              logger,
		Metrics:             metrics,
	})

	canvasManager := canvas.NewManager(canvas.Config{
		MaxComponents: cfg.Canvas.MaxComponents,
		Logger:        logger,
	})

	registry := agent.NewRegistry()
	fileCfg := files.Config{Workspace: policy.WorkspaceRoot()}
	for _, tool := range []agent.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		canvastool.NewTool(),
		clock.NewTool(),
	} {
		if err := registry.Register(tool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("register tool: %w", err)
		}
	}

	toolCtx := agent.ToolContext{
		Workspace:    policy.WorkspaceRoot(),
		Security:     policy,
		Canvas:       canvastool.NewPusher(canvasManager),
		SearchAPIKey: cfg.Search.APIKey,
	}
	var hooks agent.Hooks

	if cfg.Memory.Enabled {
		path := cfg.Memory.Path
		if path == "" {
			path = "memories.jsonl"
		}
		store, err := memory.NewFileStore(path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open memory store: %w", err)
		}
		toolCtx.Memory = store
		hooks.OnBeforeFirstRun = agent.MemoryRecallHook(store, 0)
	}
	if cfg.Skills.Dir != "" {
		toolCtx.Skills = skills.NewDirLoader(cfg.Skills.Dir, logger)
	}
	if len(cfg.Identity.Aliases) > 0 {
		toolCtx.Identity = identity.NewResolver(cfg.Identity.Aliases)
	}
	if cfg.X402.Enabled {
		signer, err := x402.NewHTTPSigner(cfg.X402.SignerURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("x402 signer: %w", err)
		}
		toolCtx.Signer = signer
	}

	loopCfg := agent.Config{
		Provider:             provider,
		Model:                engine.Model,
		MaxTokens:            cfg.Agent.MaxTokens,
		Registry:             registry,
		MaxIterations:        cfg.Agent.MaxIterations,
		MaxRetries:           cfg.Agent.MaxRetries,
		HeavyToolTimeout:     time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second,
		Security:             policy,
		Memory:               toolCtx.Memory,
		RetryOnFailure:       cfg.Agent.Verification.RetryOnFailure,
		EnableStateSnapshots: cfg.Agent.Verification.Enabled,
		Hooks:                hooks,
		ToolContext:          toolCtx,
		Logger:               logger,
	}
	if cfg.Agent.Verification.Enabled {
		verifyCfg := verify.Config{Logger: logger}
		if cfg.Agent.Verification.Semantic {
			verifyCfg.Judge = verify.NewJudge(provider, engine.Model)
		}
		loopCfg.Verifier = verify.New(verifyCfg)
	}

	loop, err := agent.NewLoop(loopCfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("agent loop: %w", err)
	}

	channelRegistry, err := buildChannels(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	server, err := gateway.NewServer(gateway.Options{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Auth:     auth.NewService(auth.Config{JWTSecret: cfg.Canvas.AuthSecret}),
		Sessions: sessionManager,
		Template: sessions.Template{
			EngineID:     "default",
			Provider:     engine.Provider,
			Model:        engine.Model,
			SystemPrompt: engine.SystemPrompt,
		},
		Loop:     loop,
		Channels: channelRegistry,
		Canvas:   canvasManager,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("gateway: %w", err)
	}
	return server, cleanup, nil
}

// buildProvider constructs the configured provider, falling back to the
// other vendor when the preferred one has no key and wrapping both in a
// failover when both are available.
func buildProvider(cfg *config.Config, engine config.EngineConfig, logger *slog.Logger) (agent.Provider, error) {
	anthropicKey := strings.TrimSpace(cfg.Providers.Anthropic.APIKey)
	if anthropicKey == "" {
		anthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	openaiKey := strings.TrimSpace(cfg.Providers.OpenAI.APIKey)
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}

	var anthropicProvider, openaiProvider agent.Provider
	if anthropicKey != "" {
		anthropicProvider = providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:     anthropicKey,
			BaseURL:    cfg.Providers.Anthropic.BaseURL,
			MaxRetries: cfg.Agent.MaxRetries,
		})
	}
	if openaiKey != "" {
		openaiProvider = providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:     openaiKey,
			BaseURL:    cfg.Providers.OpenAI.BaseURL,
			MaxRetries: cfg.Agent.MaxRetries,
		})
	}

	primary, secondary := anthropicProvider, openaiProvider
	if engine.Provider == "openai" {
		primary, secondary = openaiProvider, anthropicProvider
	}
	if primary == nil && secondary != nil {
		logger.Warn("preferred provider has no api key, using the other vendor",
			"preferred", engine.Provider)
		primary, secondary = secondary, nil
	}
	if primary == nil {
		return nil, errors.New("no provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY, or providers.*.api_key")
	}
	if secondary == nil {
		return primary, nil
	}

	foCfg := agent.DefaultFailoverConfig()
	foCfg.Logger = logger
	fo, err := agent.NewFailover([]agent.Provider{primary, secondary}, foCfg)
	if err != nil {
		return nil, fmt.Errorf("provider failover: %w", err)
	}
	return fo, nil
}

func openStores(cfg *config.Config) (storage.StoreSet, error) {
	if cfg.Storage.Driver == "sqlite" {
		return storage.NewSQLiteSet(cfg.Storage.Path)
	}
	return storage.NewMemorySet(), nil
}

func buildChannels(cfg *config.Config, logger *slog.Logger) (*channels.Registry, error) {
	registry := channels.NewRegistry()
	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.New(telegram.Config{
			Token:  cfg.Channels.Telegram.BotToken,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.New(discord.Config{
			Token:  cfg.Channels.Discord.BotToken,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Slack.Enabled {
		adapter, err := slack.New(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	return registry, nil
}
