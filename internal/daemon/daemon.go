// Package daemon assembles and supervises the maestro service: provider,
// reasoning loop, tool registry, run cache, runner, gateway, and the
// config watcher.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/internal/config"
	"github.com/devlikebear/maestro/internal/logger"
	"github.com/devlikebear/maestro/internal/observability"
	"github.com/devlikebear/maestro/pkg/cache"
	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/gateway"
	"github.com/devlikebear/maestro/pkg/plantool"
	"github.com/devlikebear/maestro/pkg/reason"
	"github.com/devlikebear/maestro/pkg/tool"
)

// Daemon is the assembled maestro service.
type Daemon struct {
	config *config.Config
	logger zerolog.Logger

	cacheStore    *cache.Store
	runner        *engine.Runner
	gatewayServer *gateway.Server
	configWatcher *config.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	running bool
}

// New wires the daemon from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()
	zl := log.Zerolog()

	model, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	if err := registry.Register(plantool.CreateDefinition()); err != nil {
		return nil, fmt.Errorf("failed to register plan tool: %w", err)
	}
	if err := registry.Register(plantool.UpdateDefinition()); err != nil {
		return nil, fmt.Errorf("failed to register plan status tool: %w", err)
	}

	var cacheStore *cache.Store
	if cfg.Cache.Enabled {
		cacheStore, err = cache.NewStore(cache.Config{
			Path:   cfg.Cache.Path,
			TTL:    time.Duration(cfg.Cache.TTLHours) * time.Hour,
			Logger: zl,
		})
		if err != nil {
			// The cache is an accelerator; a broken cache must not keep
			// the daemon from starting.
			zl.Warn().Err(err).Msg("Run cache unavailable; continuing without it")
			cacheStore = nil
		}
	}

	runnerCfg := engine.RunnerConfig{
		Engine:              reason.NewLoop(model, zl),
		Tools:               registry,
		SystemPrompt:        cfg.Runner.SystemPrompt,
		RecursionLimit:      cfg.Runner.RecursionLimit,
		PlanMaxSteps:        cfg.Runner.PlanMaxSteps,
		PlanRequireApproval: cfg.Runner.PlanRequireApproval,
		PlanRevisionEnabled: cfg.Runner.PlanRevisionEnabled,
		ApprovalTimeout:     time.Duration(cfg.Runner.ApprovalTimeoutSeconds) * time.Second,
		Model:               cfg.AI.Model,
		Temperature:         cfg.AI.Temperature,
		Logger:              zl,
	}
	if cacheStore != nil {
		runnerCfg.Cache = cacheStore
	}

	runner, err := engine.NewRunner(runnerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	gatewayServer, err := gateway.NewServer(gateway.Config{
		Port:        cfg.Gateway.Port,
		Starter:     runner,
		Middlewares: []engine.Middleware{engine.NewLoggingMiddleware(zl)},
		Logger:      zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:        cfg,
		logger:        zl,
		cacheStore:    cacheStore,
		runner:        runner,
		gatewayServer: gatewayServer,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func buildModel(cfg *config.Config) (reason.ChatModel, error) {
	switch cfg.AI.Provider {
	case "anthropic":
		return reason.NewAnthropicModel(reason.AnthropicConfig{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
		}), nil
	case "openai":
		return reason.NewOpenAIModel(reason.OpenAIConfig{
			APIKey:      cfg.AI.APIKey,
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.AI.Provider)
	}
}

// Start brings up the gateway and the config watcher.
func (d *Daemon) Start(loader *config.Loader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("daemon already running")
	}

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	watcher, err := config.NewWatcher(loader, d.onConfigChange, d.logger)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Config watcher unavailable; live reload disabled")
	} else {
		d.configWatcher = watcher
	}

	d.running = true
	d.logger.Info().Int("port", d.config.Gateway.Port).Msg("Daemon started")
	return nil
}

// onConfigChange applies the subset of settings that can change without a
// restart: runner tuning, the log level, and a cache flush so stale
// replies built under the old settings cannot be replayed. Structural
// settings (provider, ports) require a restart.
func (d *Daemon) onConfigChange(cfg *config.Config) {
	d.mu.Lock()
	d.config.Runner = cfg.Runner
	d.config.Logging = cfg.Logging
	d.mu.Unlock()

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if d.cacheStore != nil {
		if err := d.cacheStore.Flush(d.ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Run cache flush on reload failed")
		}
	}

	d.logger.Info().Str("log_level", cfg.Logging.Level).Msg("Applied reloaded settings")
}

// Wait blocks until an interrupt or termination signal arrives.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-d.ctx.Done():
	}
}

// Stop shuts everything down in reverse start order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	d.cancel()

	if d.configWatcher != nil {
		if err := d.configWatcher.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Config watcher close failed")
		}
	}
	if err := d.gatewayServer.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Gateway shutdown failed")
	}
	if d.cacheStore != nil {
		if err := d.cacheStore.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Cache close failed")
		}
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}
