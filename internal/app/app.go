// Package app wires the scan core shared by the server and the one-shot CLI.
package app

import (
	"context"
	"errors"
	"os"
	"time"

	"vigil/internal/config"
	"vigil/internal/dao"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/notification"
	"vigil/internal/services"
	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/engine"
	"vigil/pkg/hooks"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
	"vigil/pkg/runner"
)

type Options struct {
	Config *config.Config
	Store  dao.ScanDAO
	Logger *logger.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
	// Runner defaults to a SimpleRunner.
	Runner runner.CommandRunner
	// Catalogue skips loading Config.Scan.ModulesFile when set.
	Catalogue *modules.Catalogue
	// NewID overrides scan id generation.
	NewID func(time.Time) string
	// CompletionLookup lets the hub answer late observers of old scans.
	CompletionLookup bool
}

// Core is everything needed to accept, run and observe scans.
type Core struct {
	Catalogue    *modules.Catalogue
	Registry     *modules.Registry
	Hub          *hub.Hub
	Engine       *engine.Engine
	Orchestrator *services.Orchestrator
	Hooks        []hooks.Hook

	logger  *logger.Logger
	discord *notification.NotificationClient
}

func NewCore(opts Options) (*Core, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	cat := opts.Catalogue
	if cat == nil {
		var err error
		cat, err = modules.LoadCatalogue(cfg.Scan.ModulesFile)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Scan.OutputDir != "" {
		cat.OutputDir = cfg.Scan.OutputDir
	}
	mode := cat.ExecutionMode
	if cfg.Scan.ExecutionMode != "" {
		mode = cfg.Scan.ExecutionMode
	}
	cat.ExecutionMode = mode

	cmdRunner := opts.Runner
	if cmdRunner == nil {
		cmdRunner = runner.NewSimpleRunner(log)
	}
	registry, err := modules.BuildRegistry(cat, runner.NewDockerRunner(cmdRunner, log), log)
	if err != nil {
		return nil, err
	}

	strategy, err := engine.StrategyFor(mode, cfg.Scan.ParallelLimit)
	if err != nil {
		return nil, vigilerrors.NewConfigError("execution_mode", mode, err.Error())
	}

	hubOpts := hub.Options{
		Keepalive:     cfg.Hub.Keepalive,
		MailboxSize:   cfg.Hub.MailboxSize,
		CompletedRing: cfg.Hub.CompletedRing,
		Logger:        log,
	}
	var moduleObserver engine.ModuleObserver
	var scanObserver services.ScanObserver
	if opts.Metrics != nil {
		hubOpts.Observer = opts.Metrics
		moduleObserver = opts.Metrics
		scanObserver = opts.Metrics
	}
	if opts.CompletionLookup {
		hubOpts.Lookup = opts.Store.IsTerminal
	}
	h := hub.New(hubOpts)

	eng := engine.NewEngine(
		engine.WithLogger(log),
		engine.WithStrategy(strategy),
		engine.WithQueue(engine.NewEngineQueue(cfg.Scan.MaxConcurrent, log)),
		engine.WithExecutor(engine.NewExecutor(log, nil, moduleObserver)),
	)

	core := &Core{
		Catalogue: cat,
		Registry:  registry,
		Hub:       h,
		Engine:    eng,
		logger:    log,
	}
	core.Hooks = core.buildHooks(cfg)

	core.Orchestrator = services.NewOrchestrator(services.Options{
		Store:          opts.Store,
		Registry:       registry,
		Engine:         eng,
		Hub:            h,
		Observer:       scanObserver,
		Hooks:          core.Hooks,
		Logger:         log,
		WorkDir:        cfg.Scan.WorkDir,
		OutputDir:      cat.OutputDir,
		DefaultTimeout: cfg.Scan.DefaultTimeout,
		NewID:          opts.NewID,
	})

	log.WithFields(logger.Fields{
		"modules":        registry.Names(),
		"defaults":       registry.Defaults(),
		"execution_mode": mode,
		"max_concurrent": cfg.Scan.MaxConcurrent,
		"hooks":          len(core.Hooks),
	}).Info("Scan core ready")

	return core, nil
}

func (c *Core) buildHooks(cfg *config.Config) []hooks.Hook {
	var out []hooks.Hook
	if cfg.Scan.WorkDir != "" {
		out = append(out, &hooks.CombineOutput{Dir: cfg.Scan.WorkDir})
	}

	client, err := notification.NewNotificationClient(os.Getenv("DISCORD_TOKEN"), cfg.Notify.DiscordChannelID)
	switch {
	case errors.Is(err, vigilerrors.ErrDiscordNotConfigured):
		c.logger.Info("DISCORD_TOKEN or notify.discord_channel_id not set - Discord notifications disabled")
		return out
	case err != nil:
		c.logger.WithError(err).Warn("Failed to initialize Discord client")
		return out
	}
	c.discord = client

	minSeverity := models.ParseSeverity(cfg.Notify.MinSeverity)
	if cfg.Notify.PerFinding {
		out = append(out, &hooks.FindingNotifierHook{Client: client, MinSeverity: minSeverity, Logger: c.logger})
	} else {
		out = append(out, &hooks.NotifierHook{Client: client, MinSeverity: minSeverity})
	}
	c.logger.Info("Discord notifications enabled")
	return out
}

// Close waits for running scans, up to ctx, and releases the notifier.
func (c *Core) Close(ctx context.Context) error {
	err := c.Orchestrator.Shutdown(ctx)
	if c.discord != nil {
		if cerr := c.discord.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
