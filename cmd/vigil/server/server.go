package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vigil/api/routes"
	"vigil/internal/app"
	"vigil/internal/config"
	"vigil/internal/dao"
	"vigil/internal/database"
	"vigil/internal/handlers"
	"vigil/internal/metrics"
	"vigil/internal/services"
	"vigil/internal/telemetry"
	"vigil/pkg/logger"
)

type ServerOpts struct {
	Port       int
	ConfigPath string
	Verbose    bool
}

func NewServerCommand() *cobra.Command {
	opts := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Vigil API server",
		Long:  `Start the Vigil API server to accept scans, report their status and stream their logs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), opts)
		},
	}

	serverCmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Port to run the server on (overrides server.port)")
	serverCmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the configuration file")
	serverCmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose logging")

	return serverCmd
}

func run(ctx context.Context, opts *ServerOpts) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	log := logger.NewLogger(level)
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
	}()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	store := dao.NewScanDAO(db)
	m := metrics.New()

	core, err := app.NewCore(app.Options{
		Config:           cfg,
		Store:            store,
		Logger:           log,
		Metrics:          m,
		CompletionLookup: true,
	})
	if err != nil {
		return err
	}

	if level != logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.InitRouter(routes.Deps{
		ScanService:   services.NewScanService(core.Orchestrator, store, log),
		ConfigService: services.NewConfigService(core.Registry, core.Catalogue.ExecutionMode),
		Hub:           core.Hub,
		Targets:       handlers.NewTargetValidator(cfg.Server.AllowPrivateTargets),
		Ping:          func(ctx context.Context) error { return database.Ping(ctx, db) },
		Metrics:       m.Handler(),
		RateLimit:     cfg.Server.RateLimit,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{"addr": srv.Addr}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Event streams stay open until their scan completes, so scans are
	// drained before the listener is shut down.
	if err := core.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Running scans did not finish before shutdown")
	}
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown incomplete")
	}

	log.Info("Server stopped")
	return nil
}
