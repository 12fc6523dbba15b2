package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vigil/internal/app"
	"vigil/internal/config"
	"vigil/internal/dao"
	"vigil/internal/models"
	"vigil/internal/services"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/modules"
)

// Config holds the scan command's flags.
type Config struct {
	Target     string
	Modules    []string
	Timeout    int
	Parallel   bool
	Verbose    bool
	ConfigPath string
}

func loadConfig(path string, verbose bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logrus.DebugLevel
	}
	log := logger.NewLogger(level)
	log.SetOutput(os.Stderr)
	logger.SetLevel(level)
	return cfg, log, nil
}

// NewScanCommand creates the one-shot scan command. It keeps results in
// memory and prints the scan's events as they happen.
func NewScanCommand() *cobra.Command {
	conf := &Config{}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan and follow its log",
		Long:  `Run the selected modules against a target, print every progress event and summarise the findings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := loadConfig(conf.ConfigPath, conf.Verbose)
			if err != nil {
				return err
			}
			if conf.Parallel {
				cfg.Scan.ExecutionMode = modules.ExecutionParallel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runScan(ctx, cmd.OutOrStdout(), cfg, log, conf)
		},
	}

	scanCmd.Flags().StringVarP(&conf.Target, "target", "t", "", "Target URL to scan (required)")
	scanCmd.Flags().StringSliceVarP(&conf.Modules, "module", "m", nil, "Module to run, repeatable (defaults to the catalogue defaults)")
	scanCmd.Flags().IntVar(&conf.Timeout, "timeout", 0, "Per-module timeout in seconds")
	scanCmd.Flags().BoolVar(&conf.Parallel, "parallel", false, "Run modules in parallel")
	scanCmd.Flags().BoolVarP(&conf.Verbose, "verbose", "v", false, "Enable verbose logging")
	scanCmd.Flags().StringVarP(&conf.ConfigPath, "config", "c", "", "Path to the configuration file")

	scanCmd.MarkFlagRequired("target")

	return scanCmd
}

func runScan(ctx context.Context, out io.Writer, cfg *config.Config, log *logger.Logger, conf *Config) error {
	store := dao.NewMemoryScanDAO()

	// The id is fixed up front so the log can be followed from the first
	// event on.
	scanID := services.NewScanID(time.Now())
	core, err := app.NewCore(app.Options{
		Config: cfg,
		Store:  store,
		Logger: log,
		NewID:  func(time.Time) string { return scanID },
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := core.Close(closeCtx); err != nil {
			log.WithError(err).Warn("Scan did not shut down cleanly")
		}
	}()

	sub := core.Hub.Subscribe(ctx, scanID)
	defer sub.Close()

	scan, err := core.Orchestrator.StartScan(ctx, services.ScanRequest{
		Target:  conf.Target,
		Modules: conf.Modules,
		Timeout: conf.Timeout,
	})
	if err != nil {
		return err
	}

	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		printEvent(out, ev)
	}

	final, err := store.GetScan(context.Background(), scan.ScanID)
	if err != nil {
		return err
	}
	printSummary(out, final)

	if final.Status != models.StatusSuccess {
		return fmt.Errorf("scan %s finished with status %s", final.ScanID, final.Status)
	}
	return nil
}

func printEvent(w io.Writer, ev hub.Event) {
	module := ev.Module
	if module == "" {
		module = "-"
	}
	fmt.Fprintf(w, "%s [%-9s] %-8s %s\n", ev.Timestamp.Local().Format("15:04:05"), ev.Type, module, ev.Message)
}

func printSummary(w io.Writer, scan *models.Scan) {
	fmt.Fprintf(w, "\nScan %s: %s\n", scan.ScanID, scan.Status)
	fmt.Fprintln(w, strings.Repeat("=", 40))

	for _, r := range scan.Results {
		fmt.Fprintf(w, "• %-10s %-8s %d finding(s) in %dms\n", r.Module, r.Status, len(r.Findings), r.DurationMS)
		if r.Error != nil {
			fmt.Fprintf(w, "  error: %s\n", *r.Error)
		}

		findings := append([]models.Finding(nil), r.Findings...)
		sort.SliceStable(findings, func(i, j int) bool {
			return findings[i].Severity.Rank() > findings[j].Severity.Rank()
		})
		for _, f := range findings {
			fmt.Fprintf(w, "  - [%s] %s\n", f.Severity, f.Title)
		}
	}
}

// NewModulesCommand lists the module catalogue.
func NewModulesCommand() *cobra.Command {
	var configPath string

	modulesCmd := &cobra.Command{
		Use:   "modules",
		Short: "List available scan modules",
		Long:  `List every registered module, its category and whether it runs by default`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := loadConfig(configPath, false)
			if err != nil {
				return err
			}
			log.SetLevel(logrus.WarnLevel)

			core, err := app.NewCore(app.Options{Config: cfg, Store: dao.NewMemoryScanDAO(), Logger: log})
			if err != nil {
				return err
			}
			defer core.Close(context.Background())

			catalogue := services.NewConfigService(core.Registry, core.Catalogue.ExecutionMode).GetScanModules()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Available Modules (%s):\n", catalogue.ExecutionMode)
			fmt.Fprintln(out, "========================")
			for _, m := range catalogue.Modules {
				marker := " "
				if m.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "\n%s %s (%s)\n", marker, m.Name, m.Category)
				if m.Description != "" {
					fmt.Fprintf(out, "  Description: %s\n", m.Description)
				}
			}
			fmt.Fprintln(out, "\n* runs when a scan selects no modules")
			return nil
		},
	}

	modulesCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	return modulesCmd
}
