package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cyclesdojo/internal/config"
	"cyclesdojo/internal/ledger"
	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/pipeline"
	"cyclesdojo/internal/simulator"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dojo",
	Short: "cyclesdojo - Cycles planting date pipeline",
	Long: `cyclesdojo runs the Cycles crop simulator over every administrative
unit of a country and derives a reference planting day per crop.

Stages:
  simulate   one (country, crop, planting day) scenario
  sweep      every crop x country x candidate day, with absolute days
  reference  pick each unit's best candidate day and enrich the cropland table`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err = config.Load(resolveConfigPath(ws))
		if err != nil {
			return err
		}
		resolvePaths(cfg, ws)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := logging.Initialize(ws, cfg.Logging.Settings()); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		logging.Boot("Command %s, config %s", cmd.CommandPath(), resolveConfigPath(ws))
		logging.BootDebug("Resources %s, cropland %s, outputs %s, ledger %s",
			cfg.Paths.Resources, cfg.Paths.Cropland, cfg.Paths.OutputDir, cfg.Ledger.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.dojo/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall operation timeout (0 disables)")

	// Add commands to root
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(referenceCmd)
	rootCmd.AddCommand(wrapperCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, ".dojo", "config.yaml")
}

// resolvePaths anchors relative paths at the workspace.
func resolvePaths(c *config.Config, ws string) {
	for _, p := range []*string{
		&c.Paths.Resources, &c.Paths.Cropland, &c.Paths.Enriched, &c.Paths.Agronomy,
		&c.Paths.CropsFile, &c.Paths.SoilWeatherDir, &c.Paths.TmpDir, &c.Paths.OutputDir,
		&c.Simulator.RunScript, &c.Simulator.ControlTemplate, &c.Ledger.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(ws, *p)
		}
	}
}

// commandContext returns a context canceled on SIGINT/SIGTERM or after --timeout.
func commandContext() (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func newExecutor() *simulator.DirectExecutor {
	exec := simulator.NewDirectExecutorWithConfig(cfg.ExecutorConfig())
	exec.SetAuditCallback(func(ev simulator.AuditEvent) {
		fields := []zap.Field{zap.String("event", string(ev.Type)), zap.String("point", ev.Command.Point)}
		if ev.Result != nil {
			fields = append(fields, zap.Int("exit_code", ev.Result.ExitCode), zap.Duration("duration", ev.Result.Duration))
		}
		logger.Debug("Simulator", fields...)
	})
	return exec
}

// newDriver wires the simulator runner and, when enabled, the run ledger.
// The returned cleanup closes the ledger.
func newDriver() (*pipeline.Driver, func(), error) {
	runner := simulator.NewRunner(newExecutor(), simulator.RunnerConfig{
		Script:         cfg.Simulator.RunScript,
		SoilWeatherDir: cfg.Paths.SoilWeatherDir,
		CropsFile:      cfg.Paths.CropsFile,
		Timeout:        cfg.GetSimulatorTimeout(),
		WorkDir:        cfg.Execution.WorkingDirectory,
	})
	deps := pipeline.Deps{Runner: runner}
	cleanup := func() {}

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		deps.Recorder = l
		cleanup = func() {
			if err := l.Close(); err != nil {
				logger.Warn("Failed to close ledger", zap.Error(err))
			}
		}
		logger.Debug("Ledger opened", zap.String("path", l.Path()))
	}
	return pipeline.New(cfg, deps), cleanup, nil
}
