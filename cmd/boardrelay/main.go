package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
}

// load reads the configuration and builds the logger. Subcommands run it as
// their PreRunE, so help and completion work without a valid config.
func (a *app) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging, a.verbose)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) sync(cmd *cobra.Command, args []string) {
	if a.logger != nil {
		a.logger.Sync()
	}
}

// buildLogger returns a production logger unless development output is
// configured or --verbose is set. --verbose also forces debug level.
func buildLogger(logCfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if logCfg.Level != "" {
		if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
	}
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}

	zapConfig := zap.NewProductionConfig()
	if verbose || logCfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	zapConfig.DisableStacktrace = !zapConfig.Development

	if logCfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(logCfg.File), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logCfg.File)
	}

	return zapConfig.Build()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "boardrelay",
		Short:         "Real-time relay for a shared whiteboard session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", os.Getenv("BOARDRELAY_CONFIG"), "config file path (or set BOARDRELAY_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	for _, sub := range []*cobra.Command{serveCmd(a), replayCmd(a)} {
		sub.PreRunE = a.load
		sub.PostRun = a.sync
		root.AddCommand(sub)
	}

	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
