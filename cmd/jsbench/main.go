// Command jsbench runs JavaScript micro-benchmarks in sandboxed execution
// contexts, either as an HTTP/WebSocket service or directly from suite files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/logging"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cmd := newRootCommand(cfg)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	cfg    *config.Config
	logger *logging.Logger
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg}
	var logLevel string

	root := &cobra.Command{
		Use:           "jsbench",
		Short:         "Sandboxed JavaScript benchmark engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logLevel != "" {
			a.cfg.Logging.Level = logLevel
		}
		logger, err := logging.New(logging.Config{
			Level:       a.cfg.Logging.Level,
			Development: a.cfg.Logging.Development,
		})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		a.logger = logger
		logger.Debug("command invocation", zap.String("command", cmd.Name()))
		return nil
	}
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if a.logger != nil {
			_ = a.logger.Sync()
		}
	}

	root.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newShareCommand(a),
		newUnshareCommand(a),
	)
	return root
}
