package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/security/secrets"
	"logpipe-hq/logpipe/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "logpipe",
	Short: "Logpipe - scoped log storage with live streams",
	Long: `Logpipe stores structured logs and serves them back over HTTP and WebSocket.

Logs are written under a caller key. Each key is its own scope: callers only
see logs written with their key, and every (logger, scope) pair keeps only
its most recent logs.

  - POST /write stores one log or a batch
  - GET /read queries with tag, time, level and id filters
  - GET /stream replays matching history, then follows new logs`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus LOGPIPE_* environment when unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the config file, if any, over defaults and environment,
// and resolves secret references.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	mgr, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return nil, cli.NewConfigError("secrets.dir", err.Error())
	}
	if err := mgr.ResolveConfig(context.Background(), cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}
