package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/config"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	noWatch       bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the logpipe server",
	Long: `Start the logpipe server with the specified configuration.

The server accepts logs on POST /write, answers queries on GET /read and
streams logs over WebSocket on GET /stream. When Kafka brokers are
configured, logs are also consumed from the configured topic.

A configuration file given with --config is watched: whitelist, max_logs
and the default format are applied without a restart.

Examples:
  # Start with defaults and LOGPIPE_* environment
  logpipe run

  # Start with a config file
  logpipe run --config /etc/logpipe/config.yaml

  # Override listen address
  logpipe run --listen 127.0.0.1:9000

  # Validate config without starting server
  logpipe run --config config.yaml --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address (host:port)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg); err != nil {
		return err
	}

	logger, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.NotifyShutdown(context.Background())
	defer stop()

	watchPath := cfgFile
	if runFlags.noWatch {
		watchPath = ""
	}
	a, err := newApp(cfg, watchPath, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.close()

	printBanner(out, cfg)
	if err := a.run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func applyRunOverrides(cfg *config.Config) error {
	if runFlags.listenAddress != "" {
		host, port, err := net.SplitHostPort(runFlags.listenAddress)
		if err != nil {
			return cli.NewConfigError("listen", err.Error())
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return cli.NewConfigError("listen", fmt.Sprintf("invalid port %q", port))
		}
		cfg.Server.Host = host
		cfg.Server.Port = p
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}
	return nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Logpipe v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(w, "✓ Configuration loaded from %s\n", cfgFile)
	}
	if cfg.Kafka.Enabled() {
		fmt.Fprintf(w, "✓ Consuming Kafka topic %q\n", cfg.Kafka.Topic)
	}

	base := serverURL(cfg)
	fmt.Fprintf(w, "✓ Listening on %s\n", cfg.Server.ListenAddress())
	fmt.Fprintf(w, "✓ Health endpoint: %s/health\n", base)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(w, "✓ Metrics endpoint: %s%s\n", base, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")
}
