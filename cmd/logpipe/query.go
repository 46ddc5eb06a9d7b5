package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/config"
)

var queryFlags struct {
	filter filterFlags
	key    string
	output string
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored logs directly from the configured storage",
	Long: `Query stored logs directly from the configured storage, without a
running server. The caller key selects the scope to read and is checked
against the configured whitelist.

Logs are printed oldest first.

Examples:
  # Last 100 logs of the public scope
  logpipe query

  # Errors tagged db or cache from the last hour, as JSON lines
  logpipe query --filter db,cache --level ERROR --from 2024-03-01T11:00:00Z --output json

  # Logs written with a caller key
  logpipe query --key team-a --limit 20`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryFlags.filter.register(queryCmd)
	queryCmd.Flags().StringVarP(&queryFlags.key, "key", "k", os.Getenv(envAuthKey), "caller key (env "+envAuthKey+")")
	queryCmd.Flags().StringVarP(&queryFlags.output, "output", "o", "text", "output format (text, json, csv)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg, os.Stderr); err != nil {
		return err
	}
	output, err := cli.ParseOutputFormat(queryFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}

	w := cli.NewLogWriter(cmd.OutOrStdout(), output, output == cli.FormatText && cli.UseColor(os.Stdout))
	if err := queryStore(cmd.Context(), cfg, &queryFlags.filter, queryFlags.key, w); err != nil {
		return cli.NewCommandError("query", err)
	}
	return nil
}

// queryStore runs one Get against the configured storage and prints the
// result.
func queryStore(ctx context.Context, cfg *config.Config, flags *filterFlags, callerKey string, w *cli.LogWriter) error {
	filter, err := flags.params().Filter()
	if err != nil {
		return err
	}

	stash, _, _, err := openStash(cfg)
	if err != nil {
		return err
	}
	defer stash.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	logs, err := stash.Get(ctx, filter, callerKey)
	if err != nil {
		return err
	}
	return w.Write(logs)
}
