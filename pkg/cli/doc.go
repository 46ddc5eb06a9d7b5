/*
Package cli provides helpers shared by the logpipe commands.

Printing logs in the --output format chosen by the user:

	out, err := cli.ParseOutputFormat(flags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}
	w := cli.NewLogWriter(os.Stdout, out, cli.UseColor(os.Stdout))
	err = w.Write(logs)

Progress for batch uploads goes to stderr so that stdout stays clean:

	progress := cli.NewProgressReporter(os.Stderr, "logs")
	progress.Start(int64(len(logs)))

Graceful shutdown on SIGINT/SIGTERM, with a second signal forcing exit:

	ctx, stop := cli.NotifyShutdown(context.Background())
	defer stop()

Errors returned from commands map to exit codes with ExitCode.
*/
package cli
