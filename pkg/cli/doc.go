/*
Package cli provides command-line helpers for the rampart command.

Output Formatting:

Command results are printed as text or JSON:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Values that implement TextWriter control their own text rendering; other
values are printed with %v.

Exit Codes:

ExitCode maps a command error to the process exit status. A blocked
artifact exits with ExitBlocked so the command can gate a pipeline.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
