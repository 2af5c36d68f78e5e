package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	rulesPath  string
	format     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "rampart",
		Short: "Rampart - security rule resolution and policy evaluation",
		Long: `Rampart loads a set of security rule documents, resolves which document is
authoritative for each concern domain of an artifact, and evaluates the
artifact's features against the resulting effective policy.

Every evaluation yields a verdict (allow, allow-with-annotations or block)
and an audit record naming the document each clause came from.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file path (defaults apply when empty)")
	flags.StringVarP(&opts.rulesPath, "rules", "r", "", "override the rule directory (file mode)")
	flags.StringVarP(&opts.format, "format", "o", string(cli.FormatText), "output format: text, json")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newValidateCmd(opts),
		newResolveCmd(opts),
		newEvaluateCmd(opts),
		newServeCmd(opts),
		newAuditCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the config file with environment overrides, applies
// the command-line overrides to a copy and resolves secret references.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if err := config.Reload(o.configFile); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	cfg := *config.GetConfig()

	if o.rulesPath != "" {
		cfg.Rules.Mode = "file"
		cfg.Rules.Path = o.rulesPath
	}
	if o.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.ResolveSecrets(context.Background(), &cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	return &cfg, nil
}

// logger builds the process logger. Logs go to stderr so stdout carries
// only command output.
func (o *globalOptions) logger(cfg *config.Config, stderr io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, stderr))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

func (o *globalOptions) formatter() (cli.Formatter, error) {
	return cli.NewFormatter(cli.OutputFormat(o.format))
}

func (o *globalOptions) print(cmd *cobra.Command, data any) error {
	f, err := o.formatter()
	if err != nil {
		return err
	}
	if err := f.FormatTo(cmd.OutOrStdout(), data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
