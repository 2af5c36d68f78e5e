package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

type validateReport struct {
	Valid     bool     `json:"valid"`
	Source    string   `json:"source"`
	Documents int      `json:"documents"`
	Version   string   `json:"version,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *validateReport) WriteText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ %d rule documents valid\nSource: %s\nVersion: %s\n", r.Documents, r.Source, r.Version)
		return err
	}
	if _, err := fmt.Fprintf(w, "✗ Rule set invalid (%s): %d errors\n", r.Source, len(r.Errors)); err != nil {
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "  - %s\n", e); err != nil {
			return err
		}
	}
	return nil
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the rule document set",
		Long: `Parse every rule document and build the rule graph, reporting all
problems found: YAML syntax, unknown keys, invalid clauses, duplicate ids,
dangling or cyclic delegations and ambiguous ownership.

Examples:
  # Validate the configured rule source
  rampart validate

  # Validate a directory
  rampart validate --rules ./rules --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := logging.Discard()
			if opts.verbose {
				if logger, err = opts.logger(cfg, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			eng, mgr, loadErr := loadEngine(cmd.Context(), cfg, logger, engine.Options{})
			if eng == nil {
				return loadErr
			}

			status := mgr.Status()
			report := &validateReport{
				Valid:     loadErr == nil,
				Source:    status.Source,
				Documents: status.Documents,
				Version:   status.Version,
				Errors:    flatten(loadErr),
			}
			if err := opts.print(cmd, report); err != nil {
				return err
			}
			if loadErr != nil {
				return cli.NewCommandError("validate", fmt.Errorf("%d rule errors", len(report.Errors)))
			}
			return nil
		},
	}
}
