package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/rampart/pkg/audit"
	"mercator-hq/rampart/pkg/audit/export"
	"mercator-hq/rampart/pkg/audit/retention"
	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

// queryFlags are the record filters shared by query and export.
type queryFlags struct {
	identifier string
	verdict    string
	version    string
	ruleID     string
	since      time.Duration
	limit      int
	offset     int
	order      string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.identifier, "identifier", "", "filter by artifact identifier")
	cmd.Flags().StringVar(&f.verdict, "verdict", "", "filter by verdict: allow, allow-with-annotations, block")
	cmd.Flags().StringVar(&f.version, "policy-version", "", "filter by rule graph version")
	cmd.Flags().StringVar(&f.ruleID, "rule", "", "filter by rule document id")
	cmd.Flags().DurationVar(&f.since, "since", 0, "only records newer than this duration (e.g. 24h)")
	cmd.Flags().IntVar(&f.limit, "limit", audit.DefaultQueryLimit, "maximum records")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&f.order, "order", "desc", "sort by time: asc, desc")
}

func (f *queryFlags) query() (*audit.Query, error) {
	q := &audit.Query{
		Identifier:    f.identifier,
		Verdict:       f.verdict,
		PolicyVersion: f.version,
		RuleID:        f.ruleID,
		Limit:         f.limit,
		Offset:        f.offset,
		SortOrder:     f.order,
	}
	if f.since > 0 {
		start := time.Now().UTC().Add(-f.since)
		q.StartTime = &start
	}
	if err := q.Validate(); err != nil {
		return nil, cli.NewConfigError("query", err.Error())
	}
	return q, nil
}

// recordsView renders audit records as a table.
type recordsView []*audit.Record

func (v recordsView) WriteText(w io.Writer) error {
	if len(v) == 0 {
		_, err := fmt.Fprintln(w, "No audit records found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECORDED\tIDENTIFIER\tVERDICT\tVIOLATIONS\tVERSION")
	for _, r := range v {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.RecordedAt.Format(time.RFC3339), r.Identifier, r.Verdict, r.Violations, shortVersion(r.PolicyVersion))
	}
	return tw.Flush()
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query, export and prune stored audit records",
	}
	cmd.AddCommand(newAuditQueryCmd(opts), newAuditExportCmd(opts), newAuditPruneCmd(opts))
	return cmd
}

func newAuditQueryCmd(opts *globalOptions) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored audit records",
		Long: `List audit records from the configured backend, newest first.

Examples:
  rampart audit query --verdict block --since 24h
  rampart audit query --identifier app/page.ts --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			q, err := flags.query()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg.Audit)
			if err != nil {
				return cli.NewCommandError("audit query", err)
			}
			defer store.Close()

			records, err := store.Query(cmd.Context(), q)
			if err != nil {
				return cli.NewCommandError("audit query", err)
			}
			return opts.print(cmd, recordsView(records))
		},
	}
	flags.register(cmd)
	return cmd
}

func newAuditExportCmd(opts *globalOptions) *cobra.Command {
	var (
		flags  queryFlags
		format string
		output string
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit records as JSON or CSV",
		Long: `Export audit records from the configured backend. CSV output has one row
per record entry.

Examples:
  rampart audit export --export-format csv --output audit.csv
  rampart audit export --since 168h --pretty`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			q, err := flags.query()
			if err != nil {
				return err
			}
			exporter, err := export.New(format, pretty)
			if err != nil {
				return cli.NewConfigError("export-format", err.Error())
			}
			store, err := openStorage(cfg.Audit)
			if err != nil {
				return cli.NewCommandError("audit export", err)
			}
			defer store.Close()

			records, err := store.Query(cmd.Context(), q)
			if err != nil {
				return cli.NewCommandError("audit export", err)
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return cli.NewCommandError("audit export", fmt.Errorf("failed to create output file: %w", err))
				}
				defer f.Close()
				w = f
			}
			if err := exporter.Export(cmd.Context(), records, w); err != nil {
				return cli.NewCommandError("audit export", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), output)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "export-format", export.FormatJSON, "export format: json, csv")
	cmd.Flags().StringVar(&output, "output", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}

func newAuditPruneCmd(opts *globalOptions) *cobra.Command {
	var (
		days       int
		maxRecords int64
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit records beyond the retention policy",
		Long: `Apply the retention policy once: delete records older than the retention
period, then the oldest records beyond the record cap.

Examples:
  rampart audit prune
  rampart audit prune --days 30 --max-records 100000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			rc := retentionConfig(cfg.Audit.Retention)
			if cmd.Flags().Changed("days") {
				rc.RetentionDays = days
			}
			if cmd.Flags().Changed("max-records") {
				rc.MaxRecords = maxRecords
			}

			store, err := openStorage(cfg.Audit)
			if err != nil {
				return cli.NewCommandError("audit prune", err)
			}
			defer store.Close()

			logger := logging.Discard()
			if opts.verbose {
				if logger, err = opts.logger(cfg, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			deleted, err := retention.NewPruner(store, rc, logger).Prune(cmd.Context())
			if err != nil {
				return cli.NewCommandError("audit prune", err)
			}
			return opts.print(cmd, pruneResult{Deleted: deleted, RetentionDays: rc.RetentionDays, MaxRecords: rc.MaxRecords})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override retention days (0 keeps records forever)")
	cmd.Flags().Int64Var(&maxRecords, "max-records", 0, "override the record cap (0 is unlimited)")
	return cmd
}

type pruneResult struct {
	Deleted       int64 `json:"deleted"`
	RetentionDays int   `json:"retention_days"`
	MaxRecords    int64 `json:"max_records"`
}

func (r pruneResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "✓ Deleted %d audit records (retention %d days, cap %d)\n", r.Deleted, r.RetentionDays, r.MaxRecords)
	return err
}
