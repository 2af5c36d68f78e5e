package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/rampart/pkg/audit/recorder"
	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/evaluator"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

// resultView renders an evaluation result for the terminal.
type resultView struct {
	*engine.Result
}

func (v resultView) WriteText(w io.Writer) error {
	d := v.Decision
	var b strings.Builder

	mark := "✓"
	if d.Verdict == evaluator.VerdictBlock {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s: %s\n", mark, d.Identifier, d.Verdict)
	fmt.Fprintf(&b, "Version: %s\n", d.PolicyVersion)
	if v.Degraded {
		b.WriteString("Rule graph unavailable, every artifact is blocked\n")
	}

	if len(d.Violations) > 0 {
		b.WriteString("\nViolations:\n")
		for _, viol := range d.Violations {
			fmt.Fprintf(&b, "  [%s] %s: %s (%s)\n", viol.Severity, viol.Clause.Domain, viol.Reason, viol.Clause.Authority)
		}
	}
	if len(d.Annotations) > 0 {
		b.WriteString("\nAnnotations:\n")
		for _, a := range d.Annotations {
			fmt.Fprintf(&b, "  [%s] %s %s: %s (%s)\n", a.Severity, a.Kind, a.Domain, a.Message, a.RuleID)
		}
	}
	if len(d.Assumed) > 0 {
		b.WriteString("\nAssumed:\n")
		for _, k := range sortedKeys(d.Assumed) {
			fmt.Fprintf(&b, "  %s = %v\n", k, d.Assumed[k])
		}
	}
	if v.Record != nil {
		fmt.Fprintf(&b, "\nAudit record: %s\n", v.Record.ID)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// parseFeatures merges the features file (JSON or YAML) with key=value
// flags. Flag values are decoded as YAML scalars or lists, so
// "tls=true" and "regions=[eu,us]" keep their types.
func parseFeatures(file string, pairs []string) (map[string]any, error) {
	features := make(map[string]any)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read features file: %w", err)
		}
		if err := yaml.Unmarshal(data, &features); err != nil {
			return nil, fmt.Errorf("failed to parse features file %q: %w", file, err)
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, cli.NewConfigError("feature", fmt.Sprintf("expected key=value, got %q", pair))
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		features[key] = value
	}
	return features, nil
}

func newEvaluateCmd(opts *globalOptions) *cobra.Command {
	var (
		pairs        []string
		featuresFile string
		record       bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <identifier>",
		Short: "Evaluate an artifact against its effective policy",
		Long: `Evaluate the features asserted about an artifact against the effective
policy for its identifier and print the verdict, violations and annotations.

The command exits with status 3 when the artifact is blocked, so it can
gate a pipeline step.

Examples:
  rampart evaluate app/page.ts --feature usesRawEval=false --feature secretInClientBundle=false
  rampart evaluate app/page.ts --features features.yaml --record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			features, err := parseFeatures(featuresFile, pairs)
			if err != nil {
				return err
			}
			logger := logging.Discard()
			if opts.verbose {
				if logger, err = opts.logger(cfg, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			engOpts := engine.Options{}
			if record && cfg.Audit.Enabled {
				store, err := openStorage(cfg.Audit)
				if err != nil {
					return cli.NewCommandError("evaluate", err)
				}
				defer store.Close()
				rec := recorder.New(store, &recorder.Config{
					Buffer:       cfg.Audit.Recorder.Buffer,
					WriteTimeout: cfg.Audit.Recorder.WriteTimeout,
				}, logger)
				defer closeRecorder(cmd.Context(), rec)
				engOpts.Recorder = rec
			}

			// A load failure leaves the engine degraded, which blocks.
			eng, _, err := loadEngine(cmd.Context(), cfg, logger, engOpts)
			if eng == nil {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", err)
			}

			result, err := eng.Evaluate(cmd.Context(), &evaluator.Artifact{Identifier: args[0], Features: features})
			if err != nil {
				return cli.NewCommandError("evaluate", err)
			}
			if err := opts.print(cmd, resultView{result}); err != nil {
				return err
			}
			if result.Decision.Verdict == evaluator.VerdictBlock {
				return cli.NewCommandError("evaluate", cli.ErrBlocked)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&pairs, "feature", "f", nil, "feature assertion key=value (repeatable)")
	cmd.Flags().StringVar(&featuresFile, "features", "", "JSON or YAML file of feature assertions")
	cmd.Flags().BoolVar(&record, "record", false, "store the audit record in the configured backend")
	return cmd
}

// closeRecorder drains the recorder, giving up after a short grace period.
func closeRecorder(ctx context.Context, rec *recorder.Recorder) {
	done := make(chan struct{})
	go func() {
		_ = rec.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
	}
}
