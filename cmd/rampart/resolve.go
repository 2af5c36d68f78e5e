package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/telemetry/logging"
)

// policyView renders an effective policy for the terminal.
type policyView struct {
	*merger.EffectivePolicy
}

func (v policyView) WriteText(w io.Writer) error {
	p := v.EffectivePolicy
	var b strings.Builder

	fmt.Fprintf(&b, "Identifier: %s\n", p.Identifier)
	fmt.Fprintf(&b, "Version:    %s\n", p.Version)
	fmt.Fprintf(&b, "Candidates: %s\n", joinOrNone(p.Candidates))

	b.WriteString("\nAuthorities:\n")
	if len(p.Authorities) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, domain := range sortedKeys(p.Authorities) {
		fmt.Fprintf(&b, "  %-24s %s\n", domain, p.Authorities[domain])
	}

	b.WriteString("\nClauses:\n")
	if len(p.Clauses) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, c := range p.Clauses {
		fmt.Fprintf(&b, "  [%s] %s %s: %s (%s)\n", c.EffectiveSeverity(), c.Kind, c.Domain, c.Predicate, c.Authority)
	}

	if len(p.Shadowed) > 0 {
		b.WriteString("\nShadowed:\n")
		for _, s := range p.Shadowed {
			fmt.Fprintf(&b, "  %s: %s ignored, owned by %s\n", s.Domain, s.Candidate, s.Owner)
		}
	}
	if len(p.Conflicts) > 0 {
		b.WriteString("\nConflicts:\n")
		for _, c := range p.Conflicts {
			fmt.Fprintf(&b, "  %s: %s over %s (%s)\n", c.Winner.Domain, c.Winner.Authority, c.Loser.Authority, c.Reason)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func newResolveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identifier>",
		Short: "Show the effective policy for an artifact",
		Long: `Resolve which rule documents apply to an artifact identifier, which
document is authoritative for each concern domain, and the flattened,
conflict-free clause list.

Examples:
  rampart resolve app/page.ts
  rampart resolve src/server/db.go --format json`,
		Args: cobra.ExactArgs(1),
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

			eng, _, err := loadEngine(cmd.Context(), cfg, logger, engine.Options{})
			if err != nil {
				return cli.NewCommandError("resolve", err)
			}
			policy, err := eng.Resolve(cmd.Context(), args[0])
			if err != nil {
				return cli.NewCommandError("resolve", err)
			}
			return opts.print(cmd, policyView{policy})
		},
	}
}
