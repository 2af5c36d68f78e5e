package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"mercator-hq/rampart/pkg/audit"
	"mercator-hq/rampart/pkg/audit/recorder"
	"mercator-hq/rampart/pkg/audit/retention"
	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/manager"
	"mercator-hq/rampart/pkg/server"
	"mercator-hq/rampart/pkg/telemetry/health"
	"mercator-hq/rampart/pkg/telemetry/metrics"
	"mercator-hq/rampart/pkg/telemetry/tracing"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		listen string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API",
		Long: `Load the rule source, then serve evaluation, resolution, health and
metrics endpoints until interrupted. Rules are reloaded on change when
rules.watch is set; a rejected reload keeps the previous rules active.

Examples:
  rampart serve --config rampart.yaml
  rampart serve --rules ./rules --listen 0.0.0.0:8181
  rampart serve --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.ListenAddress = listen
			}
			if dryRun {
				if err := config.Validate(cfg); err != nil {
					return cli.NewConfigError("", err.Error())
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
				return nil
			}

			logger, err := opts.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override listen address")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate config without starting the server")
	return cmd
}

// serve wires every component and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics.Namespace, nil)
	}

	tp, err := tracing.New(ctx, cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()
	if tp.Enabled() {
		logger.Info("Tracing enabled", "endpoint", cfg.Telemetry.Tracing.Endpoint, "sampler", cfg.Telemetry.Tracing.Sampler)
	}

	checker := health.New(0)
	engOpts := engine.Options{Metrics: collector}

	if cfg.Audit.Enabled {
		store, err := openStorage(cfg.Audit)
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer store.Close()

		rec := recorder.New(store, &recorder.Config{
			Buffer:       cfg.Audit.Recorder.Buffer,
			WriteTimeout: cfg.Audit.Recorder.WriteTimeout,
		}, logger)
		defer rec.Close()
		engOpts.Recorder = rec

		scheduler := retention.NewScheduler(retention.NewPruner(store, retentionConfig(cfg.Audit.Retention), logger))
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer scheduler.Stop()

		checker.RegisterCheck("audit_storage", func(ctx context.Context) error {
			_, err := store.Count(ctx, &audit.Query{})
			return err
		})
	}

	eng, mgr, err := loadEngine(ctx, cfg, logger, engOpts)
	if eng == nil {
		return err
	}
	if err != nil {
		logger.Error("Initial rule load failed, serving in degraded mode", "error", err)
	}
	checker.RegisterCheck("rule_graph", eng.Ready)

	var wg sync.WaitGroup
	if cfg.Rules.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.Watch(ctx); err != nil && !errors.Is(err, manager.ErrWatchDisabled) {
				logger.Error("Rule watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, eng, server.Options{
		Health:      checker,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
		Logger:      logger,
	})
	err = srv.Start(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}
