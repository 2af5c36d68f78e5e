package main

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/manager"
)

// loadEngine creates an engine and a manager for the configured rule source
// and performs the first load. On a load error the engine is returned
// degraded together with the error.
func loadEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts engine.Options) (*engine.Engine, *manager.Manager, error) {
	opts.Logger = logger
	eng := engine.New(opts)

	mgr, err := manager.New(cfg.Rules, eng, opts.Metrics, logger)
	if err != nil {
		return nil, nil, cli.NewConfigError("rules", err.Error())
	}
	if err := mgr.Load(ctx); err != nil {
		return eng, mgr, err
	}
	return eng, mgr, nil
}

// flatten lists the individual errors behind err, one per parse or graph
// problem.
func flatten(err error) []string {
	if err == nil {
		return nil
	}
	var le *manager.LoadError
	if errors.As(err, &le) {
		err = le.Cause
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range multi.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
