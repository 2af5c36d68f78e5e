// Package engine is the runtime facade over the rule pipeline.
//
// An Engine holds the active rule graph behind an atomic pointer. Each
// evaluation loads the graph once, resolves the effective policy for the
// artifact, evaluates the artifact's features against it and renders an
// audit record:
//
//	eng := engine.New(engine.Options{Logger: logger, Metrics: collector})
//	eng.Swap(g)
//	result, err := eng.Evaluate(ctx, &evaluator.Artifact{
//		Identifier: "app/page.ts",
//		Features:   map[string]any{"usesRawEval": false},
//	})
//
// Swap replaces the graph without blocking readers; an evaluation already
// in flight keeps the graph it loaded. Invalidate puts the engine in
// degraded mode, where every artifact is blocked until a valid graph is
// swapped in.
package engine
