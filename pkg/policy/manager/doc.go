// Package manager loads rule documents into the engine and keeps them
// current.
//
// # Sources
//
// In file mode the manager parses every *.yaml and *.yml file under the
// configured directory, skipping hidden files and directories. In git mode
// it clones the configured repository with go-git, parses the rule path
// inside the checkout and stamps the graph with the HEAD commit SHA.
//
// # Reloads
//
// A load is all or nothing. The document set is parsed and built into a
// graph before anything is swapped into the engine; when either step fails
// the previous graph stays active and the error is returned. If there is no
// previous graph the engine is invalidated and blocks every artifact.
//
//	mgr, err := manager.New(cfg.Rules, eng, collector, logger)
//	if err != nil {
//		return err
//	}
//	if err := mgr.Load(ctx); err != nil {
//		logger.Error("Initial rule load failed", "error", err)
//	}
//	go mgr.Watch(ctx)
//
// Watch uses fsnotify in file mode, coalescing bursts of events with a
// debouncer, and polls the repository in git mode.
package manager
