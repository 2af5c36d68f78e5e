// Package git keeps a local checkout of a rule repository.
//
// The checkout's HEAD commit identifies the document set: the rule manager
// stamps the graph it builds from the checkout with the commit SHA, so every
// audit record names the exact rule revision that produced it.
//
//	repo, err := git.NewRepository(cfg.Rules.Git)
//	if err != nil {
//		return err
//	}
//	if err := repo.Clone(ctx); err != nil {
//		return err
//	}
//	head, err := repo.Head()
//
// A Watcher pulls on an interval and invokes a callback when rule files
// changed between the old and new HEAD.
//
// Authentication supports HTTPS tokens, SSH keys and anonymous access.
package git
