// Package secrets resolves ${secret:name} references in configuration
// values.
//
// A Resolver asks each Provider in order and uses the first value found.
// Two providers exist:
//
//   - EnvProvider reads RAMPART_SECRET_<NAME>, with the name upper-cased
//     and hyphens turned into underscores ("git-token" reads
//     RAMPART_SECRET_GIT_TOKEN).
//   - FileProvider reads <dir>/<name>, Kubernetes style. Files must be
//     regular files with mode 0600 or 0400; surrounding whitespace is
//     trimmed.
//
// Example:
//
//	r := secrets.NewResolver(secrets.NewEnvProvider(secrets.DefaultEnvPrefix))
//	token, err := r.Expand(ctx, "${secret:git-token}")
package secrets
