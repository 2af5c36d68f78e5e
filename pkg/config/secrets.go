package config

import (
	"context"
	"fmt"

	"mercator-hq/rampart/pkg/secrets"
)

type secretField struct {
	name  string
	value *string
}

// ResolveSecrets expands ${secret:name} references in the credential
// fields of cfg: the git repository URL, token and SSH key passphrase, and
// the server API keys. The environment is consulted first, then
// Secrets.Dir when set.
func ResolveSecrets(ctx context.Context, cfg *Config) error {
	auth := &cfg.Rules.Git.Auth
	fields := []secretField{
		{"rules.git.repository", &cfg.Rules.Git.Repository},
		{"rules.git.auth.token", &auth.Token},
		{"rules.git.auth.ssh_key_passphrase", &auth.SSHKeyPassphrase},
	}
	if len(cfg.Server.Auth.Keys) > 0 {
		// Copy so resolved keys never leak into a shared backing array.
		keys := append([]APIKeyConfig(nil), cfg.Server.Auth.Keys...)
		cfg.Server.Auth.Keys = keys
		for i := range keys {
			fields = append(fields, secretField{fmt.Sprintf("server.auth.keys[%d].key", i), &keys[i].Key})
		}
	}

	var resolver *secrets.Resolver
	for _, f := range fields {
		if !secrets.HasReference(*f.value) {
			continue
		}
		if resolver == nil {
			r, err := newResolver(cfg.Secrets)
			if err != nil {
				return err
			}
			resolver = r
		}
		expanded, err := resolver.Expand(ctx, *f.value)
		if err != nil {
			return ValidationError{Errors: []FieldError{{Field: f.name, Message: err.Error()}}}
		}
		*f.value = expanded
	}
	return nil
}

func newResolver(cfg SecretsConfig) (*secrets.Resolver, error) {
	prefix := cfg.EnvPrefix
	if prefix == "" {
		prefix = DefaultSecretsEnvPrefix
	}
	providers := []secrets.Provider{secrets.NewEnvProvider(prefix)}
	if cfg.Dir != "" {
		files, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("secrets.dir: %w", err)
		}
		providers = append(providers, files)
	}
	return secrets.NewResolver(providers...), nil
}
