// Package config provides configuration management for Rampart.
//
// Configuration is read from a YAML file, completed with defaults, and
// optionally overridden from the environment:
//
//	cfg, err := config.LoadConfig("rampart.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("rampart.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RAMPART_SECTION_FIELD:
//
//   - RAMPART_RULES_PATH overrides rules.path
//   - RAMPART_RULES_MODE overrides rules.mode
//   - RAMPART_AUDIT_SQLITE_PATH overrides audit.sqlite.path
//   - RAMPART_LOG_LEVEL overrides telemetry.logging.level
//   - RAMPART_TRACING_ENABLED overrides telemetry.tracing.enabled
//   - RAMPART_TRACING_ENDPOINT overrides telemetry.tracing.endpoint
//
// # Secret References
//
// rules.git.repository, the git credentials and server.auth.keys[].key may
// hold ${secret:name} references. ResolveSecrets expands them from
// environment variables prefixed with secrets.env_prefix and, when
// secrets.dir is set, from files in that directory:
//
//	server:
//	  auth:
//	    enabled: true
//	    keys:
//	      - name: ci
//	        key: ${secret:ci-api-key}
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//  5. Secret references resolved by ResolveSecrets
//
// # Singleton Pattern
//
// Commands that share one configuration use the package-level instance:
//
//	if err := config.Initialize("rampart.yaml"); err != nil {
//		return err
//	}
//	cfg := config.GetConfig()
//
// Library code should take a *Config explicitly instead.
package config
