package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// current holds the process-wide configuration.
	current atomic.Pointer[Config]

	// initMu serializes Initialize so concurrent first calls load once.
	initMu sync.Mutex
)

// Initialize loads configuration from path with environment overrides and
// stores it as the process-wide configuration. Once a configuration is set,
// later calls return nil without reloading; use Reload to replace it.
func Initialize(path string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if current.Load() != nil {
		return nil
	}

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	current.Store(cfg)
	return nil
}

// GetConfig returns the process-wide configuration, or nil before
// Initialize has succeeded.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the process-wide configuration. Tests use it to inject
// a configuration; a nil cfg clears it so Initialize loads again.
func SetConfig(cfg *Config) {
	initMu.Lock()
	defer initMu.Unlock()
	current.Store(cfg)
}

// Reload replaces the process-wide configuration with a fresh load of path.
// On error the existing configuration stays in place.
func Reload(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return nil
}

// MustGetConfig returns the process-wide configuration and panics if it has
// not been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
