package logging

import (
	"log/slog"
	"strings"
)

// Masked replaces the value of a credential attribute.
const Masked = "***"

var secretKeys = []string{"token", "password", "secret", "passphrase", "authorization"}

// IsSecretKey reports whether an attribute key names a credential.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// maskSecrets is a slog ReplaceAttr that hides credential values. Empty
// values stay empty so "no token configured" remains visible.
func maskSecrets(_ []string, a slog.Attr) slog.Attr {
	if !IsSecretKey(a.Key) {
		return a
	}
	if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
		return a
	}
	return slog.String(a.Key, Masked)
}
