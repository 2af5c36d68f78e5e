package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"mercator-hq/rampart/pkg/config"
)

// APIKeyHeader is the alternative to an Authorization bearer token.
const APIKeyHeader = "X-API-Key"

// ErrorTypeAuthentication marks a rejected or missing API key.
const ErrorTypeAuthentication = "authentication_error"

type principalKey struct{}

// Principal returns the name of the API key that authenticated the
// request, if any.
func Principal(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok
}

// apiKeys checks presented keys against the configured set.
type apiKeys struct {
	keys []config.APIKeyConfig
}

// match returns the name of the key equal to presented. Every key is
// compared so the time taken does not depend on which one matched.
func (a *apiKeys) match(presented string) (string, bool) {
	var name string
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(presented)) == 1 {
			name = k.Name
		}
	}
	return name, name != ""
}

// extractKey reads "Authorization: Bearer <key>" or the X-API-Key header.
func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(APIKeyHeader)
}

// authenticate rejects requests without a configured API key.
func (s *Server) authenticate(keys *apiKeys, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := extractKey(r)
		if presented == "" {
			s.logger.WarnContext(r.Context(), "Missing API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="rampart"`)
			writeError(w, r, http.StatusUnauthorized, ErrorTypeAuthentication, "missing API key")
			return
		}
		name, ok := keys.match(presented)
		if !ok {
			s.logger.WarnContext(r.Context(), "Invalid API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="rampart", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, ErrorTypeAuthentication, "invalid API key")
			return
		}
		s.logger.DebugContext(r.Context(), "API key authenticated", "principal", name, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, name)))
	})
}
