package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/rampart/pkg/config"
)

func TestAPIKeyAuth(t *testing.T) {
	h := New(config.ServerConfig{
		Auth: config.AuthConfig{Enabled: true, Keys: []config.APIKeyConfig{
			{Name: "ci", Key: "ci-key"},
			{Name: "ide", Key: "ide-key"},
		}},
	}, testEngine(t), Options{Logger: discard()}).Handler()

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
	}{
		{name: "no key", path: "/v1/evaluate", status: http.StatusUnauthorized},
		{name: "wrong key", path: "/v1/evaluate", header: map[string]string{"Authorization": "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "bearer", path: "/v1/evaluate", header: map[string]string{"Authorization": "Bearer ci-key"}, status: http.StatusOK},
		{name: "bearer lowercase scheme", path: "/v1/resolve", header: map[string]string{"Authorization": "bearer ide-key"}, status: http.StatusOK},
		{name: "api key header", path: "/v1/resolve", header: map[string]string{APIKeyHeader: "ide-key"}, status: http.StatusOK},
		{name: "basic scheme ignored", path: "/v1/resolve", header: map[string]string{"Authorization": "Basic ci-key"}, status: http.StatusUnauthorized},
		{name: "probes stay open", path: "/healthz", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if !strings.HasPrefix(tt.path, "/v1/") {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader(`{"identifier":"src/a.go"}`))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate")
			}
		})
	}
}

func TestAPIKeyMatch(t *testing.T) {
	keys := &apiKeys{keys: []config.APIKeyConfig{{Name: "ci", Key: "abc"}, {Name: "ide", Key: "xyz"}}}

	tests := []struct {
		presented string
		want      string
		ok        bool
	}{
		{presented: "abc", want: "ci", ok: true},
		{presented: "xyz", want: "ide", ok: true},
		{presented: "ab", ok: false},
		{presented: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := keys.match(tt.presented)
		if got != tt.want || ok != tt.ok {
			t.Errorf("match(%q) = %q, %v, want %q, %v", tt.presented, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrincipalInContext(t *testing.T) {
	srv := New(config.ServerConfig{}, testEngine(t), Options{Logger: discard()})
	keys := &apiKeys{keys: []config.APIKeyConfig{{Name: "ci", Key: "abc"}}}

	var got string
	h := srv.authenticate(keys, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Principal(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set(APIKeyHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "ci" {
		t.Errorf("Principal = %q, want ci", got)
	}
}
