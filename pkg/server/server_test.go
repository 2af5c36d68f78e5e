package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/evaluator"
	"mercator-hq/rampart/pkg/policy/graph"
	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/rules"
	"mercator-hq/rampart/pkg/telemetry/health"
	"mercator-hq/rampart/pkg/telemetry/metrics"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	docs := []*rules.Document{
		{
			ID:            "baseline",
			Applicability: []string{"**/*"},
			AlwaysApply:   true,
			Clauses: map[string][]rules.Constraint{
				"input-validation": {{
					Kind:      rules.KindProhibition,
					Predicate: rules.Predicate{Feature: "usesRawEval", Op: rules.OpEquals, Value: true},
					Severity:  rules.SeverityFatal,
				}},
			},
		},
	}
	for _, d := range docs {
		d.Normalize()
	}
	g, err := graph.Build(docs)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}
	eng := engine.New(engine.Options{Logger: discard()})
	eng.Swap(g)
	return eng
}

func newTestServer(t *testing.T, eng *engine.Engine, collector *metrics.Collector) http.Handler {
	t.Helper()
	checker := health.New(time.Second)
	checker.RegisterCheck("engine", eng.Ready)
	srv := New(config.ServerConfig{MaxBodyBytes: 1024}, eng, Options{
		Health:  checker,
		Metrics: collector,
		Version: "1.2.3",
		Logger:  discard(),
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateEndpoint(t *testing.T) {
	h := newTestServer(t, testEngine(t), nil)

	tests := []struct {
		name    string
		body    string
		status  int
		verdict evaluator.Verdict
	}{
		{name: "allow", body: `{"identifier":"src/a.go","features":{"usesRawEval":false}}`, status: 200, verdict: evaluator.VerdictAllow},
		{name: "block", body: `{"identifier":"src/a.go","features":{"usesRawEval":true}}`, status: 200, verdict: evaluator.VerdictBlock},
		{name: "missing identifier", body: `{"features":{}}`, status: 400},
		{name: "malformed json", body: `{"identifier":`, status: 400},
		{name: "unknown field", body: `{"identifier":"a","extra":1}`, status: 400},
		{name: "too large", body: `{"identifier":"` + strings.Repeat("a", 2048) + `"}`, status: 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/evaluate", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				var er ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
					t.Fatalf("error body: %v", err)
				}
				if er.Error.Type != ErrorTypeInvalidRequest || er.RequestID == "" {
					t.Errorf("error body = %+v", er)
				}
				return
			}

			var res engine.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if res.Decision.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", res.Decision.Verdict, tt.verdict)
			}
			if res.Record == nil || res.Record.ID == "" {
				t.Error("result has no stamped audit record")
			}
		})
	}
}

func TestEvaluateMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, testEngine(t), nil)
	rec := do(t, h, http.MethodGet, "/v1/evaluate", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	h := newTestServer(t, testEngine(t), nil)

	rec := do(t, h, http.MethodPost, "/v1/resolve", `{"identifier":"src/a.go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var policy merger.EffectivePolicy
	if err := json.Unmarshal(rec.Body.Bytes(), &policy); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if policy.Authorities["input-validation"] != "baseline" {
		t.Errorf("Authorities = %v", policy.Authorities)
	}
}

func TestDegradedEngine(t *testing.T) {
	eng := engine.New(engine.Options{Logger: discard()})
	h := newTestServer(t, eng, nil)

	rec := do(t, h, http.MethodPost, "/v1/evaluate", `{"identifier":"src/a.go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d", rec.Code)
	}
	var res engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Degraded || res.Decision.Verdict != evaluator.VerdictBlock {
		t.Errorf("result = degraded %v verdict %s, want degraded block", res.Degraded, res.Decision.Verdict)
	}

	if rec := do(t, h, http.MethodPost, "/v1/resolve", `{"identifier":"src/a.go"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("resolve status = %d, want 503", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	collector := metrics.NewCollector(metrics.DefaultNamespace, nil)
	h := newTestServer(t, testEngine(t), collector)

	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/version", "")
	var info health.VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || info.Version != "1.2.3" {
		t.Errorf("version = %+v (err %v)", info, err)
	}

	collector.RecordEvaluation("allow", time.Millisecond)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rampart_evaluations_total") {
		t.Errorf("metrics status = %d, body missing evaluations counter", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, testEngine(t), nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("no generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want client value", got)
	}
}

type panicEngine struct{}

func (panicEngine) Evaluate(context.Context, *evaluator.Artifact) (*engine.Result, error) {
	panic("boom")
}

func (panicEngine) Resolve(context.Context, string) (*merger.EffectivePolicy, error) {
	return nil, nil
}

func TestRecovery(t *testing.T) {
	h := New(config.ServerConfig{}, panicEngine{}, Options{Logger: discard()}).Handler()
	rec := do(t, h, http.MethodPost, "/v1/evaluate", `{"identifier":"a"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartShutdown(t *testing.T) {
	srv := New(config.ServerConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second},
		testEngine(t), Options{Logger: discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Addr() == "" {
		t.Fatal("server did not start listening")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
