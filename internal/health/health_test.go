package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/controller"
	"github.com/kiwivoice/kiwi/internal/resilience"
	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decodeResult(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyzAllPass(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "vector_store", Check: func(context.Context) error { return nil }},
		Checker{Name: "llm", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeResult(t, rec)
	if body.Status != "ok" || body.Checks["vector_store"] != "ok" || body.Checks["llm"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyzOneFailure(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "vector_store", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "llm", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeResult(t, rec)
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	if body.Checks["vector_store"] != "fail: connection refused" {
		t.Errorf("vector_store = %q", body.Checks["vector_store"])
	}
	if body.Checks["llm"] != "ok" {
		t.Errorf("llm = %q", body.Checks["llm"])
	}
}

func TestReadyzNoCheckers(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzHonorsRequestContext(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Checkers
// ─────────────────────────────────────────────────────────────────────────────

// idleModule satisfies adapter.Module with no behavior.
type idleModule struct{ name string }

func (m *idleModule) Name() string                     { return m.name }
func (m *idleModule) Initialize(context.Context) error { return nil }
func (m *idleModule) Start(context.Context) error      { return nil }
func (m *idleModule) Stop(context.Context) error       { return nil }
func (m *idleModule) Cleanup() error                   { return nil }
func (m *idleModule) Statistics() map[string]any       { return nil }

func TestPipelineChecker(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	t.Cleanup(b.Close)

	ctrl := controller.New(b, nil)
	if err := ctrl.Register(&idleModule{name: "audio"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c := Pipeline(ctrl)
	if err := c.Check(context.Background()); err == nil {
		t.Error("check passed before the pipeline started")
	}

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { ctrl.Stop(context.Background()) })

	if err := c.Check(context.Background()); err != nil {
		t.Errorf("check failed on a running pipeline: %v", err)
	}
}

// downStore fails every write so the guard degrades.
type downStore struct{}

func (downStore) Upsert(context.Context, string, vectordb.Document) error {
	return errors.New("backend down")
}

func (downStore) Query(context.Context, string, []float32, int) ([]vectordb.Match, error) {
	return nil, errors.New("backend down")
}

func (downStore) Delete(context.Context, string, string) error {
	return errors.New("backend down")
}

func (downStore) Close() error { return nil }

func TestVectorStoreChecker(t *testing.T) {
	t.Parallel()
	g := vectordb.NewGuard(downStore{})

	c := VectorStore(g)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("fresh guard must read healthy, got %v", err)
	}

	g.Upsert(context.Background(), "turns", vectordb.Document{ID: "d1"})
	if err := c.Check(context.Background()); err == nil {
		t.Error("degraded guard must fail the check")
	}
}

func TestBreakersChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		states  map[string]resilience.State
		wantErr bool
	}{
		{"all closed", map[string]resilience.State{"openai": resilience.StateClosed, "local": resilience.StateClosed}, false},
		{"one open", map[string]resilience.State{"openai": resilience.StateOpen, "local": resilience.StateClosed}, false},
		{"half open counts as serving", map[string]resilience.State{"openai": resilience.StateHalfOpen}, false},
		{"all open", map[string]resilience.State{"openai": resilience.StateOpen, "local": resilience.StateOpen}, true},
		{"no providers", map[string]resilience.State{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Breakers("llm", func() map[string]resilience.State { return tt.states })
			err := c.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Admin server routes
// ─────────────────────────────────────────────────────────────────────────────

func TestServerRoutes(t *testing.T) {
	t.Parallel()
	s := NewServer(ServerConfig{
		Addr:     "127.0.0.1:0",
		Checkers: []Checker{{Name: "always", Check: func(context.Context) error { return nil }}},
		Stats: func() map[string]map[string]any {
			return map[string]map[string]any{"asr": {"recognitions": 3}}
		},
	})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/statusz", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestStatuszDumpsModuleStats(t *testing.T) {
	t.Parallel()
	handler := Statusz(func() map[string]map[string]any {
		return map[string]map[string]any{"tts": {"spoken": 7}}
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/statusz", nil))

	var body map[string]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body["tts"]["spoken"].(float64) != 7 {
		t.Errorf("body = %+v", body)
	}
}

func TestStatuszNilSource(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	Statusz(nil)(rec, httptest.NewRequest("GET", "/statusz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
