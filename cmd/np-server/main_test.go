package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nptracker/nptracker/internal/config"
	"github.com/nptracker/nptracker/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// resolveSigningKey
// ---------------------------------------------------------------------------

func TestResolveSigningKey_Configured(t *testing.T) {
	key, random, err := resolveSigningKey("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if random {
		t.Error("expected random=false when a key is configured")
	}
	if string(key) != "0123456789abcdef0123456789abcdef" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestResolveSigningKey_RandomGeneration(t *testing.T) {
	key, random, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !random {
		t.Error("expected random=true when no key is configured")
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d bytes", len(key))
	}

	key2, _, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if hex.EncodeToString(key) == hex.EncodeToString(key2) {
		t.Error("two random keys should not be identical")
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := newLogger("production", tt.level).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestRegistryConfig(t *testing.T) {
	got := registryConfig(&config.Config{RegistryCacheSize: 16, RegistryCacheTTL: 30 * time.Second})
	if got.Size != 16 || got.TTL != 30*time.Second {
		t.Errorf("unexpected registry config: %+v", got)
	}
}

func TestMigrationsFS(t *testing.T) {
	embedded, err := fs.Glob(migrationsFS(""), "*.sql")
	if err != nil || len(embedded) == 0 {
		t.Fatalf("expected embedded migrations, got %v (%v)", embedded, err)
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "001_only.sql"), []byte("SELECT 1;"), 0o644)
	onDisk, _ := fs.Glob(migrationsFS(dir), "*.sql")
	if len(onDisk) != 1 || onDisk[0] != "001_only.sql" {
		t.Errorf("expected the on-disk migration, got %v", onDisk)
	}
}

// ---------------------------------------------------------------------------
// CLI
// ---------------------------------------------------------------------------

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDueCommand(t *testing.T) {
	tests := []struct {
		start, interval string
		want            string
		understood      bool
	}{
		{"2024-01-31", "1 month", "2024-02-29", true},
		{"2024-11-30", "3 months", "2025-02-28", true},
		{"2024-12-28", "Weekly", "2025-01-04", true},
		{"2024-01-31", "ASAP", "2024-01-31", false},
	}
	for _, tt := range tests {
		out, errOut, err := execute(t, "due", "--start", tt.start, "--interval", tt.interval)
		if err != nil {
			t.Fatalf("due %s %q: %v", tt.start, tt.interval, err)
		}
		if strings.TrimSpace(out) != tt.want {
			t.Errorf("due %s %q = %q, want %s", tt.start, tt.interval, out, tt.want)
		}
		if understood := !strings.Contains(errOut, "not understood"); understood != tt.understood {
			t.Errorf("due %s %q: unexpected stderr %q", tt.start, tt.interval, errOut)
		}
	}
}

func TestDueCommand_BadStart(t *testing.T) {
	if _, _, err := execute(t, "due", "--start", "31/01/2024", "--interval", "1 month"); err == nil {
		t.Error("expected error for malformed start date")
	}
}

func TestNextStageCommand_FromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "task_types.yaml")
	seed := "task_types:\n  - name: Blood check\n    stages: [1 month, 3 months, 6 months]\n  - name: Weight check\n    stages: Monthly\n"
	if err := os.WriteFile(file, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	tests := []struct {
		task, interval, want string
	}{
		{"Blood check", "1 MONTH", "3 months"},
		{"Blood check", "6 months", "no next stage"},
		{"Weight check", "Monthly", "no next stage"},
		{"Unknown", "1 month", "no next stage"},
	}
	for _, tt := range tests {
		out, _, err := execute(t, "next-stage", "--file", file, "--task", tt.task, "--interval", tt.interval)
		if err != nil {
			t.Fatalf("next-stage %q %q: %v", tt.task, tt.interval, err)
		}
		if strings.TrimSpace(out) != tt.want {
			t.Errorf("next-stage %q %q = %q, want %q", tt.task, tt.interval, out, tt.want)
		}
	}
}

func TestSeedFileShipsValidTaskTypes(t *testing.T) {
	file := filepath.Join("..", "..", "configs", "task_types.yaml")
	out, _, err := execute(t, "next-stage", "--file", file, "--task", "Blood check", "--interval", "1 month")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "3 months" {
		t.Errorf("expected 3 months, got %q", out)
	}
}

// ---------------------------------------------------------------------------
// HTTP server wiring
// ---------------------------------------------------------------------------

func testServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := &config.Config{
		Env:               "production",
		AppPassword:       "correct horse",
		SessionTTL:        time.Hour,
		CORSOrigins:       []string{"http://localhost:3000"},
		DueSoonDays:       7,
		RegistryCacheSize: 16,
		BodyLimit:         "1M",
		UploadLimit:       "5M",
		RequestTimeout:    5 * time.Second,
	}
	metrics, reg, err := newMetrics()
	if err != nil {
		t.Fatalf("newMetrics: %v", err)
	}
	svcs, err := newServices(nil, cfg, metrics, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	sessions := auth.NewSessions(auth.SessionConfig{
		Password:   cfg.AppPassword,
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		TTL:        cfg.SessionTTL,
	})
	return newServer(cfg, zerolog.Nop(), nil, svcs, sessions, metrics, reg)
}

func serve(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_SessionGate(t *testing.T) {
	e := testServer(t)
	target := "/api/v1/due-date?start=2024-01-31&interval=1+month"

	if rec := serve(e, http.MethodGet, target, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}

	rec := serve(e, http.MethodPost, "/api/v1/session", `{"password":"correct horse"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &login)

	rec = serve(e, http.MethodGet, target, "", login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a session, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"due_date":"2024-02-29"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected security and request id headers")
	}
}

func TestServer_LoginIsRateLimited(t *testing.T) {
	e := testServer(t)
	var last int
	for i := 0; i < 6; i++ {
		last = serve(e, http.MethodPost, "/api/v1/session", `{"password":"guess"}`, "").Code
		if i < 5 && last != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, last)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after repeated failures, got %d", last)
	}
}

func TestServer_PublicEndpoints(t *testing.T) {
	e := testServer(t)
	if rec := serve(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected /health to be public, got %d", rec.Code)
	}
	serve(e, http.MethodGet, "/health", "", "")
	rec := serve(e, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to be public, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nptracker_http_request_duration_seconds") {
		t.Error("expected request latency histogram in metrics output")
	}
}

func TestServer_Routes(t *testing.T) {
	e := testServer(t)
	have := make(map[string]bool)
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/session",
		"GET /api/v1/patients",
		"PUT /api/v1/patients/:id",
		"GET /api/v1/task-types/next-stage",
		"POST /api/v1/reminders/:id/complete",
		"POST /api/v1/reminders/:id/follow-up",
		"DELETE /api/v1/reminders",
		"GET /api/v1/dashboard",
		"GET /api/v1/due-date",
		"GET /api/v1/transfer/export",
		"GET /api/v1/transfer/template",
		"POST /api/v1/transfer/patients",
		"GET /health/db",
	} {
		if !have[want] {
			t.Errorf("missing route %s", want)
		}
	}
}
