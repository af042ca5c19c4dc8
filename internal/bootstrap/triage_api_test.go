package bootstrap

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"triage_server/adapter/out/persistence"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/service/classification"
	"triage_server/core/service/extract"
	"triage_server/core/service/report"
	"triage_server/infra/database"
	"triage_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

const modelReply = "```json\n" + `{"classification":"Produtivo","confidence_score":0.91,"key_topic":"Invoice","sentiment":"Neutral","suggested_response":"Thanks, we will check."}` + "\n```"

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return modelReply, nil
}

func (stubGenerator) Name() string { return "stub" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "0",
		Environment:    "test",
		LLMTimeoutSec:  5,
		SQLitePath:     filepath.Join(t.TempDir(), "history.db"),
		HistoryTable:   "classification_history",
		CacheTTLSec:    60,
		HistoryLimit:   20,
		MaxUploadMB:    4,
		AllowedOrigins: []string{"*"},
		Timezone:       "UTC",
		Location:       time.UTC,
	}
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := testConfig(t)

	db, err := database.NewSQLite(cfg.SQLitePath)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	history, err := persistence.NewHistoryAdapter(db, cfg.HistoryTable)
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.NewModelMetrics(10)
	classifier := llm.NewClassifier(stubGenerator{}, llm.ClassifierConfig{Timeout: cfg.LLMTimeout(), Metrics: m})
	deps := &Dependencies{
		Config:          cfg,
		SQLDB:           db,
		History:         history,
		Classifier:      classifier,
		ModelMetrics:    m,
		ClassifyService: classification.NewService(extract.NewExtractor(), classifier, history),
		ReportService:   report.NewService(history, cfg.Location),
	}

	app, cleanup := NewApp(cfg, deps)
	t.Cleanup(cleanup)
	return app
}

func do(t *testing.T, app *fiber.App, req *httptestRequest) (int, string, map[string]string) {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, req.body)
	if req.contentType != "" {
		r.Header.Set("Content-Type", req.contentType)
	}
	resp, err := app.Test(r, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.method, req.path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	headers := map[string]string{
		"Content-Type":        resp.Header.Get("Content-Type"),
		"Content-Disposition": resp.Header.Get("Content-Disposition"),
		"X-Request-ID":        resp.Header.Get("X-Request-ID"),
	}
	return resp.StatusCode, string(body), headers
}

type httptestRequest struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

func formRequest(text string) *httptestRequest {
	form := url.Values{"email_text": {text}}
	return &httptestRequest{
		method:      "POST",
		path:        "/classify",
		body:        strings.NewReader(form.Encode()),
		contentType: fiber.MIMEApplicationForm,
	}
}

func multipartRequest(t *testing.T, text string, files map[string]string) *httptestRequest {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text != "" {
		if err := w.WriteField("email_text", text); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files[]", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &httptestRequest{method: "POST", path: "/classify", body: &buf, contentType: w.FormDataContentType()}
}

func TestClassifySingleTextReturnsObject(t *testing.T) {
	app := newTestApp(t)

	status, body, headers := do(t, app, formRequest("Please send the March invoice."))
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if headers["X-Request-ID"] == "" {
		t.Error("expected X-Request-ID header")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("expected a JSON object, got %s", body)
	}
	if result["classification"] != "Productive" {
		t.Errorf("expected Productive, got %v", result["classification"])
	}
	if result["source_filename"] != "Pasted Text" {
		t.Errorf("expected Pasted Text source, got %v", result["source_filename"])
	}
	if _, ok := result["error"]; ok {
		t.Errorf("successful result should not carry an error field: %s", body)
	}
}

func TestClassifyBatchReturnsList(t *testing.T) {
	app := newTestApp(t)

	req := multipartRequest(t, "pasted body", map[string]string{
		"a.txt":     "first upload",
		"notes.doc": "ignored",
	})
	status, body, _ := do(t, app, req)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var results []map[string]any
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		t.Fatalf("expected a JSON list, got %s", body)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %s", len(results), body)
	}
	if results[0]["source_filename"] != "Pasted Text" || results[1]["source_filename"] != "a.txt" {
		t.Errorf("unexpected order: %s", body)
	}
}

func TestClassifyRejectsMissingContent(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		req  *httptestRequest
	}{
		{name: "blank form field", req: formRequest("   ")},
		{name: "json body", req: &httptestRequest{
			method:      "POST",
			path:        "/classify",
			body:        strings.NewReader(`{"email_text":"hi"}`),
			contentType: fiber.MIMEApplicationJSON,
		}},
		{name: "no body", req: &httptestRequest{method: "POST", path: "/classify"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := do(t, app, tt.req)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			if !strings.Contains(body, "NO_CONTENT") {
				t.Errorf("expected NO_CONTENT code, got %s", body)
			}
		})
	}
}

func TestHistoryExportAndDashboard(t *testing.T) {
	app := newTestApp(t)

	for _, text := range []string{"first email", "second email"} {
		if status, body, _ := do(t, app, formRequest(text)); status != 200 {
			t.Fatalf("classify failed: %d %s", status, body)
		}
	}

	status, body, _ := do(t, app, &httptestRequest{method: "GET", path: "/history?limit=1"})
	if status != 200 {
		t.Fatalf("history: expected 200, got %d", status)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0]["email_content"] != "second email" {
		t.Errorf("expected newest entry only, got %s", body)
	}

	status, body, headers := do(t, app, &httptestRequest{method: "GET", path: "/export_history"})
	if status != 200 {
		t.Fatalf("export: expected 200, got %d", status)
	}
	if !strings.HasPrefix(headers["Content-Type"], "text/csv") {
		t.Errorf("expected text/csv, got %q", headers["Content-Type"])
	}
	if !strings.Contains(headers["Content-Disposition"], "classification_history.csv") {
		t.Errorf("expected attachment filename, got %q", headers["Content-Disposition"])
	}
	if lines := strings.Split(strings.TrimSpace(body), "\n"); len(lines) != 3 {
		t.Errorf("expected header plus 2 rows, got %d lines", len(lines))
	}

	status, body, _ = do(t, app, &httptestRequest{method: "GET", path: "/dashboard/data"})
	if status != 200 {
		t.Fatalf("dashboard: expected 200, got %d", status)
	}
	var dash struct {
		AllData                 []map[string]any          `json:"all_data"`
		ClassificationsOverTime map[string]map[string]int `json:"classifications_over_time"`
	}
	if err := json.Unmarshal([]byte(body), &dash); err != nil {
		t.Fatal(err)
	}
	if len(dash.AllData) != 2 {
		t.Errorf("expected 2 records, got %d", len(dash.AllData))
	}
	today := time.Now().UTC().Format(time.DateOnly)
	if dash.ClassificationsOverTime[today]["Productive"] != 2 {
		t.Errorf("expected 2 Productive today, got %v", dash.ClassificationsOverTime)
	}
}

func TestPagesAndHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		path        string
		wantStatus  int
		contentType string
		contains    string
	}{
		{path: "/", wantStatus: 200, contentType: "text/html", contains: "<html"},
		{path: "/dashboard", wantStatus: 200, contentType: "text/html", contains: "<html"},
		{path: "/api/environment", wantStatus: 200, contentType: "application/json", contains: `"is_vercel":false`},
		{path: "/health", wantStatus: 200, contentType: "application/json", contains: `"open_connections"`},
		{path: "/ready", wantStatus: 200, contentType: "application/json", contains: `"model":"stub"`},
		{path: "/missing", wantStatus: 404, contentType: "application/json", contains: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body, headers := do(t, app, &httptestRequest{method: "GET", path: tt.path})
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, status, body)
			}
			if !strings.HasPrefix(headers["Content-Type"], tt.contentType) {
				t.Errorf("expected content type %s, got %s", tt.contentType, headers["Content-Type"])
			}
			if !strings.Contains(body, tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, body)
			}
		})
	}
}

func TestNewDependenciesWithoutModel(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer cleanup()

	if deps.SQLDB == nil || deps.History == nil {
		t.Fatal("expected the SQLite store to be wired")
	}
	if deps.Redis != nil || deps.Cache != nil {
		t.Error("redis should stay disabled without REDIS_URL")
	}
	if deps.Classifier.Available() {
		t.Error("classifier should be unavailable without an API key")
	}

	app, closeApp := NewApp(cfg, deps)
	defer closeApp()

	tests := []struct {
		name string
		req  *httptestRequest
	}{
		{name: "form body", req: formRequest("hello")},
		{name: "json body", req: &httptestRequest{
			method:      "POST",
			path:        "/classify",
			body:        strings.NewReader(`{}`),
			contentType: fiber.MIMEApplicationJSON,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := do(t, app, tt.req)
			if status != 503 {
				t.Errorf("expected 503 without a model, got %d: %s", status, body)
			}
			if !strings.Contains(body, "MODEL_UNAVAILABLE") {
				t.Errorf("expected MODEL_UNAVAILABLE code, got %s", body)
			}
		})
	}
}
