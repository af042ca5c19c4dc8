package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(Recover())
	app.Use(RequestID())
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp
}

func TestErrorHandlerMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "model unavailable",
			err:        domain.ErrModelUnavailable,
			wantStatus: 503,
			wantCode:   apperr.CodeModelUnavailable,
			wantMsg:    MsgModelUnavailable,
		},
		{
			name:       "no content",
			err:        fmt.Errorf("batch: %w", domain.ErrNoContent),
			wantStatus: 400,
			wantCode:   apperr.CodeNoContent,
			wantMsg:    MsgNoContent,
		},
		{
			name:       "app error",
			err:        apperr.ExportFailed(errors.New("disk")),
			wantStatus: 500,
			wantCode:   apperr.CodeExportFailed,
			wantMsg:    "failed to generate the CSV file",
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("upload: %w", apperr.BadRequest("could not read upload a.txt")),
			wantStatus: 400,
			wantCode:   apperr.CodeBadRequest,
			wantMsg:    "could not read upload a.txt",
		},
		{
			name:       "fiber not found",
			err:        fiber.ErrNotFound,
			wantStatus: 404,
			wantCode:   apperr.CodeNotFound,
			wantMsg:    "route / not found",
		},
		{
			name:       "fiber method not allowed",
			err:        fiber.ErrMethodNotAllowed,
			wantStatus: 405,
			wantCode:   "METHOD_NOT_ALLOWED",
			wantMsg:    "Method Not Allowed",
		},
		{
			name:       "unknown error hides details",
			err:        errors.New("pq: password authentication failed"),
			wantStatus: 500,
			wantCode:   apperr.CodeInternalError,
			wantMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			body := decodeError(t, resp.Body)
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
			if tt.wantMsg != "" && body.Error != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, body.Error)
			}
			if body.RequestID == "" || body.Timestamp == "" {
				t.Errorf("expected request id and timestamp, got %+v", body)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.UserContext().Value(logger.RequestIDKey).(string)
		return c.SendString(id)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "abc-123" {
		t.Errorf("expected request id in user context, got %q", body)
	}
	if resp.Header.Get("X-Request-ID") != "abc-123" {
		t.Errorf("expected request id echoed, got %q", resp.Header.Get("X-Request-ID"))
	}
}

func TestRecover(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeError(t, resp.Body)
	if strings.Contains(body.Error, "boom") {
		t.Errorf("panic value should not leak, got %q", body.Error)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	app := newApp()
	app.Post("/classify", rl.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/classify", nil), -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/classify", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 429 {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	body := decodeError(t, resp.Body)
	if body.Code != apperr.CodeRateLimited {
		t.Errorf("expected RATE_LIMITED, got %s", body.Code)
	}
	if _, ok := body.Details["retry_after"]; !ok {
		t.Errorf("expected retry_after detail, got %+v", body.Details)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if ok, _, _ := rl.allow("1.2.3.4"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _, _ := rl.allow("1.2.3.4"); ok {
		t.Fatal("second request should be limited")
	}
	if ok, _, _ := rl.allow("5.6.7.8"); !ok {
		t.Fatal("other clients are independent")
	}

	now = now.Add(61 * time.Second)
	if ok, _, _ := rl.allow("1.2.3.4"); !ok {
		t.Fatal("window should reset")
	}
}
