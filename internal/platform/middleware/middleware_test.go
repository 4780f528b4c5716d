package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/internal/platform/auth"
	"github.com/hhemr/hhemr/pkg/validation"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	var rid string
	h := RequestID()(func(c echo.Context) error {
		rid, _ = c.Get("request_id").(string)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rid == "" {
		t.Error("expected request_id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != rid {
		t.Errorf("expected response header %q, got %q", rid, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "visit-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Get("request_id") != "visit-42" {
		t.Errorf("expected visit-42, got %v", c.Get("request_id"))
	}
	if rec.Header().Get(RequestIDHeader) != "visit-42" {
		t.Errorf("expected visit-42 in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LevelsByStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		level   string
		status  float64
	}{
		{"ok", okHandler, "info", 200},
		{"client error", func(echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "stale") }, "warn", 409},
		{"server error", func(echo.Context) error { return errors.New("boom") }, "error", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil), httptest.NewRecorder())
			c.Set("request_id", "r1")

			_ = Logger(logger)(tt.handler)(c)

			var line map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
			}
			if line["level"] != tt.level {
				t.Errorf("expected level %s, got %v", tt.level, line["level"])
			}
			if line["status"] != tt.status {
				t.Errorf("expected status %v, got %v", tt.status, line["status"])
			}
			if line["request_id"] != "r1" || line["path"] != "/api/v1/assessments" {
				t.Errorf("missing request fields: %v", line)
			}
		})
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic("nil section map")
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if !strings.Contains(buf.String(), "nil section map") {
		t.Errorf("expected panic value in log, got %s", buf.String())
	}
}

func TestAudit_LogsAPIAccess(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/7f1c6a8e-3e8b-4a53-9d0f-2f5b1d2c3a4b/insurance", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "nurse-1", auth.RoleClinician))
	c := e.NewContext(req, httptest.NewRecorder())

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	want := map[string]interface{}{
		"type":        "phi_audit",
		"user_id":     "nurse-1",
		"resource":    "patients",
		"resource_id": "7f1c6a8e-3e8b-4a53-9d0f-2f5b1d2c3a4b",
		"patient_id":  "7f1c6a8e-3e8b-4a53-9d0f-2f5b1d2c3a4b",
		"action":      "read",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, line[k])
		}
	}
}

func TestAudit_SkipsNonAPI(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no audit output, got %s", buf.String())
	}
}

func TestAudit_PatientFromQuery(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/assessments?patientId=7f1c6a8e-3e8b-4a53-9d0f-2f5b1d2c3a4b", nil), httptest.NewRecorder())
	if got := patientIDOf(c); got != "7f1c6a8e-3e8b-4a53-9d0f-2f5b1d2c3a4b" {
		t.Errorf("unexpected patient id %q", got)
	}
	if got := resourceIDOf("/api/v1/assessments/not-a-uuid/qa"); got != "" {
		t.Errorf("expected empty resource id, got %q", got)
	}
	if got := actionOf(http.MethodPut); got != "update" {
		t.Errorf("expected update, got %s", got)
	}
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		unsized   bool
		wantError bool
	}{
		{"under limit", strings.Repeat("a", 512), false, false},
		{"over limit by content length", strings.Repeat("a", 2048), false, true},
		{"over limit without content length", strings.Repeat("a", 2048), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", strings.NewReader(tt.body))
			if tt.unsized {
				req.ContentLength = -1
			}
			c := e.NewContext(req, httptest.NewRecorder())

			err := BodyLimit("1K")(func(c echo.Context) error {
				_, err := io.ReadAll(c.Request().Body)
				return err
			})(c)

			if !tt.wantError {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("expected 413, got %v", err)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":     2 << 20,
		"512":  512,
		"512K": 512 << 10,
		"2M":   2 << 20,
		"2mb":  2 << 20,
		"1G":   1 << 30,
		"lots": 2 << 20,
		"-5M":  2 << 20,
	}
	for in, want := range tests {
		if got := ParseSize(in); got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "1" {
			t.Errorf("expected X-RateLimit-Limit 1, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := httptest.NewRecorder()
	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_KeysByAgency(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	for _, agency := range []string{"north", "south"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("jwt_agency_id", agency)
		if err := h(c); err != nil {
			t.Errorf("agency %s: first request should pass, got %v", agency, err)
		}
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{})(okHandler)
	for i := 0; i < 10; i++ {
		if err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantMsg    string
		wantFields map[string]string
	}{
		{"validation", validation.Errors{"qaStatus": "must be one of APPROVED REJECTED"}, 400, "validation failed", map[string]string{"qaStatus": "must be one of APPROVED REJECTED"}},
		{"http error", echo.NewHTTPError(http.StatusConflict, "assessment was modified"), 409, "assessment was modified", nil},
		{"not found", echo.ErrNotFound, 404, "Not Found", nil},
		{"http error wrapping validation", echo.NewHTTPError(http.StatusBadRequest, "invalid section").SetInternal(validation.Errors{"fallRisk": "is required"}), 400, "invalid section", map[string]string{"fallRisk": "is required"}},
		{"unknown", errors.New("pq: connection reset"), 500, "Internal Server Error", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			c.Set("request_id", "r9")

			HTTPErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, body.Message)
			}
			if body.RequestID != "r9" {
				t.Errorf("expected request id r9, got %q", body.RequestID)
			}
			for k, v := range tt.wantFields {
				if body.Errors[k] != v {
					t.Errorf("errors[%s]: expected %q, got %q", k, v, body.Errors[k])
				}
			}
		})
	}
}
