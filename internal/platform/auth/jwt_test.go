package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/assessments", nil), httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			c := e.NewContext(req, httptest.NewRecorder())

			err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reviewer-7",
			Issuer:    "hhemr",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AgencyID: "sunrise",
		Name:     "Pat Reviewer",
		Roles:    []string{RoleQAReviewer},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	var gotCtx context.Context
	handler := func(c echo.Context) error {
		gotCtx = c.Request().Context()
		return nil
	}
	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "hhemr"})(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCtx == nil {
		t.Fatal("handler was not called")
	}
	if UserIDFromContext(gotCtx) != "reviewer-7" {
		t.Errorf("expected user reviewer-7, got %q", UserIDFromContext(gotCtx))
	}
	if UserNameFromContext(gotCtx) != "Pat Reviewer" {
		t.Errorf("unexpected name %q", UserNameFromContext(gotCtx))
	}
	if roles := RolesFromContext(gotCtx); len(roles) != 1 || roles[0] != RoleQAReviewer {
		t.Errorf("unexpected roles %v", roles)
	}
	if c.Get("jwt_agency_id") != "sunrise" {
		t.Errorf("expected agency claim on echo context, got %v", c.Get("jwt_agency_id"))
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tests := []struct {
		name   string
		claims Claims
		key    []byte
		cfg    JWTConfig
	}{
		{"expired", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}, testSigningKey, JWTConfig{SigningKey: testSigningKey}},
		{"wrong key", Claims{RegisteredClaims: valid}, []byte("another-key-another-key-another!"), JWTConfig{SigningKey: testSigningKey}},
		{"wrong issuer", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "evil", ExpiresAt: valid.ExpiresAt}}, testSigningKey, JWTConfig{SigningKey: testSigningKey, Issuer: "hhemr"}},
		{"wrong audience", Claims{RegisteredClaims: valid}, testSigningKey, JWTConfig{SigningKey: testSigningKey, Audience: "hhemr-api"}},
		{"no subject", Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: valid.ExpiresAt}}, testSigningKey, JWTConfig{SigningKey: testSigningKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+createTestToken(t, tt.claims, tt.key))
			c := e.NewContext(req, httptest.NewRecorder())

			err := JWTMiddleware(tt.cfg)(okHandler)(c)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: Skipper})(okHandler)(c)
	if err != nil {
		t.Fatalf("public path should skip auth: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WebsocketQueryToken(t *testing.T) {
	tok, err := IssueToken(testSigningKey, "", "nurse-1", "default", []string{RoleClinician}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil), httptest.NewRecorder())
	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c); err != nil {
		t.Fatalf("expected query token to be accepted on /ws: %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?access_token="+tok, nil), httptest.NewRecorder())
	expectStatus(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c), http.StatusUnauthorized)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	tok, err := IssueToken(testSigningKey, "hhemr", "sched-1", "acme", []string{RoleScheduler}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) { return testSigningKey, nil }); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "sched-1" || claims.AgencyID != "acme" || claims.Issuer != "hhemr" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if _, err := IssueToken(nil, "", "x", "acme", nil, time.Hour); err == nil {
		t.Error("expected error without a key")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var roles []string
	handler := func(c echo.Context) error {
		roles = RolesFromContext(c.Request().Context())
		return nil
	}
	if err := DevAuthMiddleware(testSigningKey)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}

	// A presented token is still checked.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	c = e.NewContext(req, httptest.NewRecorder())
	expectStatus(t, DevAuthMiddleware(testSigningKey)(handler)(c), http.StatusUnauthorized)
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "job", RoleScheduler)
	if UserIDFromContext(ctx) != "job" {
		t.Errorf("unexpected user %q", UserIDFromContext(ctx))
	}
	if !HasAnyRole(RolesFromContext(ctx), RoleScheduler) {
		t.Error("expected scheduler role")
	}
}
