package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// Audit records every access to patient data under /api/v1/ as a "phi_access"
// event. It never records request or response bodies.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			agency, _ := c.Get("agency_id").(string)
			ctx := req.Context()

			evt := logger.Info()
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_audit").
				Str("request_id", rid).
				Str("agency_id", agency).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource", resourceOf(req.URL.Path)).
				Str("resource_id", resourceIDOf(req.URL.Path)).
				Str("patient_id", patientIDOf(c)).
				Str("action", actionOf(req.Method)).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("phi_access")

			return err
		}
	}
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceOf returns the first path segment after /api/v1/, e.g. "assessments".
func resourceOf(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, apiPrefix), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

func resourceIDOf(path string) string {
	_, rest, ok := strings.Cut(strings.TrimPrefix(path, apiPrefix), "/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func patientIDOf(c echo.Context) string {
	path := c.Request().URL.Path
	if resourceOf(path) == "patients" {
		if id := resourceIDOf(path); id != "" {
			return id
		}
	}
	if id := c.QueryParam("patientId"); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return ""
}
