package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/pkg/validation"
)

// ErrorResponse is the envelope every failed request is rendered with.
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// HTTPErrorHandler renders handler errors as ErrorResponse. Validation errors
// become 400 with per-field messages; anything that is not an *echo.HTTPError
// is logged and hidden behind a 500.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		resp := ErrorResponse{RequestID: rid}
		code := http.StatusInternalServerError

		var he *echo.HTTPError
		if verrs, ok := validation.AsErrors(err); ok {
			code = http.StatusBadRequest
			resp.Message = "validation failed"
			resp.Errors = verrs
		} else if errors.As(err, &he) {
			code = he.Code
			resp.Message = httpErrorMessage(he)
			if verrs, ok := validation.AsErrors(he.Internal); ok {
				resp.Errors = verrs
			}
		} else {
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
			resp.Message = http.StatusText(code)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, resp)
		}
		if err != nil {
			logger.Error().Err(err).Str("request_id", rid).Msg("write error response")
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	default:
		return http.StatusText(he.Code)
	}
}
