// Package versioning maps a record's integer versionId to weak HTTP ETags and
// reads optimistic-concurrency preconditions from requests.
package versioning

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SetHeaders writes ETag and, when updatedAt is set, Last-Modified.
func SetHeaders(c echo.Context, versionID int, updatedAt time.Time) {
	c.Response().Header().Set("ETag", FormatETag(versionID))
	if !updatedAt.IsZero() {
		c.Response().Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	}
}

// FormatETag renders versionID as W/"n".
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}

// ParseETag accepts W/"n", "n" or n.
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("ETag must contain a non-negative numeric version: %q", etag)
	}
	return v, nil
}

// ExpectedVersion resolves the version a write was based on from If-Match and
// the body's expectedVersion. Zero means the write is unconditional. When both
// are present they must agree.
func ExpectedVersion(c echo.Context, bodyVersion int) (int, error) {
	if bodyVersion < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "expectedVersion must not be negative")
	}
	ifMatch := c.Request().Header.Get("If-Match")
	if ifMatch == "" || ifMatch == "*" {
		return bodyVersion, nil
	}

	v, err := ParseETag(ifMatch)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid If-Match header: "+err.Error())
	}
	if bodyVersion != 0 && bodyVersion != v {
		return 0, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("If-Match version %d disagrees with expectedVersion %d", v, bodyVersion))
	}
	return v, nil
}

// NotModified reports whether If-None-Match names the current version.
func NotModified(c echo.Context, currentVersion int) bool {
	header := c.Request().Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, tag := range strings.Split(header, ",") {
		if v, err := ParseETag(tag); err == nil && v == currentVersion {
			return true
		}
	}
	return false
}
