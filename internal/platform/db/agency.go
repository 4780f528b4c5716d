package db

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	AgencyIDKey contextKey = "agency_id"
	DBConnKey   contextKey = "db_conn"

	// AgencyHeader lets service accounts pick the agency explicitly.
	AgencyHeader = "X-Agency-ID"
)

var agencyIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// ValidAgencyID reports whether id can be used to build a schema name.
func ValidAgencyID(id string) bool {
	return agencyIDPattern.MatchString(id)
}

// SchemaName returns the Postgres schema that holds an agency's data.
func SchemaName(agencyID string) string {
	return "agency_" + agencyID
}

// AgencyMiddleware pins one pooled connection to the request with its
// search_path set to the caller's agency schema. Repositories pick the
// connection up through ConnFromContext.
func AgencyMiddleware(pool *pgxpool.Pool, defaultAgency string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			agencyID := extractAgencyID(c, defaultAgency)
			if !ValidAgencyID(agencyID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid agency identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(agencyID))); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "agency resolution failed")
			}
			// Pooled connections are reused across agencies.
			defer conn.Exec(context.Background(), "RESET search_path")

			ctx = WithConn(WithAgency(ctx, agencyID), conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("agency_id", agencyID)

			return next(c)
		}
	}
}

// extractAgencyID resolves the agency from the token claim first, then the
// header, then the configured default.
func extractAgencyID(c echo.Context, defaultAgency string) string {
	if id, ok := c.Get("jwt_agency_id").(string); ok && id != "" {
		return id
	}
	if id := c.Request().Header.Get(AgencyHeader); id != "" {
		return id
	}
	return defaultAgency
}

func WithAgency(ctx context.Context, agencyID string) context.Context {
	return context.WithValue(ctx, AgencyIDKey, agencyID)
}

// WithConn attaches an agency-scoped connection (or transaction) to ctx.
func WithConn(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, DBConnKey, q)
}

// ConnFromContext returns the agency-scoped connection set by
// AgencyMiddleware, or nil outside a request.
func ConnFromContext(ctx context.Context) Querier {
	q, _ := ctx.Value(DBConnKey).(Querier)
	return q
}

func AgencyFromContext(ctx context.Context) string {
	id, _ := ctx.Value(AgencyIDKey).(string)
	return id
}

// CreateAgencySchema creates the agency schema if needed and brings it up to
// the latest migration. A nil migrations filesystem skips the migration step.
func CreateAgencySchema(ctx context.Context, pool *pgxpool.Pool, agencyID string, migrations fs.FS) (int, error) {
	if !ValidAgencyID(agencyID) {
		return 0, fmt.Errorf("invalid agency identifier: %q", agencyID)
	}
	schema := SchemaName(agencyID)

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return 0, fmt.Errorf("create schema %s: %w", schema, err)
	}
	if migrations == nil {
		return 0, nil
	}
	n, err := NewMigrator(pool, migrations).Up(ctx, schema)
	if err != nil {
		return n, fmt.Errorf("run migrations for %s: %w", schema, err)
	}
	return n, nil
}
