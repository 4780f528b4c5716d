package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PoolOptions tunes the pgx pool beyond the connection string.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	// Logger receives pgx trace output at QueryLogLevel. Leave nil to disable.
	Logger        *zerolog.Logger
	QueryLogLevel tracelog.LogLevel
}

func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = opts.MinConns
	cfg.MaxConnIdleTime = 5 * time.Minute

	if opts.Logger != nil {
		level := opts.QueryLogLevel
		if level == 0 {
			level = tracelog.LogLevelWarn
		}
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   &zerologAdapter{log: opts.Logger.With().Str("component", "pgx").Logger()},
			LogLevel: level,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

type zerologAdapter struct {
	log zerolog.Logger
}

func (a *zerologAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		ev = a.log.Debug()
	case tracelog.LogLevelInfo:
		ev = a.log.Info()
	case tracelog.LogLevelWarn:
		ev = a.log.Warn()
	default:
		ev = a.log.Error()
	}
	if agency := AgencyFromContext(ctx); agency != "" {
		ev = ev.Str("agency_id", agency)
	}
	ev.Fields(data).Msg(msg)
}
