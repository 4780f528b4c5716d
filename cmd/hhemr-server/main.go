package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hhemr/hhemr/internal/config"
	"github.com/hhemr/hhemr/internal/domain/assessment"
	"github.com/hhemr/hhemr/internal/domain/patient"
	"github.com/hhemr/hhemr/internal/domain/scheduling"
	"github.com/hhemr/hhemr/internal/domain/staff"
	"github.com/hhemr/hhemr/internal/platform/auth"
	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/internal/platform/metrics"
	"github.com/hhemr/hhemr/internal/platform/middleware"
	"github.com/hhemr/hhemr/internal/platform/websocket"
	"github.com/hhemr/hhemr/migrations"
	"github.com/hhemr/hhemr/pkg/validation"
)

const version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hhemr-server",
		Short: "Home health assessment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(agencyCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns the embedded migrations, or dir when it is set.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run agency schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, _ := cmd.Flags().GetString("agency")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if agency == "" {
				agency = cfg.DefaultAgency
			}

			fmt.Printf("Running migrations on schema: %s\n", db.SchemaName(agency))
			count, err := db.CreateAgencySchema(ctx, pool, agency, migrationSource(dir))
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("agency", "", "Agency identifier (defaults to DEFAULT_AGENCY)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, _ := cmd.Flags().GetString("agency")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if agency == "" {
				agency = cfg.DefaultAgency
			}
			if !db.ValidAgencyID(agency) {
				return fmt.Errorf("invalid agency identifier: %q", agency)
			}

			schema := db.SchemaName(agency)
			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("agency", "", "Agency identifier (defaults to DEFAULT_AGENCY)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func agencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agency",
		Short: "Manage agencies",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agency schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			if !db.ValidAgencyID(id) {
				return fmt.Errorf("invalid agency identifier: %q (use lowercase letters, digits and _)", id)
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating agency schema: %s\n", db.SchemaName(id))
			n, err := db.CreateAgencySchema(ctx, pool, id, migrations.FS)
			if err != nil {
				return err
			}
			fmt.Printf("Agency created; applied %d migration(s).\n", n)
			return nil
		},
	}
	createCmd.Flags().String("id", "", "Agency identifier (lowercase alphanumeric and _)")

	cmd.AddCommand(createCmd)
	return cmd
}

// tokenCmd mints HS256 tokens for local use and service accounts. It reads
// AUTH_SIGNING_KEY and AUTH_ISSUER from the environment or .env and needs no
// database.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			agency, _ := cmd.Flags().GetString("agency")
			rolesFlag, _ := cmd.Flags().GetString("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			roles, err := parseRoles(rolesFlag)
			if err != nil {
				return err
			}

			v := viper.New()
			v.SetConfigFile(".env")
			v.SetConfigType("env")
			v.AutomaticEnv()
			_ = v.ReadInConfig()

			tok, err := auth.IssueToken([]byte(v.GetString("AUTH_SIGNING_KEY")), v.GetString("AUTH_ISSUER"), subject, agency, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "User id placed in the sub claim")
	cmd.Flags().String("agency", "default", "Agency identifier placed in the agency_id claim")
	cmd.Flags().String("roles", auth.RoleClinician, "Comma-separated roles")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

var knownRoles = map[string]bool{
	auth.RoleAdmin:      true,
	auth.RoleClinician:  true,
	auth.RoleQAReviewer: true,
	auth.RoleScheduler:  true,
}

func parseRoles(s string) ([]string, error) {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !knownRoles[r] {
			return nil, fmt.Errorf("unknown role %q", r)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return roles, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	switch cfg.ResolvedAuthMode() {
	case "development":
		return auth.DevAuthMiddleware([]byte(cfg.AuthSigningKey))
	case "jwks":
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.Skipper,
		})
	default:
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.Skipper,
		})
	}
}

type server struct {
	echo    *echo.Echo
	hub     *websocket.Hub
	metrics *metrics.Metrics
}

// newServer wires middleware, repositories and handlers. The pool is only
// used once a request reaches an agency-scoped route.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)
	e.Validator = validation.EchoValidator{}

	m := metrics.New()
	hub := websocket.NewHub(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", db.AgencyHeader, "If-Match", "If-None-Match"},
		ExposeHeaders: []string{"ETag", "Last-Modified", "X-Request-ID", "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.MetricsEnabled {
		e.Use(m.Middleware())
	}
	e.Use(authMiddleware(cfg))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	agencyMW := db.AgencyMiddleware(pool, cfg.DefaultAgency)

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), agencyMW)

	assessmentSvc := assessment.NewService(assessment.NewRepoPG(pool), hub, m, logger)
	assessment.NewHandler(assessmentSvc).RegisterRoutes(apiV1)

	staffSvc := staff.NewService(
		staff.NewProviderRepo(pool),
		staff.NewCaregiverRepo(pool),
		staff.NewPhysicianRepo(pool),
		staff.NewPayerRepo(pool),
	)
	staff.NewHandler(staffSvc).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(
		patient.NewPatientRepo(pool),
		patient.NewInsuranceRepo(pool),
		patient.NewDischargeRepo(pool),
	)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	schedulingSvc := scheduling.NewService(scheduling.NewRepoPG(pool), hub, logger)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(e, agencyMW)

	return &server{echo: e, hub: hub, metrics: m}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	logger := newLogger(cfg)
	log.Logger = logger

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if n, err := db.CreateAgencySchema(ctx, pool, cfg.DefaultAgency, migrations.FS); err != nil {
		logger.Fatal().Err(err).Str("agency", cfg.DefaultAgency).Msg("failed to prepare default agency")
	} else if n > 0 {
		logger.Info().Int("applied", n).Str("agency", cfg.DefaultAgency).Msg("migrated default agency")
	}

	srv := newServer(cfg, pool, logger)
	if cfg.MetricsEnabled {
		srv.metrics.WatchPool(pool)
		srv.metrics.WatchClients(srv.hub.ClientCount)
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
