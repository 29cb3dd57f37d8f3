package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
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
	"github.com/spf13/cobra"

	"github.com/hsba/emr/internal/config"
	"github.com/hsba/emr/internal/domain/account"
	"github.com/hsba/emr/internal/domain/clinicalform"
	"github.com/hsba/emr/internal/domain/patient"
	"github.com/hsba/emr/internal/domain/record"
	"github.com/hsba/emr/internal/platform/apiclient"
	"github.com/hsba/emr/internal/platform/auth"
	"github.com/hsba/emr/internal/platform/blobstore"
	"github.com/hsba/emr/internal/platform/db"
	"github.com/hsba/emr/internal/platform/inflight"
	"github.com/hsba/emr/internal/platform/middleware"
	"github.com/hsba/emr/internal/platform/pdfexport"
	"github.com/hsba/emr/internal/platform/websocket"
	"github.com/hsba/emr/internal/seed"
	"github.com/hsba/emr/migrations"
	"github.com/hsba/emr/pkg/pagination"
)

const version = "0.1.0"

// jsonBodyLimit caps non-multipart request bodies.
const jsonBodyLimit = "2M"

func main() {
	rootCmd := &cobra.Command{
		Use:   "emr-server",
		Short: "Electronic medical record (HSBA) API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(healthcheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the EMR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := db.NewMigrator(pool, migrations.Files, cfg.DBSchema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.Files, cfg.DBSchema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
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
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo patients, records and accounts into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			svcs := newServices(st, inflight.NewMemoryGuard(), nil, logger)
			sum, err := seed.Load(ctx, svcs.seed(), logger)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d patient(s), %d record(s), %d account(s).\n", sum.Patients, sum.Records, sum.Accounts)
			return nil
		},
	}
}

func healthcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check a running server, exiting non-zero when it is unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			checkDB, _ := cmd.Flags().GetBool("db")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			h, err := apiclient.New(url, timeout, 2).Health(ctx, checkDB)
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\n", h.Status)
			return nil
		},
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	cmd.Flags().String("url", "http://localhost:"+port, "Base URL of the server")
	cmd.Flags().Bool("db", false, "Also check the database")
	cmd.Flags().Duration("timeout", 5*time.Second, "Request timeout")
	return cmd
}

// stores are the repositories of one backend.
type stores struct {
	patients patient.Repository
	records  record.Repository
	accounts account.Repository
	blobs    blobstore.Store
	pool     *pgxpool.Pool
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	maxUpload := middleware.ParseSize(cfg.MaxUploadSize)
	if !cfg.UsesPostgres() {
		blobs := blobstore.NewMemoryStore(maxUpload)
		return &stores{
			patients: patient.NewMemoryRepo(),
			records:  record.NewMemoryRepo(),
			accounts: account.NewMemoryRepo(),
			blobs:    blobs,
			close:    blobs.Close,
		}, nil
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		patients: patient.NewRepoPG(pool),
		records:  record.NewRepoPG(pool),
		accounts: account.NewRepoPG(pool),
		blobs:    blobstore.NewPGStore(pool, maxUpload),
		pool:     pool,
		close:    pool.Close,
	}, nil
}

type services struct {
	patients *patient.Service
	records  *record.Service
	forms    *clinicalform.Service
	accounts *account.Service
}

func newServices(st *stores, guard inflight.Guard, tokens account.TokenIssuer, logger zerolog.Logger) *services {
	exporter := pdfexport.NewExporter(guard, logger.With().Str("component", "pdfexport").Logger())
	patients := patient.NewService(st.patients, logger.With().Str("component", "patient").Logger())
	records := record.NewService(st.records, patients, st.blobs, exporter, logger.With().Str("component", "record").Logger())
	return &services{
		patients: patients,
		records:  records,
		forms:    clinicalform.NewService(records, exporter, logger.With().Str("component", "clinicalform").Logger()),
		accounts: account.NewService(st.accounts, tokens, logger.With().Str("component", "account").Logger()),
	}
}

func (s *services) seed() seed.Services {
	return seed.Services{Patients: s.patients, Records: s.records, Accounts: s.accounts}
}

// signingKey returns the configured JWT key. In development a missing key
// is replaced by a random one, so tokens do not survive a restart.
func signingKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSigningKey != "" {
		return []byte(cfg.JWTSigningKey), nil
	}
	if cfg.ResolvedAuthMode() != "development" {
		return nil, errors.New("JWT_SIGNING_KEY is required")
	}
	buf := make([]byte, 32)
	if _, err := crypto_rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	logger.Warn().Msg("JWT_SIGNING_KEY not set, using an ephemeral key")
	return []byte(hex.EncodeToString(buf)), nil
}

// app is a fully wired server.
type app struct {
	echo  *echo.Echo
	hub   *websocket.Hub
	close func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func(){st.close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if st.pool != nil {
		applied, err := db.NewMigrator(st.pool, migrations.Files, cfg.DBSchema).Up(ctx)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("applied", applied).Str("schema", cfg.DBSchema).Msg("database ready")
	}

	var guard inflight.Guard = inflight.NewMemoryGuard()
	if cfg.RedisURL != "" {
		client, err := inflight.NewRedisClient(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			closeAll()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { client.Close() })
		guard = inflight.NewRedisGuard(client, "emr:inflight:", cfg.ExportLockTTL)
		logger.Info().Msg("using redis in-flight guard")
	}

	key, err := signingKey(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	jwtCfg := auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: key, TTL: cfg.TokenTTL}
	issuer, err := auth.NewIssuer(jwtCfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	svcs := newServices(st, guard, issuer, logger)

	hub := websocket.NewHub(cfg.SearchDebounce, logger.With().Str("component", "websocket").Logger())
	svcs.patients.SetNotifier(hub)
	svcs.records.SetNotifier(hub)
	hub.HandleSearch("records", func(ctx context.Context, s websocket.SearchState) (*pagination.Response, error) {
		filter := s.Filter
		if filter == "" {
			filter = record.FilterAll
		}
		all, err := svcs.records.List(ctx, s.Query, filter)
		if err != nil {
			return nil, err
		}
		page, pg := pagination.Slice(all, s.Params(cfg.RecordsPageSize))
		return pagination.NewResponse(page, len(all), pg), nil
	})
	hub.HandleSearch("patients", func(ctx context.Context, s websocket.SearchState) (*pagination.Response, error) {
		all, err := svcs.patients.List(ctx, s.Query)
		if err != nil {
			return nil, err
		}
		page, pg := pagination.Slice(all, s.Params(cfg.PatientsPageSize))
		return pagination.NewResponse(page, len(all), pg), nil
	})

	if cfg.SeedDemoData && !cfg.UsesPostgres() {
		if _, err := seed.Load(ctx, svcs.seed(), logger); err != nil {
			closeAll()
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	health := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"backend": cfg.StoreBackend,
		})
	}
	e.GET("/health", health)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit(jsonBodyLimit, cfg.MaxUploadSize))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	if cfg.ResolvedAuthMode() == "development" {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg, auth.AuthSkipper))
	}
	apiV1.Use(middleware.Audit(logger))
	apiV1.Use(middleware.SubmitGuard(guard))

	apiV1.GET("/health", health)
	if st.pool != nil {
		dbHealth := db.HealthHandler(st.pool)
		apiV1.GET("/health/db", dbHealth)
		e.GET("/health/db", dbHealth)
	}

	account.NewHandler(svcs.accounts, cfg.AccountsPageSize).RegisterRoutes(apiV1)
	patient.NewHandler(svcs.patients, cfg.PatientsPageSize).RegisterRoutes(apiV1)
	record.NewHandler(svcs.records, cfg.RecordsPageSize).RegisterRoutes(apiV1)
	clinicalform.NewHandler(svcs.forms).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	return &app{echo: e, hub: hub, close: closeAll}, nil
}

// errorHandler answers unknown API routes with a hint to the records list.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if errors.Is(err, echo.ErrNotFound) && strings.HasPrefix(c.Request().URL.Path, "/api/v1/") && !c.Response().Committed {
			_ = c.JSON(http.StatusNotFound, map[string]string{
				"message":  "not found",
				"redirect": "/records",
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Str("auth", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
