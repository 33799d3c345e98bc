package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicreport/internal/config"
	"github.com/ehr/clinicreport/internal/domain/consultation"
	"github.com/ehr/clinicreport/internal/platform/artifact"
	"github.com/ehr/clinicreport/internal/platform/auth"
	"github.com/ehr/clinicreport/internal/platform/db"
	"github.com/ehr/clinicreport/internal/platform/hipaa"
	"github.com/ehr/clinicreport/internal/platform/middleware"
	"github.com/ehr/clinicreport/internal/platform/openapi"
	"github.com/ehr/clinicreport/internal/platform/report"
	"github.com/ehr/clinicreport/internal/platform/sandbox"
	"github.com/ehr/clinicreport/internal/platform/webhook"
	"github.com/ehr/clinicreport/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "report-server",
		Short: "Clinical consultation report service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger writes JSON lines, or console output in development.
func newLogger(out io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "report-server").Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	reportCfg, err := cfg.ReportConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid report configuration")
	}

	ctx := context.Background()

	// Database, optional outside production deployments
	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		pool, err = db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, consultation records are kept in memory")
	}

	store, err := newArtifactStore(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure artifact store")
	}

	// Report events: live websocket feed, plus webhooks when configured
	hub := websocket.NewHub(logger.With().Str("component", "websocket").Logger())
	defer hub.Close()
	publishers := webhook.Fanout{hub}
	if len(cfg.WebhookURLs) > 0 {
		endpoints := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
		for _, u := range cfg.WebhookURLs {
			endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret})
		}
		dispatcher := webhook.NewDispatcher(endpoints, logger.With().Str("component", "webhook").Logger())
		dispatcher.Start(cfg.WebhookWorkers)
		defer dispatcher.Close()
		publishers = append(publishers, dispatcher)
		logger.Info().Int("endpoints", len(endpoints)).Msg("report webhooks enabled")
	}
	store = webhook.NewNotifyingStore(store, publishers)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := report.NewMetrics(registry)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.HTTPMetrics(registry))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.TenantHeader},
		ExposeHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", "8M"))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development auth enabled, unauthenticated requests act as admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Tenant middleware
	if pool != nil {
		e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.AuthSkipper))
	}

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	var repo consultation.Repository = consultation.NewMemoryRepo()
	var accessLog hipaa.AccessLog = hipaa.NewMemoryAccessLog()
	if pool != nil {
		repo = consultation.NewRepo(pool)
		accessLog = hipaa.NewPGAccessLog(pool)
	}
	apiV1.Use(hipaa.AccessLogger(accessLog, "/api/v1", logger))
	hipaa.NewHandler(accessLog).RegisterRoutes(apiV1)

	consultationSvc := consultation.NewService(repo)
	consultation.NewHandler(consultationSvc, logger).RegisterRoutes(apiV1)
	if cfg.IsDev() {
		sandbox.NewSeedHandler(consultationSvc, logger).RegisterRoutes(apiV1)
	}

	gen := report.NewGenerator(reportCfg,
		report.WithLogger(logger.With().Str("component", "report").Logger()),
		report.WithMetrics(metrics),
	)
	report.NewHandler(gen, consultationSvc, store, logger).RegisterRoutes(apiV1)
	artifact.NewHandler(store).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(apiV1)

	baseURL := fmt.Sprintf("http://localhost:%s", cfg.Port)
	openapi.NewGenerator(e, "/api/v1", version, baseURL).RegisterRoutes(e.Group(""))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (artifact.Store, error) {
	switch cfg.ArtifactStore {
	case config.StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres artifact store requires a database")
		}
		return artifact.NewPGStore(pool), nil
	case config.StoreS3:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.AWSEndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
				o.UsePathStyle = true
			}
		})
		logger.Info().Str("bucket", cfg.ArtifactS3Bucket).Str("prefix", cfg.ArtifactS3Prefix).Msg("storing reports in s3")
		return artifact.NewS3Store(client, cfg.ArtifactS3Bucket, cfg.ArtifactS3Prefix, logger), nil
	default:
		logger.Warn().Msg("stored reports are kept in memory and lost on restart")
		return artifact.NewMemoryStore(), nil
	}
}
