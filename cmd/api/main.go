// Package main is the entry point for the ShopPay gateway API server.
//
// It loads configuration, connects to the shop platform database, builds the
// Stripe client and domain services, wires the HTTP handlers onto the core
// chassis, and serves until interrupted. Graceful shutdown is handled via OS
// signal interception (SIGINT, SIGTERM) and flushes buffered telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"shoppay/internal/api/handlers"
	"shoppay/internal/cards"
	"shoppay/internal/config"
	"shoppay/internal/core"
	"shoppay/internal/db"
	"shoppay/internal/external"
	"shoppay/internal/maintenance"
	"shoppay/internal/payment"
	"shoppay/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM resolution is bypassed when APP_ENV=local; everything comes from
	// the environment and the dotenv file there.
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("shoppay gateway starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Database pool against the shop platform database.
	pool, err := newDatabasePool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	customerRepo := db.NewCustomerRepository(pool)
	orderRepo := db.NewOrderRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)

	// Stripe client. Refund and card calls never retry; the per-request
	// timeout bounds every call.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: cfg.Stripe.Timeout},
		external.StripeClientConfig{
			SecretKey: cfg.Stripe.SecretKey.Unmask(),
			Logger:    logger,
		},
	)

	cardService := cards.NewService(stripeClient, customerRepo, logger)

	registry := payment.NewMethodRegistry()
	payment.RegisterDefaults(registry, cfg.Shop.TemplateVersion)

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Sessions = sessionRepo
	srv.Customers = customerRepo
	srv.HealthProbes = []core.HealthProbe{databaseProbe{pool: pool}}

	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS configuration: %w", err)
		}
		collector := telemetry.NewCollector(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
		defer collector.Close()
		srv.Metrics = collector
	}

	// Wire the handlers.
	cardsHandler := handlers.NewCardsHandler(cardService, cfg, srv.Validator, logger)
	refundHandler := handlers.NewRefundHandler(stripeClient, orderRepo, cfg.Shop.Currency, logger)
	methodsHandler := handlers.NewMethodsHandler(registry)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		orderRepo,
		cfg.Stripe.WebhookSecret.Unmask(),
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		// Account card routes require a shop session.
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.SessionAuth)
				cardsHandler.RegisterRoutes(r)
			})
		},
		// The refund action is guarded by the backoffice admin key.
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.AdminAuth)
				refundHandler.RegisterRoutes(r)
			})
		},
		// Public: method listing for the storefront, signature-verified webhook.
		methodsHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Expired sessions pile up unless something sweeps them.
	cleanup := maintenance.NewCleanupService(sessionRepo, logger)
	go cleanup.Run(signalCtx)

	return runHTTPServer(signalCtx, srv, cfg, logger)
}

// newDatabasePool builds the pgx pool from configuration.
func newDatabasePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// databaseProbe reports database reachability to the health endpoint.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p databaseProbe) Name() string { return "database" }

func (p databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown driven by the given signal-aware context.
func runHTTPServer(signalCtx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}

		// Flushes buffered telemetry before the process exits.
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
