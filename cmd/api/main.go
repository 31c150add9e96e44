package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lucasvieira/planbook-backend/api/routes"
	"github.com/lucasvieira/planbook-backend/internal/booking"
	"github.com/lucasvieira/planbook-backend/internal/capacity"
	"github.com/lucasvieira/planbook-backend/internal/payments"
	"github.com/lucasvieira/planbook-backend/internal/sequence"
	paymentwebhook "github.com/lucasvieira/planbook-backend/internal/webhooks/payment"
	"github.com/lucasvieira/planbook-backend/pkg/config"
	"github.com/lucasvieira/planbook-backend/pkg/db"
	"github.com/lucasvieira/planbook-backend/pkg/instance"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/migrate"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
	"github.com/lucasvieira/planbook-backend/pkg/redis"
	"github.com/lucasvieira/planbook-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var gateway payments.Gateway
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap square client", err)
			os.Exit(1)
		}
		gateway = payments.NewSquareGateway(squareClient)
	} else {
		logg.Warn(context.Background(), "square gateway disabled, using noop gateway")
		gateway = payments.NewNoopGateway()
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	capacityService := capacity.NewService(
		capacity.NewRepository(dbClient.DB()),
		logg,
		cfg.Booking.UnboundedDisplay,
	)
	sequenceService := sequence.NewService(
		sequence.NewRepository(dbClient.DB()),
		cfg.Booking.ReferencePrefix,
		cfg.Booking.SequencePadding,
	)
	paymentService := payments.NewService(payments.Params{
		Repo:          payments.NewRepository(dbClient.DB()),
		Outbox:        outboxService,
		Gateway:       gateway,
		TxRunner:      dbClient,
		Logger:        logg,
		ChargeTimeout: cfg.Square.ChargeTimeout,
		GraceWindow:   cfg.Webhook.ReconcileGraceWindow,
	})
	bookingService := booking.NewService(booking.Params{
		Plans:       booking.NewPlanRepository(dbClient.DB()),
		Enrollments: booking.NewEnrollmentRepository(dbClient.DB()),
		Capacity:    capacityService,
		Sequence:    sequenceService,
		Payments:    paymentService,
		Outbox:      outboxService,
		TxRunner:    dbClient,
		Logger:      logg,
	})

	webhookGuard, err := paymentwebhook.NewGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Payments: paymentService,
		Guard:    webhookGuard,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, bookingService, webhookService),
	}

	serverErrs := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrs <- err
			return
		}
		serverErrs <- nil
	}()

	select {
	case err := <-serverErrs:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := multierr.Combine(server.Shutdown(shutdownCtx), <-serverErrs); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped gracefully")
}
