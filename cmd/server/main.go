package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"

	"github.com/rowanhale/fakturo/internal"
	"github.com/rowanhale/fakturo/internal/handler"
	"github.com/rowanhale/fakturo/internal/handler/webhook"
	"github.com/rowanhale/fakturo/internal/postgres"
	"github.com/rowanhale/fakturo/internal/queue"
	"github.com/rowanhale/fakturo/internal/service"
)

func run() error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// database/sql connection for migrations only
	logger.Info().Msg("connecting to database")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info().Msg("running database migrations")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	broker, err := queue.Connect(cfg.Queue.ServerURL(), "fakturo-server", queue.RoleProducer, logger)
	if err != nil {
		return fmt.Errorf("queue connection failed: %w", err)
	}
	defer broker.Close()

	if err := broker.EnsureTopics(); err != nil {
		return fmt.Errorf("queue topic setup failed: %w", err)
	}

	dispatcher := service.NewDispatcher(
		postgres.NewInvoiceStore(pool),
		postgres.NewClientStore(pool),
		postgres.NewPaymentStore(pool),
		broker,
		logger,
	)

	e := echo.New()
	e.HideBanner = true

	api := handler.NewAPI(dispatcher, logger)
	api.Routes(e)

	stripeHandler := webhook.NewStripeHandler(dispatcher, cfg.Stripe.WebhookSecret, logger)
	stripeHandler.Routes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info().Str("addr", addr).Msg("starting api server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
