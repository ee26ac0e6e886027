package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rowanhale/fakturo/internal"
	"github.com/rowanhale/fakturo/internal/email"
	"github.com/rowanhale/fakturo/internal/postgres"
	"github.com/rowanhale/fakturo/internal/queue"
	"github.com/rowanhale/fakturo/internal/render"
	"github.com/rowanhale/fakturo/internal/service"
	"github.com/rowanhale/fakturo/internal/telemetry"
	"github.com/rowanhale/fakturo/internal/worker"
)

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Consumers never give up reconnecting to the broker.
	broker, err := queue.Connect(cfg.Queue.ServerURL(), "fakturo-worker", queue.RoleConsumer, logger)
	if err != nil {
		return fmt.Errorf("queue connection failed: %w", err)
	}
	defer broker.Close()

	if err := broker.EnsureTopics(); err != nil {
		return fmt.Errorf("queue topic setup failed: %w", err)
	}

	mailer, err := email.NewService(
		email.NewPostmarkSender(cfg.Email.PostmarkToken),
		cfg.Email.From, cfg.Email.FromName,
	)
	if err != nil {
		return fmt.Errorf("email service setup failed: %w", err)
	}

	invoices := postgres.NewInvoiceStore(pool)
	clients := postgres.NewClientStore(pool)
	payments := postgres.NewPaymentStore(pool)
	businesses := postgres.NewBusinessStore(pool)

	dispatcher := service.NewDispatcher(invoices, clients, payments, broker, logger)
	metrics := telemetry.NewMetrics("fakturo", prometheus.DefaultRegisterer)

	w := worker.New(
		invoices, clients, payments, businesses,
		render.NewClient(cfg.Render.BaseURL, cfg.Render.Secret),
		mailer,
		dispatcher,
		metrics,
		logger,
		cfg.Email.OperatorEmail,
	)

	// Metrics and liveness endpoint.
	e := echo.New()
	e.HideBanner = true
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer func() { _ = e.Shutdown(context.Background()) }()

	var wg sync.WaitGroup
	consume := func(topic, durable string, handler queue.Handler) {
		defer wg.Done()
		if err := broker.Consume(ctx, topic, durable, handler); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("topic", topic).Msg("consumer stopped")
			cancel()
		}
	}

	wg.Add(2)
	go consume(queue.TopicEmailInvoice, "worker-email-invoice", w.HandleInvoiceJob)
	go consume(queue.TopicEmailReceipt, "worker-email-receipt", w.HandleReceiptJob)

	logger.Info().Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("shutting down, letting in-flight jobs finish")
	wg.Wait()
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
