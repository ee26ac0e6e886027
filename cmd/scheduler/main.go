package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rowanhale/fakturo/internal"
	"github.com/rowanhale/fakturo/internal/email"
	"github.com/rowanhale/fakturo/internal/postgres"
	"github.com/rowanhale/fakturo/internal/render"
	"github.com/rowanhale/fakturo/internal/service"
	"github.com/rowanhale/fakturo/internal/telemetry"
)

// The scheduler is a one-shot batch job, intended to run once per day
// at 00:00 UTC under cron or an equivalent scheduler.
func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
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

	mailer, err := email.NewService(
		email.NewPostmarkSender(cfg.Email.PostmarkToken),
		cfg.Email.From, cfg.Email.FromName,
	)
	if err != nil {
		return fmt.Errorf("email service setup failed: %w", err)
	}

	scheduler := service.NewScheduler(
		postgres.NewInvoiceStore(pool),
		postgres.NewClientStore(pool),
		postgres.NewBusinessStore(pool),
		render.NewClient(cfg.Render.BaseURL, cfg.Render.Secret),
		mailer,
		telemetry.NewMetrics("fakturo", prometheus.DefaultRegisterer),
		logger,
	)

	now := time.Now().UTC()

	marked, err := scheduler.RunOverdueSweep(ctx, now)
	if err != nil {
		return fmt.Errorf("overdue sweep failed: %w", err)
	}

	result, err := scheduler.RunReminderFanout(ctx, now)
	if err != nil {
		return fmt.Errorf("reminder fanout failed: %w", err)
	}

	logger.Info().
		Int64("overdue_marked", marked).
		Int("reminders_sent", result.Sent).
		Int("reminders_failed", result.Failed).
		Msg("scheduler run complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
