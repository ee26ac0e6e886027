package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rowanhale/fakturo/internal"
	"github.com/rowanhale/fakturo/internal/renderservice"
)

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	svc := renderservice.NewService(cfg.Render.PoolSize, cfg.Render.Secret, logger)
	defer svc.Shutdown()

	e := echo.New()
	e.HideBanner = true
	svc.Routes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Render.Port)
		logger.Info().Str("addr", addr).Int("pool_size", cfg.Render.PoolSize).Msg("starting render service")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("render service failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
