package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/dashboard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadDashboard()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(gin.ReleaseMode)

	client := dashboard.NewClient(cfg.APIBase, cfg.Timeout, logger)
	srv, err := dashboard.NewServer(cfg.HTTPAddr, client, client, logger)
	if err != nil {
		logger.Error("failed to create dashboard server", "error", err)
		os.Exit(1)
	}
	logger.Info("polling API", "api_base", cfg.APIBase, "timeout", cfg.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
