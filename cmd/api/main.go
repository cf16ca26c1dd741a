package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/covid-analytics-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/covid-analytics-service/internal/adapter/kafka"
	mongoadapter "github.com/couchcryptid/covid-analytics-service/internal/adapter/mongo"
	"github.com/couchcryptid/covid-analytics-service/internal/adapter/warehouse"
	"github.com/couchcryptid/covid-analytics-service/internal/cache"
	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/observability"
	"github.com/couchcryptid/covid-analytics-service/internal/service"
)

func main() {
	// A local .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		if cfg.SecretKey == config.DefaultSecretKey {
			logger.Warn("SECRET_KEY is the built-in default")
		}
	}

	wh, err := warehouse.New(cfg.Warehouse, logger, metrics)
	if err != nil {
		logger.Error("failed to configure warehouse", "error", err)
		os.Exit(1)
	}

	store, err := cache.OpenStore(cfg.Cache, logger)
	if err != nil {
		logger.Error("failed to open cache store", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	c := cache.New(store, cfg.Cache.Prefix, cfg.Cache.OpTimeout, logger, metrics)
	logger.Info("cache configured", "backend", cfg.Cache.Backend, "timeseries_ttl", cfg.Cache.TimeseriesTTL)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	comments, err := mongoadapter.Connect(connectCtx, cfg.Mongo)
	cancelConnect()
	if err != nil {
		logger.Error("failed to configure document store", "error", err)
		os.Exit(1)
	}

	deps := service.Deps{
		Warehouse:     wh,
		Cache:         c,
		Comments:      comments,
		TimeseriesTTL: cfg.Cache.TimeseriesTTL,
		Logger:        logger,
		Metrics:       metrics,
	}

	// Comment events are feature-flagged via KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg.Kafka, logger)
		deps.Events = publisher
		logger.Info("comment events enabled", "topic", cfg.Kafka.CommentsTopic)
	} else {
		logger.Info("comment events disabled")
	}

	app := service.New(deps)
	srv := httpadapter.NewServer(cfg.HTTPAddr, app, app, logger, metrics)

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
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := c.Close(); err != nil {
		logger.Error("cache close error", "error", err)
	}
	if err := comments.Close(shutdownCtx); err != nil {
		logger.Error("document store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
