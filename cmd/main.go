/**
 * @description
 * Entry point for the billing service.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tributary-so/tributary/internal/api"
	"github.com/tributary-so/tributary/internal/app"
	"github.com/tributary-so/tributary/internal/config"
	"github.com/tributary-so/tributary/internal/store"
	"github.com/tributary-so/tributary/pkg/ledgerclient"
	"github.com/tributary-so/tributary/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewRepository(dbpool)
	ledger := ledgerclient.NewClient(cfg.LedgerServiceURL, cfg.LedgerAPIKey)

	var publisher app.EventPublisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	service := app.NewService(repository, ledger, publisher)
	jobs := app.NewJobs(service, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	handler := api.NewHandler(service, jobs)
	router := api.NewRouter(handler, cfg.GatewayJWKSURL, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	<-scheduler.Stop().Done()
	logger.Info("server stopped")
}
