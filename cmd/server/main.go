// Package main provides the API server entry point for the review-request backfill service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/api"
	"github.com/review-backfill/internal/config"
	"github.com/review-backfill/internal/email"
	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/retry"
	"github.com/review-backfill/internal/service"
	"github.com/review-backfill/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse holds only the dispatch-outcome diagnostics log; the
	// service runs without it when no host is configured.
	var outcomeLog *storage.OutcomeLog
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		outcomeLog = storage.NewOutcomeLog(clickhouse)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := outcomeLog.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to prepare dispatch outcome log schema")
		}
		cancel()
	} else {
		logger.Warn("ClickHouse host not configured - dispatch outcome log disabled")
	}

	logger.Info("Database connections established")

	// Initialize repositories
	connectionRepo := storage.NewConnectionRepository(postgres)
	jobRepo := storage.NewBackfillJobRepository(postgres)
	outreachRepo := storage.NewOutreachRepository(postgres)
	jobLock := storage.NewJobLock(redis, cfg.Backfill.JobTimeout)

	// Initialize the commerce platform client
	commerce := adapter.NewCommerceClient(
		cfg.Platform.ProductionURL,
		cfg.Platform.SandboxURL,
		cfg.Platform.RequestsPerSec,
		cfg.Platform.Timeout,
	)

	// Initialize the email sender
	var sender email.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
	} else {
		logger.Warn("RESEND_API_KEY not set - review requests will be logged, not sent")
		sender = email.NewNoopSender()
	}

	// Initialize services
	logger.Info("Initializing services...")

	tokens := service.NewTokenSource(connectionRepo, commerce)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Backfill.ImportRetries

	importer := service.NewImporter(commerce, tokens, retryCfg, cfg.Backfill.PageSize)
	dispatcher := service.NewDispatcher(sender, outreachRepo, cfg.Email.SendRetries)

	backfillCfg := &service.BackfillServiceConfig{
		Jobs:           jobRepo,
		Connections:    connectionRepo,
		Importer:       importer,
		Dispatcher:     dispatcher,
		Lock:           jobLock,
		LookbackWindow: cfg.Backfill.LookbackWindow,
		JobTimeout:     cfg.Backfill.JobTimeout,
		ReviewLinkBase: cfg.Email.ReviewLinkBase,
	}
	if outcomeLog != nil {
		backfillCfg.Outcomes = outcomeLog
	}
	backfillService := service.NewBackfillService(backfillCfg)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:                cfg.Server.Host,
		Port:                cfg.Server.Port,
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        cfg.Backfill.JobTimeout + 30*time.Second,
		IdleTimeout:         60 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		RequestsPerSec:      float64(cfg.RateLimit.RequestsPerSec),
		Burst:               cfg.RateLimit.Burst,
		DefaultMaxCustomers: cfg.Backfill.DefaultMaxCustomers,
		MaxCustomersCap:     cfg.Backfill.MaxCustomersCap,
	}

	server := api.NewServer(serverConfig, backfillService, service.AllowAllEntitlements{})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
