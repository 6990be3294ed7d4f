// Package main provides the API server entry point for the address vault service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/address-vault/internal/api"
	"github.com/address-vault/internal/config"
	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/storage"
	"github.com/redis/go-redis/v9"
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

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis for the shared rate-limit window. Optional: the
	// server falls back to per-process limits without it.
	var redisClient redis.Cmdable
	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-process rate limiting")
	} else {
		defer redisCache.Close()
		redisClient = redisCache.Client()
	}

	// Connect to ClickHouse for access analytics when enabled
	var analytics service.AccessEventRecorder
	var usageProvider api.UsageSummaryProvider
	if cfg.Analytics.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Analytics)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, access analytics disabled")
		} else {
			defer clickhouse.Close()
			sink := storage.NewResilientEventSink(storage.NewAccessEventSink(clickhouse))
			analytics = sink
			usageProvider = sink
			logger.Info("Access analytics sink initialized")
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	permissionRepo := storage.NewPermissionRepository(postgres)
	addressRepo := storage.NewAddressRepository(postgres)
	accessLogRepo := storage.NewAccessLogRepository(postgres)
	walletRepo := storage.NewWalletRepository(postgres)

	// Initialize services
	accessService := service.NewAccessService(permissionRepo, addressRepo, walletRepo, analytics, logger)
	permissionService := service.NewPermissionService(permissionRepo, accessLogRepo, logger)
	walletService := service.NewWalletService(walletRepo, logger)
	verificationService := service.NewVerificationService(addressRepo, walletRepo)

	// Initialize API server
	serverConfig := &api.ServerConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		AddressRateLimit: cfg.RateLimit.AddressPerMinute,
		RevokeRateLimit:  cfg.RateLimit.RevokePerMinute,
	}

	server := api.NewServer(serverConfig, accessService, permissionService, walletService, verificationService, usageProvider, redisClient)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server error")
		}
	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}

	logger.Info("Server stopped")
}
