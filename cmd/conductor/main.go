// Package main provides the Conductor dataset control plane service.
//
// The service manages dataset definitions through their lifecycle (Draft,
// ReadyToPublish, Live, Retired), compiles ingestion and table specs on
// publish, and accepts events for live datasets.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/conductor-io/conductor/internal/api"
	"github.com/conductor-io/conductor/internal/api/middleware"
	"github.com/conductor-io/conductor/internal/ingest"
	"github.com/conductor-io/conductor/internal/orchestrator"
	"github.com/conductor-io/conductor/internal/service"
	"github.com/conductor-io/conductor/internal/storage"
	"github.com/conductor-io/conductor/internal/tablespec"
)

// Version information.
const (
	version = "2.0.0-dev"
	name    = "conductor"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Conductor service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("address", serverConfig.Address()),
	)

	storageConfig := storage.LoadConfig()

	conn, err := storage.Connect(context.Background(), storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = conn.Close()
	}()

	logger.Info("Database connection established",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	store, err := storage.NewDatasetStore(conn)
	if err != nil {
		logger.Error("Failed to create dataset store", slog.String("error", err.Error()))
		_ = conn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	specDefaults, err := tablespec.LoadDefaultsFromEnv()
	if err != nil {
		logger.Error("Failed to load spec defaults", slog.String("error", err.Error()))
		_ = conn.Close()
		os.Exit(1)
	}

	orchConfig := orchestrator.LoadConfig()
	commandClient := orchestrator.NewCommandClient(orchConfig)
	druidClient := orchestrator.NewDruidClient(orchConfig)

	logger.Info("Orchestration clients initialized",
		slog.String("command_service_url", orchConfig.CommandServiceURL),
		slog.String("druid_url", orchConfig.DruidURL),
	)

	publisherConfig := ingest.LoadConfig()
	publisher := ingest.NewPublisher(publisherConfig)

	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", slog.String("error", err.Error()))
		}
	}()

	logger.Info("Event publisher initialized",
		slog.Any("brokers", publisherConfig.Brokers),
	)

	datasets := service.New(store, specDefaults, commandClient, druidClient, publisher)

	rateLimiterConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimiterConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateLimiterConfig.GlobalRPS),
		slog.Int("dataset_rps", rateLimiterConfig.DatasetRPS),
	)

	server := api.NewServer(serverConfig, datasets, conn, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
