package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"ssmdquery/config"
	"ssmdquery/internal/api"
	"ssmdquery/internal/engine"
	"ssmdquery/internal/fresh"
	"ssmdquery/internal/gcs"
	"ssmdquery/internal/query"
	"ssmdquery/internal/tools"
	"ssmdquery/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Ssmdquery.Name,
		"version": cfg.Ssmdquery.Version,
	}).Info("starting ssmdquery")

	if !cfg.RemoteConfigured() {
		log.Warn("neither SSMD_API_URL nor a GCS bucket is configured; queries will return empty results")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	var transport gcs.Transport
	if cfg.GCS.Transport == "sdk" {
		sdk, err := gcs.NewSDKTransport(ctx, cfg.GCS.Endpoint,
			os.Getenv("SSMD_GCS_ACCESS_KEY"), os.Getenv("SSMD_GCS_SECRET_KEY"))
		if err != nil {
			log.WithError(err).Error("Failed to build the SDK transport")
			os.Exit(1)
		}
		transport = sdk
	} else {
		transport = gcs.NewCLITransport()
	}

	resolver := gcs.NewResolver(transport)
	provisioner := engine.NewProvisioner(cfg.GCS.Endpoint, resolver)

	paths := &gcs.Paths{Bucket: cfg.GCS.Bucket, Overrides: cfg.GCS.FeedPaths}
	dispatcher := query.NewDispatcher(paths, &gcs.Cache{Dir: cfg.GCS.CacheDir}, transport)
	prober := fresh.NewProber(paths, transport, cfg.Freshness.StaleThresholdHours, cfg.Freshness.MaxDates)
	apiClient := api.NewClient(cfg.API.URL, cfg.API.Key, cfg.API.Timeout)

	svc := tools.NewService(func(ctx context.Context) (engine.Runner, error) {
		return provisioner.Open(ctx)
	}, dispatcher, prober, apiClient)

	mcpServer := server.NewMCPServer(cfg.Ssmdquery.Name, cfg.Ssmdquery.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	tools.Register(mcpServer, svc)

	log.WithFields(logger.Fields{
		"bucket":    cfg.GCS.Bucket,
		"transport": cfg.GCS.Transport,
		"api":       cfg.API.URL != "",
	}).Info("serving on stdio")

	if err := server.ServeStdio(mcpServer); err != nil {
		log.WithError(err).Error("Server terminated")
		os.Exit(1)
	}
}
