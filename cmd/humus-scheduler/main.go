package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/humus/internal/catalog"
	"github.com/ternarybob/humus/internal/common"
	"github.com/ternarybob/humus/internal/export"
	"github.com/ternarybob/humus/internal/predictor"
	"github.com/ternarybob/humus/internal/scheduler"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	runOnce      = flag.Bool("once", false, "Run a single scan and exit (ignores the cron schedule)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Humus scheduler version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> files -> env)
	// 2. Initialize logger
	// 3. Print banner
	// 4. Build clients and run

	if len(configFiles) == 0 {
		if _, err := os.Stat("humus.toml"); err == nil {
			configFiles = append(configFiles, "humus.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		// Console-only logger; the configured writers are not set up yet.
		common.GetLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner("Humus Scheduler", common.GetVersion())

	logger.Info().
		Str("version", common.GetFullVersion()).
		Str("environment", config.Environment).
		Int("products", len(config.Products)).
		Int("batch_size", config.Scheduler.BatchSize).
		Msg("Starting humus scheduler")

	cat := catalog.NewClient(config.Catalog.BaseURL, config.Catalog.Token,
		catalog.WithLogger(logger),
		catalog.WithRateLimit(config.Catalog.RateLimit),
		catalog.WithTimeout(config.Catalog.TimeoutDuration()))
	pred := predictor.NewClient(config.Predictor.BaseURL, config.Predictor.Token,
		predictor.WithLogger(logger),
		predictor.WithRateLimit(config.Predictor.RateLimit),
		predictor.WithTimeout(config.Predictor.TimeoutDuration()))
	exporter := export.NewJobClient(config.Export.BaseURL, config.Export.Token,
		export.WithLogger(logger),
		export.WithRateLimit(config.Export.RateLimit),
		export.WithTimeout(config.Export.TimeoutDuration()))

	service := scheduler.NewService(config, cat, pred, exporter, logger)

	if *runOnce || config.Scheduler.Schedule == "" {
		if _, err := service.RunOnce(context.Background(), time.Now()); err != nil {
			logger.Fatal().Err(err).Msg("Scheduling run failed")
			os.Exit(1)
		}
		return
	}

	if err := service.Start(config.Scheduler.Schedule); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}

	// Block until shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if err := service.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Scheduler did not stop cleanly")
	}

	logger.Info().Msg("Humus scheduler stopped")
}
