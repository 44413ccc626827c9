package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/humus/internal/blobstore"
	"github.com/ternarybob/humus/internal/catalog"
	"github.com/ternarybob/humus/internal/collector"
	"github.com/ternarybob/humus/internal/common"
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
		fmt.Printf("Humus collector version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

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
	common.PrintBanner("Humus Collector", common.GetVersion())

	// Ledger path: positional argument overrides the configured default.
	ledgerPath := config.Collector.LedgerPath
	if flag.NArg() > 0 {
		ledgerPath = flag.Arg(0)
	}

	logger.Info().
		Str("version", common.GetFullVersion()).
		Str("ledger", ledgerPath).
		Str("folder", config.Collector.FolderName).
		Msg("Starting humus collector")

	cat := catalog.NewClient(config.Catalog.BaseURL, config.Catalog.Token,
		catalog.WithLogger(logger),
		catalog.WithRateLimit(config.Catalog.RateLimit),
		catalog.WithTimeout(config.Catalog.TimeoutDuration()))

	store, err := blobstore.NewClient(config.Drive, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create blob store client")
		os.Exit(1)
	}

	service := collector.NewService(config.Collector, cat, store, logger)

	summary, err := service.Run(context.Background(), ledgerPath, time.Now())
	if err != nil {
		logger.Fatal().Str("ledger", ledgerPath).Err(err).Msg("Collection run failed")
		os.Exit(1)
	}

	if summary.Failed > 0 {
		logger.Warn().
			Int("failed", summary.Failed).
			Int("uploaded", summary.Uploaded).
			Msg("Collection finished with failures")
	}
}
