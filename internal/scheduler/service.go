package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/common"
	"github.com/ternarybob/humus/internal/export"
	"github.com/ternarybob/humus/internal/gaps"
	"github.com/ternarybob/humus/internal/interfaces"
	"github.com/ternarybob/humus/internal/ledger"
	"github.com/ternarybob/humus/internal/models"
	"github.com/ternarybob/humus/internal/versions"
)

// RunSummary tallies one scheduling pass across all products.
type RunSummary struct {
	Submitted int
	Failed    int
	Total     int
}

// Service orchestrates one full scheduling pass: per product, list the
// catalog, detect gaps, submit export jobs in batches, then persist the
// combined task ledger. It can run once or on a cron schedule.
type Service struct {
	config    *common.Config
	catalog   interfaces.AssetCatalog
	predictor interfaces.PredictorService
	exporter  interfaces.ExportAPI
	logger    arbor.ILogger

	cron         *cron.Cron
	mu           sync.Mutex // Prevents overlapping scheduled runs
	isProcessing bool
	running      bool
}

// NewService creates a scheduler service.
func NewService(config *common.Config, cat interfaces.AssetCatalog, pred interfaces.PredictorService, exporter interfaces.ExportAPI, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		catalog:   cat,
		predictor: pred,
		exporter:  exporter,
		logger:    logger,
	}
}

// RunOnce executes one scheduling pass with the given "now" and writes
// the task ledger. Per-period failures are tallied, never fatal; only
// setup problems (no products, unwritable ledger) return an error.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (*RunSummary, error) {
	start := time.Now()

	if len(s.config.Products) == 0 {
		return nil, fmt.Errorf("no products configured")
	}

	summary := &RunSummary{}
	var allHandles []models.JobHandle

	for i := range s.config.Products {
		product := s.config.Products[i]

		handles, failures, err := s.runProduct(ctx, &product, now)
		if err != nil {
			// Product-level setup errors (bad pattern) are config bugs;
			// surface them instead of silently skipping the product.
			return nil, fmt.Errorf("product %q: %w", product.Name, err)
		}

		allHandles = append(allHandles, handles...)
		summary.Submitted += len(handles)
		summary.Failed += len(failures)
		summary.Total += len(handles) + len(failures)
	}

	if err := ledger.Save(allHandles, s.config.Scheduler.LedgerPath); err != nil {
		return nil, fmt.Errorf("failed to persist task ledger: %w", err)
	}

	s.logger.Info().
		Int("submitted", summary.Submitted).
		Int("failed", summary.Failed).
		Int("total", summary.Total).
		Str("ledger", s.config.Scheduler.LedgerPath).
		Dur("duration", time.Since(start)).
		Msg("Scheduling run complete")

	return summary, nil
}

// runProduct schedules one product's missing periods.
func (s *Service) runProduct(ctx context.Context, product *common.ProductConfig, now time.Time) ([]models.JobHandle, []SubmitFailure, error) {
	granularity := product.GranularityType()

	pattern, err := gaps.NewPattern(product.NamePattern, granularity)
	if err != nil {
		return nil, nil, err
	}

	listing, err := s.catalog.List(ctx, product.AssetFolder)
	if err != nil {
		// Transient listing failure: degrade to empty-known-state so the
		// scan still runs from the epoch, rather than aborting.
		s.logger.Warn().
			Str("product", product.Name).
			Str("folder", product.AssetFolder).
			Err(err).
			Msg("Catalog listing unavailable, assuming no existing assets")
		listing = nil
	}

	scanStart := gaps.ScanStart(listing, pattern, product.EpochYear)
	scanEnd := gaps.ScanEnd(now, granularity, product.Lag)

	if scanEnd.Before(scanStart) {
		s.logger.Info().
			Str("product", product.Name).
			Str("scan_start", scanStart.String()).
			Str("scan_end", scanEnd.String()).
			Msg("No complete periods to process yet")
		return nil, nil, nil
	}

	s.logger.Info().
		Str("product", product.Name).
		Str("scan_start", scanStart.String()).
		Str("scan_end", scanEnd.String()).
		Int("existing", len(listing)).
		Msg("Scanning for missing periods")

	missing := gaps.FindMissing(listing, pattern, scanStart, scanEnd)

	if product.ForceCurrent {
		current := models.PeriodOf(now, granularity)
		if len(missing) == 0 || missing[len(missing)-1].Before(current) {
			s.logger.Info().
				Str("product", product.Name).
				Str("period", current.String()).
				Msg("Forcing current period export")
			missing = append(missing, current)
		}
	}

	if len(missing) == 0 {
		s.logger.Info().
			Str("product", product.Name).
			Msg("All periods up to date")
		return nil, nil, nil
	}

	resolver := versions.NewResolver(s.catalog, s.logger)
	submitter := export.NewSubmitter(*product, s.config.Export, s.predictor, s.exporter, resolver, s.logger)
	runner := NewRunner(submitter, s.config.Scheduler.BatchSize, s.logger)

	handles, failures := runner.Run(ctx, missing)
	return handles, failures, nil
}

// Start begins daemon mode: RunOnce on the configured cron schedule.
func (s *Service) Start(cronExpr string) error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		return fmt.Errorf("no cron schedule configured")
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(cronExpr, s.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Msg("Scheduler started")

	return nil
}

// Stop halts daemon mode.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if daemon mode is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// runScheduled wraps RunOnce with panic recovery and a non-reentrant
// guard for cron-triggered runs.
func (s *Service) runScheduled() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled run")
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.logger.Debug().Msg("Previous scheduling run still in progress, skipping this cycle")
		s.mu.Unlock()
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(context.Background(), time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
	}
}
