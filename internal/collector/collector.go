// Package collector consumes the task ledger written by the scheduler:
// it downloads each completed asset from the catalog and delivers it to
// the blob store. It runs as a separate process, typically hours after
// the scheduling run, and never writes state back to the ledger. A
// re-run re-delivers everything and relies on destination dedup.
package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/common"
	"github.com/ternarybob/humus/internal/gaps"
	"github.com/ternarybob/humus/internal/interfaces"
	"github.com/ternarybob/humus/internal/ledger"
	"github.com/ternarybob/humus/internal/models"
)

// DownloadError reports one asset whose content could not be fetched.
// Logged and tallied; the run continues with the next item.
type DownloadError struct {
	AssetPath string
	Err       error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.AssetPath, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Summary tallies one collection run. Always reported, even when every
// item failed.
type Summary struct {
	Uploaded int
	Failed   int
	Skipped  int
	Total    int
}

// Service reads the ledger and moves finished rasters to the blob store.
type Service struct {
	config  common.CollectorConfig
	catalog interfaces.AssetCatalog
	store   interfaces.BlobStore
	logger  arbor.ILogger
}

// NewService creates a collector service.
func NewService(config common.CollectorConfig, cat interfaces.AssetCatalog, store interfaces.BlobStore, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		catalog: cat,
		store:   store,
		logger:  logger,
	}
}

// Run processes one ledger file. Missing or corrupt ledgers are fatal;
// per-item download or upload failures are tallied and skipped. The
// eligibility lag mirrors the scheduler's: entries whose period is newer
// than now-minus-lag are skipped to give upstream jobs time to finish.
func (s *Service) Run(ctx context.Context, ledgerPath string, now time.Time) (*Summary, error) {
	start := time.Now()

	handles, err := ledger.Load(ledgerPath)
	if err != nil {
		return nil, err
	}

	if len(handles) == 0 {
		s.logger.Info().Str("ledger", ledgerPath).Msg("Task ledger is empty, nothing to collect")
		return &Summary{}, nil
	}

	folderID, err := s.store.GetOrCreateFolder(ctx, s.config.FolderName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination folder %q: %w", s.config.FolderName, err)
	}

	tempDir, err := os.MkdirTemp("", "humus_collect_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	s.logger.Info().
		Str("ledger", ledgerPath).
		Int("tasks", len(handles)).
		Str("folder", s.config.FolderName).
		Msg("Starting collection run")

	summary := &Summary{Total: len(handles)}

	for _, handle := range handles {
		period := handle.Period()

		if !s.eligible(period, now) {
			s.logger.Info().
				Str("period", period.String()).
				Str("asset_path", handle.AssetPath).
				Msg("Period too recent, skipping until upstream job settles")
			summary.Skipped++
			continue
		}

		if err := s.collectOne(ctx, handle, folderID, tempDir); err != nil {
			s.logger.Warn().
				Str("period", period.String()).
				Str("asset_path", handle.AssetPath).
				Err(err).
				Msg("Collection failed for task")
			summary.Failed++
			continue
		}

		summary.Uploaded++
	}

	s.logger.Info().
		Int("uploaded", summary.Uploaded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("total", summary.Total).
		Dur("duration", time.Since(start)).
		Msg("Collection run complete")

	return summary, nil
}

// eligible applies the completion lag: a period is collectable once it
// is at or before now-minus-lag whole periods.
func (s *Service) eligible(period models.Period, now time.Time) bool {
	cutoff := gaps.ScanEnd(now, period.Granularity(), s.config.Lag)
	return !period.After(cutoff)
}

// collectOne downloads one asset and uploads it to the blob store. The
// local copy is removed on success; the temp dir sweep catches failures.
func (s *Service) collectOne(ctx context.Context, handle models.JobHandle, folderID, tempDir string) error {
	name := filepath.Base(handle.AssetPath) + ".tif"
	localPath := filepath.Join(tempDir, name)

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	if err := s.catalog.Download(ctx, handle.AssetPath, f); err != nil {
		f.Close()
		os.Remove(localPath)
		return &DownloadError{AssetPath: handle.AssetPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", localPath, err)
	}

	if _, err := s.store.Upload(ctx, folderID, localPath, name); err != nil {
		return fmt.Errorf("upload failed for %s: %w", name, err)
	}

	os.Remove(localPath)
	return nil
}
