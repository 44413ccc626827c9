// Package export turns missing periods into submitted export jobs: it
// resolves the output asset id (probing versions when the product is
// versioned), requests the model computation, and starts an asynchronous
// export against the computed artifact.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/common"
	"github.com/ternarybob/humus/internal/interfaces"
	"github.com/ternarybob/humus/internal/models"
	"github.com/ternarybob/humus/internal/versions"
)

// SubmissionError reports that one period's export job could not be
// started. The batch runner records it and continues with the next
// period; nothing at this layer retries.
type SubmissionError struct {
	Period models.Period
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed for period %s: %v", e.Period, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submitter submits export jobs for one product. It is run-scoped: the
// resolved region coordinates are cached after the first submission and
// reused for the rest of the run, since the region never changes.
// Submissions are serial, so the cache needs no locking.
type Submitter struct {
	product   common.ProductConfig
	defaults  common.ExportConfig
	predictor interfaces.PredictorService
	exporter  interfaces.ExportAPI
	resolver  *versions.Resolver
	logger    arbor.ILogger

	regionCoords [][]float64
}

// NewSubmitter creates a run-scoped submitter for one product.
func NewSubmitter(product common.ProductConfig, defaults common.ExportConfig, pred interfaces.PredictorService, exporter interfaces.ExportAPI, resolver *versions.Resolver, logger arbor.ILogger) *Submitter {
	return &Submitter{
		product:   product,
		defaults:  defaults,
		predictor: pred,
		exporter:  exporter,
		resolver:  resolver,
		logger:    logger,
	}
}

// region resolves the export region once per run.
func (s *Submitter) region(ctx context.Context) ([][]float64, error) {
	if s.regionCoords != nil {
		return s.regionCoords, nil
	}

	coords, err := s.predictor.ResolveRegion(ctx, s.product.Region)
	if err != nil {
		return nil, err
	}

	s.regionCoords = coords
	s.logger.Debug().
		Str("region", s.product.Region).
		Int("points", len(coords)).
		Msg("Export region resolved")
	return coords, nil
}

func (s *Submitter) scale() int {
	if s.product.Scale > 0 {
		return s.product.Scale
	}
	return s.defaults.Scale
}

func (s *Submitter) crs() string {
	if s.product.CRS != "" {
		return s.product.CRS
	}
	return s.defaults.CRS
}

func (s *Submitter) maxPixels() float64 {
	if s.product.MaxPixels > 0 {
		return s.product.MaxPixels
	}
	return s.defaults.MaxPixels
}

// Submit starts one period's export and returns its handle without
// waiting for completion. Every failure is wrapped in SubmissionError.
func (s *Submitter) Submit(ctx context.Context, period models.Period) (*models.JobHandle, error) {
	assetID := s.product.AssetID(period)
	if s.product.Versioned {
		assetID = s.resolver.NextVersion(ctx, assetID)
	}
	description := assetID[strings.LastIndexByte(assetID, '/')+1:]

	artifact, err := s.predictor.Compute(ctx, s.product.Name, period)
	if err != nil {
		return nil, &SubmissionError{Period: period, Err: err}
	}

	coords, err := s.region(ctx)
	if err != nil {
		return nil, &SubmissionError{Period: period, Err: err}
	}

	taskID, err := s.exporter.StartExport(ctx, models.ExportRequest{
		Artifact:    artifact,
		AssetID:     assetID,
		Description: description,
		Scale:       s.scale(),
		CRS:         s.crs(),
		MaxPixels:   s.maxPixels(),
		Region:      coords,
	})
	if err != nil {
		return nil, &SubmissionError{Period: period, Err: err}
	}
	if taskID == "" {
		taskID = common.NewTaskID()
	}

	s.logger.Info().
		Str("product", s.product.Name).
		Str("period", period.String()).
		Str("asset_id", assetID).
		Str("task_id", taskID).
		Msg("Export started")

	return &models.JobHandle{
		TaskID:      taskID,
		AssetPath:   assetID,
		Year:        period.Year,
		Month:       period.Month,
		Description: description,
		Status:      models.TaskStatusSubmitted,
	}, nil
}
