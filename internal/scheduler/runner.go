// Package scheduler drives gap detection through batched job submission
// and persists the resulting task ledger.
package scheduler

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/interfaces"
	"github.com/ternarybob/humus/internal/models"
)

// SubmitFailure records one period whose submission failed. Failures
// are tallied and reported, never retried here.
type SubmitFailure struct {
	Period models.Period
	Err    error
}

// Runner submits missing periods in fixed-size batches. Submissions are
// serial within and across batches to respect the compute service's
// submission quota; batching exists for bookkeeping and log grouping.
type Runner struct {
	submitter interfaces.JobSubmitter
	batchSize int
	logger    arbor.ILogger
}

// NewRunner creates a batch runner. A batch size below 1 is clamped to 1.
func NewRunner(submitter interfaces.JobSubmitter, batchSize int, logger arbor.ILogger) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Runner{
		submitter: submitter,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run submits every period in order. Each input period ends up in
// exactly one of the two results: a handle on success or a failure
// record on error. Individual failures never abort the run.
func (r *Runner) Run(ctx context.Context, periods []models.Period) ([]models.JobHandle, []SubmitFailure) {
	if len(periods) == 0 {
		return nil, nil
	}

	batches := (len(periods) + r.batchSize - 1) / r.batchSize

	r.logger.Info().
		Int("periods", len(periods)).
		Int("batch_size", r.batchSize).
		Int("batches", batches).
		Str("first", periods[0].String()).
		Str("last", periods[len(periods)-1].String()).
		Msg("Starting batch submission")

	var handles []models.JobHandle
	var failures []SubmitFailure

	for b := 0; b < batches; b++ {
		start := b * r.batchSize
		end := start + r.batchSize
		if end > len(periods) {
			end = len(periods)
		}
		batch := periods[start:end]

		r.logger.Info().
			Int("batch", b+1).
			Int("of", batches).
			Int("size", len(batch)).
			Msg("Submitting batch")

		for _, period := range batch {
			handle, err := r.submitter.Submit(ctx, period)
			if err != nil {
				r.logger.Warn().
					Str("period", period.String()).
					Err(err).
					Msg("Submission failed")
				failures = append(failures, SubmitFailure{Period: period, Err: err})
				continue
			}
			handles = append(handles, *handle)
		}
	}

	r.logger.Info().
		Int("success", len(handles)).
		Int("errors", len(failures)).
		Int("total", len(periods)).
		Msg("Batch submission complete")

	for _, f := range failures {
		r.logger.Warn().
			Str("period", f.Period.String()).
			Err(f.Err).
			Msg("Failed period")
	}

	return handles, failures
}
