package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/internal/resilience"
)

// BatchExcluder persists batches whose confirmation budget is exhausted.
type BatchExcluder interface {
	AddExcludedBatch(ctx context.Context, b *model.ExcludedBatch) error
}

// Outcome summarizes one confirmation pass.
type Outcome struct {
	Confirmed       []model.CandidateRecord
	Rejected        int
	ExcludedRecords int
	ExcludedBatches int
}

// Confirmer splits candidates into batches and confirms them concurrently.
// A batch that exhausts its retry budget is parked as an excluded batch and
// the pass continues; one bad batch never fails the run.
type Confirmer struct {
	provider  Provider
	excluder  BatchExcluder
	batchSize int
	workers   int
	timeout   time.Duration
	retry     resilience.RetryConfig
}

// New builds a Confirmer from configuration.
func New(provider Provider, excluder BatchExcluder, cfg config.ConfirmConfig) *Confirmer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	retry := resilience.FromConfig(cfg.MaxAttempts, cfg.RetryDelayMs)
	// Timeouts, transport failures, and malformed responses are retried;
	// anything else fails the batch on the first attempt.
	retry.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, errUnparseable)
	}

	return &Confirmer{
		provider:  provider,
		excluder:  excluder,
		batchSize: batchSize,
		workers:   workers,
		timeout:   timeout,
		retry:     retry,
	}
}

// Method returns the filter_method value recorded with rows this confirmer
// lets through.
func (c *Confirmer) Method() string {
	return "llm_" + c.provider.Name()
}

// ConfirmAll confirms every candidate, batch by batch. Returns an error only
// on persistence failures; provider failures degrade to excluded batches.
func (c *Confirmer) ConfirmAll(ctx context.Context, runID string, candidates []model.CandidateRecord) (*Outcome, error) {
	out := &Outcome{}
	if len(candidates) == 0 {
		return out, nil
	}

	batches := splitBatches(candidates, c.batchSize)
	zap.L().Info("confirming candidates",
		zap.String("provider", c.provider.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", c.workers),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, batch := range batches {
		g.Go(func() error {
			verdicts, attempts, err := c.confirmBatch(gctx, i, batch)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				zap.L().Warn("batch excluded after retries",
					zap.Int("batch", i),
					zap.Int("records", len(batch)),
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				out.ExcludedBatches++
				out.ExcludedRecords += len(batch)
				return c.excluder.AddExcludedBatch(ctx, &model.ExcludedBatch{
					RunID:      runID,
					Records:    batch,
					Reason:     fmt.Sprintf("confirmation failed after %d attempts: %v", attempts, err),
					RetryCount: attempts,
				})
			}

			for _, r := range batch {
				if verdicts[r.PageTitle] {
					out.Confirmed = append(out.Confirmed, r)
				} else {
					out.Rejected++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// confirmBatch runs one batch through the provider with a per-attempt
// timeout and the configured retry budget. The attempt count is reported so
// an excluded batch records how much of the budget it consumed.
func (c *Confirmer) confirmBatch(ctx context.Context, idx int, batch []model.CandidateRecord) (map[string]bool, int, error) {
	retry := c.retry
	logRetry := resilience.RetryLogger(c.provider.Name(), fmt.Sprintf("confirm batch %d", idx))
	attempts := 1
	retry.OnRetry = func(attempt int, err error) {
		attempts = attempt + 1
		logRetry(attempt, err)
	}

	verdicts, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[string]bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.provider.Confirm(attemptCtx, batch)
	})
	return verdicts, attempts, err
}

// splitBatches partitions candidates into fixed-size batches, preserving
// order within and across batches.
func splitBatches(records []model.CandidateRecord, size int) [][]model.CandidateRecord {
	var out [][]model.CandidateRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
