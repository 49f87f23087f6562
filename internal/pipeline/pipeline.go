// Package pipeline orchestrates the daily classification run: prefilter,
// keyword classification, override application, LLM confirmation, idempotent
// load, and snapshot refresh.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/core-sentiment/pageview-cli/internal/classify"
	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/confirm"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/internal/prefilter"
	"github.com/core-sentiment/pageview-cli/internal/store"
)

// manualMethod is the filter_method recorded for rows asserted by an
// operator override rather than confirmed by a model.
const manualMethod = "manual_override"

// Pipeline orchestrates one classification run end to end.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	prefilter  *prefilter.Prefilter
	classifier *classify.Classifier
	provider   confirm.Provider
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, pf *prefilter.Prefilter, cls *classify.Classifier, provider confirm.Provider) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		prefilter:  pf,
		classifier: cls,
		provider:   provider,
	}
}

// Run executes the full pipeline over the given records. When records is
// nil, the raw warehouse is read for the given date instead.
func (p *Pipeline) Run(ctx context.Context, date time.Time, records []model.RawRecord) (*model.Run, error) {
	log := zap.L().With(zap.String("date", date.Format(model.DateFormat)))

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run")

	// Auto requeue retries previously excluded batches before the new run
	// produces its own.
	if p.cfg.Confirm.RequeuePolicy == "auto" {
		if _, err := p.Requeue(ctx); err != nil {
			log.Warn("pipeline: auto requeue failed", zap.Error(err))
		}
	}

	confirmer := confirm.New(p.provider, p.store, p.cfg.Confirm)

	if records == nil {
		records, err = p.store.ListRaw(ctx, date)
		if err != nil {
			return nil, p.fail(ctx, run, err)
		}
	}

	resolver, err := p.buildResolver(ctx)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}

	report := &model.RunReport{}
	var candidates []model.CandidateRecord
	var overridden []model.FilteredRecord

	for _, r := range records {
		report.Considered++

		if !r.Valid() {
			report.Malformed++
			continue
		}

		res := resolver.Resolve(r.PageTitle)
		switch res.Kind {
		case model.ResolutionOverridden:
			// An operator assertion bypasses both the prefilter and the
			// model. Overrides to Other drop the record entirely.
			report.Overridden++
			if res.Company == model.CompanyOther {
				continue
			}
			overridden = append(overridden, toFiltered(r, res.Company, manualMethod))

		case model.ResolutionRuleMatched:
			if !p.prefilter.IsCandidate(r) {
				report.Prefiltered++
				continue
			}
			candidates = append(candidates, model.CandidateRecord{RawRecord: r, Resolution: res})

		default:
			if !p.prefilter.IsCandidate(r) {
				report.Prefiltered++
				continue
			}
			report.Unmatched++
		}
	}
	report.Candidates = len(candidates)

	log.Info("pipeline: classification complete",
		zap.Int("considered", report.Considered),
		zap.Int("malformed", report.Malformed),
		zap.Int("prefiltered", report.Prefiltered),
		zap.Int("overridden", report.Overridden),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("candidates", report.Candidates),
	)

	outcome, err := confirmer.ConfirmAll(ctx, run.ID, candidates)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}
	report.Confirmed = len(outcome.Confirmed)
	report.Rejected = outcome.Rejected
	report.ExcludedRecords = outcome.ExcludedRecords
	report.ExcludedBatches = outcome.ExcludedBatches

	toLoad := make([]model.FilteredRecord, 0, len(outcome.Confirmed)+len(overridden))
	for _, c := range outcome.Confirmed {
		toLoad = append(toLoad, toFiltered(c.RawRecord, c.Resolution.Company, confirmer.Method()))
	}
	toLoad = append(toLoad, overridden...)

	inserted, skipped, err := p.store.InsertFiltered(ctx, toLoad)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}
	report.Inserted = int(inserted)
	report.Skipped = int(skipped)

	// A refresh failure degrades the run to partial; the curated rows are
	// already durable and the next refresh picks them up.
	snapshotRows, err := p.store.RefreshSnapshot(ctx, resolver.Resolve)
	if err != nil {
		log.Error("pipeline: snapshot refresh failed", zap.Error(err))
		report.RefreshFailed = true
	}
	report.SnapshotRows = snapshotRows

	run.Report = report
	run.Status = report.Status()
	if err := p.store.CompleteRun(ctx, run.ID, run.Status, report); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	now := time.Now().UTC()
	run.FinishedAt = &now

	log.Info("pipeline: run finished",
		zap.String("status", string(run.Status)),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("inserted", report.Inserted),
		zap.Int("excluded_batches", report.ExcludedBatches),
	)
	return run, nil
}

// Requeue reprocesses previously excluded batches. Records the model
// confirms are loaded even when the rest of their batch fails again; only
// the records still lacking a verdict stay parked, with accumulating retry
// counts.
func (p *Pipeline) Requeue(ctx context.Context) (*model.RunReport, error) {
	batches, err := p.store.ListExcludedBatches(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list excluded batches")
	}

	report := &model.RunReport{}
	for _, b := range batches {
		// Failed sub-batches are collected in memory so this loop, not the
		// confirmer, decides how to re-park them.
		collect := &collectExcluder{}
		confirmer := confirm.New(p.provider, collect, p.cfg.Confirm)

		outcome, err := confirmer.ConfirmAll(ctx, b.RunID, b.Records)
		if err != nil {
			return nil, err
		}

		if len(outcome.Confirmed) > 0 {
			toLoad := make([]model.FilteredRecord, 0, len(outcome.Confirmed))
			for _, c := range outcome.Confirmed {
				toLoad = append(toLoad, toFiltered(c.RawRecord, c.Resolution.Company, confirmer.Method()))
			}
			inserted, skipped, err := p.store.InsertFiltered(ctx, toLoad)
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: requeue load")
			}
			report.Inserted += int(inserted)
			report.Skipped += int(skipped)
		}
		report.Confirmed += len(outcome.Confirmed)
		report.Rejected += outcome.Rejected
		report.ExcludedBatches += outcome.ExcludedBatches
		report.ExcludedRecords += outcome.ExcludedRecords

		failed := 0
		for _, nb := range collect.batches {
			failed += len(nb.Records)
		}

		switch {
		case failed == 0:
			if err := p.store.DeleteExcludedBatch(ctx, b.ID); err != nil {
				return nil, err
			}
			zap.L().Info("pipeline: excluded batch recovered",
				zap.String("batch_id", b.ID),
				zap.Int("confirmed", len(outcome.Confirmed)),
			)
		case failed == len(b.Records):
			// No record got a verdict. Keep the original parked entry and
			// accumulate its retry count for operator visibility.
			if err := p.store.UpdateExcludedBatchRetry(ctx, b.ID, b.RetryCount+collect.batches[0].RetryCount); err != nil {
				return nil, err
			}
		default:
			// Part of the batch resolved; park only the failing remainder.
			for _, nb := range collect.batches {
				nb.RetryCount += b.RetryCount
				if err := p.store.AddExcludedBatch(ctx, nb); err != nil {
					return nil, err
				}
			}
			if err := p.store.DeleteExcludedBatch(ctx, b.ID); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

// collectExcluder buffers failed batches instead of persisting them.
type collectExcluder struct {
	mu      sync.Mutex
	batches []*model.ExcludedBatch
}

func (c *collectExcluder) AddExcludedBatch(_ context.Context, b *model.ExcludedBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
	return nil
}

// Refresh rebuilds the classified snapshot outside a full run, e.g. after an
// operator changes overrides.
func (p *Pipeline) Refresh(ctx context.Context) (int, error) {
	resolver, err := p.buildResolver(ctx)
	if err != nil {
		return 0, err
	}
	return p.store.RefreshSnapshot(ctx, resolver.Resolve)
}

// buildResolver loads the current override set and pairs it with the
// keyword classifier.
func (p *Pipeline) buildResolver(ctx context.Context) (*classify.Resolver, error) {
	overrides, err := p.store.ListOverrides(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list overrides")
	}
	m := classify.MapOverrides{}
	for _, o := range overrides {
		m[o.PageTitle] = o.CorrectCompany
	}
	return classify.NewResolver(m, p.classifier), nil
}

func (p *Pipeline) fail(ctx context.Context, run *model.Run, err error) error {
	if completeErr := p.store.CompleteRun(ctx, run.ID, model.RunStatusFailed, run.Report); completeErr != nil {
		zap.L().Error("pipeline: mark run failed", zap.Error(completeErr))
	}
	return err
}

func toFiltered(r model.RawRecord, company model.Company, method string) model.FilteredRecord {
	return model.FilteredRecord{
		Domain:         r.Domain,
		PageTitle:      r.PageTitle,
		CountViews:     r.CountViews,
		Company:        company,
		ProcessingDate: r.ProcessingDate,
		FilterMethod:   method,
	}
}
