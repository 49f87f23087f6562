// Package store provides persistence for the pageview classification
// pipeline, with PostgreSQL and SQLite backends behind a common interface.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/model"
)

// Store defines the persistence interface for the classification pipeline.
type Store interface {
	// Raw warehouse
	InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error)
	ListRaw(ctx context.Context, date time.Time) ([]model.RawRecord, error)

	// Manual overrides
	ListOverrides(ctx context.Context) ([]model.Override, error)
	PutOverride(ctx context.Context, o model.Override) error
	DeleteOverride(ctx context.Context, pageTitle string) error

	// Curated store
	InsertFiltered(ctx context.Context, records []model.FilteredRecord) (inserted, skipped int64, err error)
	ListFiltered(ctx context.Context, date time.Time) ([]model.FilteredRecord, error)

	// Derived snapshot
	RefreshSnapshot(ctx context.Context, resolve func(title string) model.Resolution) (int, error)
	CompanyRankings(ctx context.Context, date time.Time) ([]model.CompanyRanking, error)

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Excluded batches
	AddExcludedBatch(ctx context.Context, b *model.ExcludedBatch) error
	ListExcludedBatches(ctx context.Context) ([]model.ExcludedBatch, error)
	UpdateExcludedBatchRetry(ctx context.Context, id string, retryCount int) error
	DeleteExcludedBatch(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// buildSnapshot re-derives the classification for every curated row.
// Overrides win; rule matches pick up taxonomy changes made since the row
// was loaded; an override to Other removes the row entirely. A title that no
// longer matches any keyword keeps its stored company, since a taxonomy
// change does not retract the row's confirmation.
func buildSnapshot(filtered []model.FilteredRecord, resolve func(title string) model.Resolution) []model.SnapshotRow {
	out := make([]model.SnapshotRow, 0, len(filtered))
	for _, fr := range filtered {
		res := resolve(fr.PageTitle)
		switch res.Kind {
		case model.ResolutionOverridden:
			if res.Company == model.CompanyOther {
				continue
			}
			fr.Company = res.Company
			out = append(out, model.SnapshotRow{FilteredRecord: fr, IsOverride: true})
		case model.ResolutionRuleMatched:
			fr.Company = res.Company
			out = append(out, model.SnapshotRow{FilteredRecord: fr, IsOverride: false})
		default:
			out = append(out, model.SnapshotRow{FilteredRecord: fr, IsOverride: false})
		}
	}
	return out
}

// rankCompanies orders per-company aggregates by total views and fills in
// rank and market share. Ties break alphabetically so output is stable.
func rankCompanies(aggs []model.CompanyRanking) []model.CompanyRanking {
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalViews != aggs[j].TotalViews {
			return aggs[i].TotalViews > aggs[j].TotalViews
		}
		return aggs[i].Company < aggs[j].Company
	})

	var total int64
	for _, a := range aggs {
		total += a.TotalViews
	}
	for i := range aggs {
		aggs[i].Rank = i + 1
		if total > 0 {
			aggs[i].MarketShare = 100 * float64(aggs[i].TotalViews) / float64(total)
		}
	}
	return aggs
}
