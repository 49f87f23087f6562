package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/core-sentiment/pageview-cli/internal/classify"
	"github.com/core-sentiment/pageview-cli/internal/confirm"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/internal/pipeline"
	"github.com/core-sentiment/pageview-cli/internal/prefilter"
	"github.com/core-sentiment/pageview-cli/internal/store"
	anthropicpkg "github.com/core-sentiment/pageview-cli/pkg/anthropic"
	"github.com/core-sentiment/pageview-cli/pkg/ollama"
)

func initStore(ctx context.Context) (store.Store, error) {
	storeCfg := cfg.Store
	if storeCfg.Driver == "sqlite" && storeCfg.DatabaseURL == "" {
		storeCfg.DatabaseURL = "pageviews.db"
	}
	return store.Open(ctx, storeCfg)
}

func initProvider() (confirm.Provider, error) {
	switch cfg.Confirm.Provider {
	case "ollama":
		opts := []ollama.Option{
			ollama.WithHost(cfg.Ollama.Host),
			ollama.WithModel(cfg.Ollama.Model),
		}
		if cfg.Ollama.RPS > 0 {
			opts = append(opts, ollama.WithRateLimit(cfg.Ollama.RPS))
		}
		return confirm.NewOllamaProvider(ollama.NewClient(opts...), cfg.Ollama), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic API key is required (PAGEVIEW_ANTHROPIC_KEY)")
		}
		return confirm.NewAnthropicProvider(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic), nil
	default:
		return nil, eris.Errorf("unsupported confirm provider: %s", cfg.Confirm.Provider)
	}
}

func initPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	denylist, err := prefilter.LoadDenylist(cfg.Prefilter.DenylistPath)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	taxonomy, err := classify.LoadTaxonomy(cfg.Classify.TaxonomyPath)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	provider, err := initProvider()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	pf := prefilter.New(cfg.Prefilter.MinViews, denylist)
	cls := classify.NewClassifier(taxonomy)
	return pipeline.New(cfg, st, pf, cls, provider), st, nil
}

// parseDateFlag resolves a --date flag value, defaulting to yesterday (the
// most recent complete day of pageview data).
func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		y := time.Now().UTC().AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(model.DateFormat, value)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid date %q (want YYYY-MM-DD)", value)
	}
	return d, nil
}
