package classify

import (
	"github.com/core-sentiment/pageview-cli/internal/model"
)

// OverrideLookup provides exact-match access to the override store. Lookups
// are on the title exactly as written; normalization happens at write time,
// which is outside the pipeline.
type OverrideLookup interface {
	Lookup(title string) (model.Company, bool)
}

// MapOverrides is an in-memory OverrideLookup, loaded once per run from the
// override table.
type MapOverrides map[string]model.Company

// Lookup implements OverrideLookup.
func (m MapOverrides) Lookup(title string) (model.Company, bool) {
	c, ok := m[title]
	return c, ok
}

// Resolver is the only sanctioned classification entry point. It consults
// the override store first; a stored override wins unconditionally over the
// rule classifier and is never second-guessed downstream.
type Resolver struct {
	overrides  OverrideLookup
	classifier *Classifier
}

// NewResolver wires an override lookup in front of a classifier.
func NewResolver(overrides OverrideLookup, classifier *Classifier) *Resolver {
	return &Resolver{overrides: overrides, classifier: classifier}
}

// Resolve classifies a title, recording why the classification was reached.
func (r *Resolver) Resolve(title string) model.Resolution {
	if r.overrides != nil {
		if c, ok := r.overrides.Lookup(title); ok {
			return model.Overridden(c)
		}
	}
	if c := r.classifier.Classify(title); c.Tracked() {
		return model.RuleMatched(c)
	}
	return model.Unmatched()
}
