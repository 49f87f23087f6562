package classify

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// Classifier matches page titles against ordered company keyword sets.
// Pure and total: the same title always yields the same company, with Other
// for titles matching no keyword set. Safe for concurrent use.
type Classifier struct {
	entries []foldedEntry
}

type foldedEntry struct {
	company  model.Company
	keywords []string
}

// NewClassifier builds a classifier from an ordered taxonomy. Keywords are
// Unicode case-folded once at construction.
func NewClassifier(taxonomy []TaxonomyEntry) *Classifier {
	c := &Classifier{entries: make([]foldedEntry, 0, len(taxonomy))}
	for _, e := range taxonomy {
		fe := foldedEntry{company: e.Company, keywords: make([]string, 0, len(e.Keywords))}
		for _, kw := range e.Keywords {
			fe.keywords = append(fe.keywords, fold(kw))
		}
		c.entries = append(c.entries, fe)
	}
	return c
}

// Classify returns the first company whose keyword set matches the
// case-folded title as a substring, or Other when none match.
func (c *Classifier) Classify(title string) model.Company {
	folded := fold(title)
	for _, e := range c.entries {
		for _, kw := range e.keywords {
			if strings.Contains(folded, kw) {
				return e.company
			}
		}
	}
	return model.CompanyOther
}

// fold applies Unicode case folding for caseless matching. A Caser is
// stateful, so a fresh one is taken per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
