// Package prefilter implements the coarse noise-reduction predicate applied
// before classification. It is deliberately cheap and lossy: false negatives
// (dropping a real product page) are an accepted cost of volume reduction
// and are never retried.
package prefilter

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// defaultNamespacePrefixes are the Wikipedia meta namespaces excluded from
// classification.
var defaultNamespacePrefixes = []string{
	"Special:", "Template:", "Category:", "Wikipedia:", "Help:", "Portal:",
	"File:", "Talk:", "User:", "MediaWiki:", "Module:", "Draft:", "TimedText:",
}

// defaultStructuralPrefixes mark list/meta/retrospective pages that are never
// product pages.
var defaultStructuralPrefixes = []string{
	"List_of_", "History_of_", "Timeline_of_", "Comparison_of_", "Outline_of_",
}

// personTitle matches two or three underscore-joined capitalized words, the
// dominant shape of person-biography titles (Steve_Jobs, Sundar_Pichai).
// Product pages shaped like this (Windows_Server) are lost; accepted.
var personTitle = regexp.MustCompile(`^[A-Z][a-z]+_[A-Z][a-z]+(_[A-Z][a-z]+)?$`)

// Denylist holds the structural noise patterns, loadable from YAML so
// operators can tune them without a release.
type Denylist struct {
	NamespacePrefixes  []string `yaml:"namespace_prefixes"`
	StructuralPrefixes []string `yaml:"structural_prefixes"`
	Substrings         []string `yaml:"substrings"`
}

// DefaultDenylist returns the built-in noise patterns.
func DefaultDenylist() Denylist {
	return Denylist{
		NamespacePrefixes:  defaultNamespacePrefixes,
		StructuralPrefixes: defaultStructuralPrefixes,
		Substrings:         []string{"(disambiguation)", "_disambiguation"},
	}
}

// LoadDenylist reads a denylist from a YAML file. An empty path returns the
// built-in default.
func LoadDenylist(path string) (Denylist, error) {
	if path == "" {
		return DefaultDenylist(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Denylist{}, eris.Wrapf(err, "prefilter: read denylist %s", path)
	}

	var d Denylist
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Denylist{}, eris.Wrapf(err, "prefilter: parse denylist %s", path)
	}
	return d, nil
}

// Prefilter is the candidate predicate. Pure: no I/O, no side effects.
type Prefilter struct {
	minViews int64
	denylist Denylist
}

// New builds a prefilter with the given minimum view threshold and denylist.
func New(minViews int64, denylist Denylist) *Prefilter {
	return &Prefilter{minViews: minViews, denylist: denylist}
}

// IsCandidate reports whether the record survives prefiltering.
func (p *Prefilter) IsCandidate(r model.RawRecord) bool {
	if r.CountViews < p.minViews {
		return false
	}

	title := r.PageTitle
	lower := strings.ToLower(title)

	for _, prefix := range p.denylist.NamespacePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return false
		}
	}
	for _, prefix := range p.denylist.StructuralPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return false
		}
	}
	for _, sub := range p.denylist.Substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return false
		}
	}

	if personTitle.MatchString(title) {
		return false
	}

	return true
}
