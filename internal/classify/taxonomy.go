// Package classify implements the keyword rule classifier and the
// override-first resolver. The keyword table is ordinary configuration data:
// the built-in taxonomy can be replaced wholesale from a YAML file without
// touching any storage schema.
package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// TaxonomyEntry associates one company with its keyword set. Entries are
// evaluated in slice order; the first match wins.
type TaxonomyEntry struct {
	Company  model.Company `yaml:"company"`
	Keywords []string      `yaml:"keywords"`
}

// DefaultTaxonomy returns the built-in ordered keyword sets for the five
// tracked companies. Ordering is a deliberate tie-break for crossover titles
// (e.g. "Microsoft_Teams_for_Android" resolves to Microsoft only if Microsoft
// precedes Google), not an error condition.
func DefaultTaxonomy() []TaxonomyEntry {
	return []TaxonomyEntry{
		{Company: model.CompanyAmazon, Keywords: []string{
			"amazon", "aws", "alexa", "kindle", "prime_video", "amazon_prime",
			"fire_tv", "echo_(device)", "twitch",
		}},
		{Company: model.CompanyApple, Keywords: []string{
			"apple", "iphone", "ipad", "macbook", "macos", "ios", "airpods",
			"icloud", "itunes", "safari_(web_browser)", "app_store", "apple_tv",
			"apple_watch", "homepod",
		}},
		{Company: model.CompanyMeta, Keywords: []string{
			"meta_platforms", "meta_quest", "facebook", "instagram", "whatsapp",
			"oculus", "messenger_(software)", "threads_(social_network)",
		}},
		{Company: model.CompanyGoogle, Keywords: []string{
			"google", "youtube", "android", "chrome", "gmail", "chromebook",
			"pixel_(smartphone)", "alphabet_inc", "tensorflow", "kubernetes",
		}},
		{Company: model.CompanyMicrosoft, Keywords: []string{
			"microsoft", "windows", "xbox", "azure", "office_365", "bing",
			"linkedin", "onedrive", "surface_(computer)", "visual_studio",
			"github",
		}},
	}
}

// LoadTaxonomy reads an ordered taxonomy from a YAML file. An empty path
// returns the built-in default.
func LoadTaxonomy(path string) ([]TaxonomyEntry, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read taxonomy %s", path)
	}

	var entries []TaxonomyEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "classify: parse taxonomy %s", path)
	}

	for _, e := range entries {
		if _, ok := model.ParseCompany(string(e.Company)); !ok {
			return nil, eris.Errorf("classify: taxonomy %s: unknown company %q", path, e.Company)
		}
		if len(e.Keywords) == 0 {
			return nil, eris.Errorf("classify: taxonomy %s: company %s has no keywords", path, e.Company)
		}
	}

	return entries, nil
}
