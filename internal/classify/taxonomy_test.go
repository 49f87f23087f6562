package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

func writeTaxonomy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTaxonomy_FromFile(t *testing.T) {
	path := writeTaxonomy(t, `
- company: Microsoft
  keywords: [windows, xbox]
- company: Apple
  keywords: [iphone]
`)

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	require.Len(t, tax, 2)
	assert.Equal(t, model.CompanyMicrosoft, tax[0].Company)
	assert.Equal(t, []string{"windows", "xbox"}, tax[0].Keywords)

	// File order overrides the default tie-break.
	c := NewClassifier(tax)
	assert.Equal(t, model.CompanyMicrosoft, c.Classify("Windows_on_iPhone"))
}

func TestLoadTaxonomy_UnknownCompany(t *testing.T) {
	path := writeTaxonomy(t, `
- company: Netflix
  keywords: [netflix]
`)

	_, err := LoadTaxonomy(path)
	assert.Error(t, err)
}

func TestLoadTaxonomy_EmptyKeywords(t *testing.T) {
	path := writeTaxonomy(t, `
- company: Apple
  keywords: []
`)

	_, err := LoadTaxonomy(path)
	assert.Error(t, err)
}

func TestLoadTaxonomy_MissingFile(t *testing.T) {
	_, err := LoadTaxonomy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
