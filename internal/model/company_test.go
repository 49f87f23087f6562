package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCompany_Valid(t *testing.T) {
	for _, name := range []string{"Amazon", "Apple", "Meta", "Google", "Microsoft", "Other"} {
		c, ok := ParseCompany(name)
		assert.True(t, ok, name)
		assert.Equal(t, Company(name), c)
	}
}

func TestParseCompany_Unknown(t *testing.T) {
	_, ok := ParseCompany("Netflix")
	assert.False(t, ok)

	_, ok = ParseCompany("")
	assert.False(t, ok)

	// Override rows are written canonically, so parsing is case-sensitive.
	_, ok = ParseCompany("apple")
	assert.False(t, ok)
}

func TestCompany_Tracked(t *testing.T) {
	assert.True(t, CompanyApple.Tracked())
	assert.False(t, CompanyOther.Tracked())
	assert.False(t, Company("").Tracked())
}

func TestTrackedCompanies_Order(t *testing.T) {
	// Classification order is a documented tie-break; keep it stable.
	assert.Equal(t, []Company{
		CompanyAmazon, CompanyApple, CompanyMeta, CompanyGoogle, CompanyMicrosoft,
	}, TrackedCompanies)
}
