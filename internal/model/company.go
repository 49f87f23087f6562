package model

// Company is one of the five tracked companies, or the Other sentinel for
// titles that match no keyword set and carry no override.
type Company string

const (
	CompanyAmazon    Company = "Amazon"
	CompanyApple     Company = "Apple"
	CompanyMeta      Company = "Meta"
	CompanyGoogle    Company = "Google"
	CompanyMicrosoft Company = "Microsoft"
	CompanyOther     Company = "Other"
)

// TrackedCompanies lists the companies in classification order. The order is
// significant: a title matching multiple keyword sets resolves to whichever
// company appears first here.
var TrackedCompanies = []Company{
	CompanyAmazon,
	CompanyApple,
	CompanyMeta,
	CompanyGoogle,
	CompanyMicrosoft,
}

// ParseCompany validates a company name from external input (override rows,
// config files). Returns ok=false for unknown names.
func ParseCompany(s string) (Company, bool) {
	switch Company(s) {
	case CompanyAmazon, CompanyApple, CompanyMeta, CompanyGoogle, CompanyMicrosoft, CompanyOther:
		return Company(s), true
	}
	return "", false
}

// Tracked reports whether c is one of the five tracked companies (not Other).
func (c Company) Tracked() bool {
	return c != CompanyOther && c != ""
}
