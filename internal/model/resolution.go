package model

// ResolutionKind says why a title resolved to its company: a manual override,
// a keyword match, or no match at all.
type ResolutionKind string

const (
	ResolutionOverridden  ResolutionKind = "overridden"
	ResolutionRuleMatched ResolutionKind = "rule_matched"
	ResolutionUnmatched   ResolutionKind = "unmatched"
)

// Resolution is the outcome of classifying a single title. Callers and tests
// can distinguish how a classification was reached, not just its final value.
type Resolution struct {
	Kind    ResolutionKind `json:"kind"`
	Company Company        `json:"company"`
}

// Overridden builds an override resolution.
func Overridden(c Company) Resolution {
	return Resolution{Kind: ResolutionOverridden, Company: c}
}

// RuleMatched builds a keyword-match resolution.
func RuleMatched(c Company) Resolution {
	return Resolution{Kind: ResolutionRuleMatched, Company: c}
}

// Unmatched builds the no-match resolution. Company is always Other.
func Unmatched() Resolution {
	return Resolution{Kind: ResolutionUnmatched, Company: CompanyOther}
}
