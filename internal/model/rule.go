package model

import "time"

// RulePatternType identifies how a cleanup rule's pattern is matched against
// transaction text.
type RulePatternType string

// Pattern type constants, from most to least specific.
const (
	PatternExact      RulePatternType = "exact"
	PatternStartsWith RulePatternType = "starts_with"
	PatternContains   RulePatternType = "contains"
	PatternRegex      RulePatternType = "regex"
)

// RuleStatus tracks whether a cleanup rule may be applied automatically.
type RuleStatus string

// Rule status constants. Pending rules come from AI suggestions and are never
// applied until a human approves them.
const (
	RuleApproved RuleStatus = "approved"
	RulePending  RuleStatus = "pending"
)

// CleanupRule maps raw transaction text to a clean payee, category, and memo.
// Rules are tried before the AI provider is consulted.
type CleanupRule struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PatternType  RulePatternType
	Pattern      string
	Payee        string
	Category     string
	Memo         string
	Status       RuleStatus
	ID           int64
	Confidence   float64
	UseCount     int
	SuccessCount int
	IsActive     bool
}

// Specificity ranks pattern types so that more precise rules win ties: an
// exact match always beats a prefix, a prefix beats a substring, and a regex
// ranks last because it is the loosest.
func (r *CleanupRule) Specificity() int {
	switch r.PatternType {
	case PatternExact:
		return 4
	case PatternStartsWith:
		return 3
	case PatternContains:
		return 2
	case PatternRegex:
		return 1
	default:
		return 0
	}
}

// SuccessRate returns the fraction of applications that were not later
// overridden by the user. Unused rules rate 0.
func (r *CleanupRule) SuccessRate() float64 {
	if r.UseCount == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.UseCount)
}
