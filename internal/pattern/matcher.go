// Package pattern implements the cleanup-rule matching chain tried before the
// AI provider is consulted.
package pattern

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/jfourney/divvy/internal/model"
)

// Matcher evaluates transaction text against an ordered set of approved
// cleanup rules. Rules are tried most-specific first; the first match wins.
type Matcher struct {
	compiledRegex map[int64]*regexp.Regexp
	rules         []model.CleanupRule
}

// NewMatcher creates a matcher over the given rules. Rules are ordered by
// pattern specificity, then historical success rate, then confidence, all
// descending. Regex rules with invalid patterns are dropped with a warning.
func NewMatcher(rules []model.CleanupRule) *Matcher {
	m := &Matcher{
		compiledRegex: make(map[int64]*regexp.Regexp),
	}

	for _, rule := range rules {
		if !rule.IsActive || rule.Status != model.RuleApproved {
			continue
		}
		if rule.PatternType == model.PatternRegex {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				slog.Warn("Skipping rule with invalid regex",
					"rule_id", rule.ID, "pattern", rule.Pattern, "error", err)
				continue
			}
			m.compiledRegex[rule.ID] = re
		}
		m.rules = append(m.rules, rule)
	}

	sort.SliceStable(m.rules, func(i, j int) bool {
		a, b := &m.rules[i], &m.rules[j]
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		if a.SuccessRate() != b.SuccessRate() {
			return a.SuccessRate() > b.SuccessRate()
		}
		return a.Confidence > b.Confidence
	})

	return m
}

// Match returns the first rule matching the transaction's description text,
// or nil when no rule applies.
func (m *Matcher) Match(_ context.Context, txn model.Transaction) *model.CleanupRule {
	text := strings.ToLower(strings.TrimSpace(txn.DescriptionText()))
	if text == "" {
		return nil
	}

	for i := range m.rules {
		rule := &m.rules[i]
		if m.matches(rule, text) {
			return rule
		}
	}
	return nil
}

func (m *Matcher) matches(rule *model.CleanupRule, text string) bool {
	pattern := strings.ToLower(rule.Pattern)

	switch rule.PatternType {
	case model.PatternExact:
		return text == pattern
	case model.PatternStartsWith:
		return strings.HasPrefix(text, pattern)
	case model.PatternContains:
		return strings.Contains(text, pattern)
	case model.PatternRegex:
		re, ok := m.compiledRegex[rule.ID]
		return ok && re.MatchString(text)
	default:
		return false
	}
}

// Len reports how many rules the matcher will try.
func (m *Matcher) Len() int {
	return len(m.rules)
}
