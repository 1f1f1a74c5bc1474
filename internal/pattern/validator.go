package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jfourney/divvy/internal/model"
)

// ValidateSuggestion checks an AI-suggested rule before it is stored as
// pending. Suggestions with unusable patterns are rejected rather than left
// to fail at match time.
func ValidateSuggestion(rule *model.CleanupRule) error {
	if rule == nil {
		return fmt.Errorf("rule suggestion is nil")
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("rule suggestion has an empty pattern")
	}
	if rule.Payee == "" && rule.Category == "" {
		return fmt.Errorf("rule suggestion sets neither payee nor category")
	}

	switch rule.PatternType {
	case model.PatternExact, model.PatternStartsWith, model.PatternContains:
	case model.PatternRegex:
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("rule suggestion has invalid regex %q: %w", rule.Pattern, err)
		}
	default:
		return fmt.Errorf("rule suggestion has unknown pattern type %q", rule.PatternType)
	}

	return nil
}
