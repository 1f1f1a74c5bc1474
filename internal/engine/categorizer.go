package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/pattern"
	"github.com/jfourney/divvy/internal/service"
)

// CategorizerConfig holds tuning for the categorization workflow.
type CategorizerConfig struct {
	// OnProgress, when set, is called once per examined transaction,
	// duplicates included.
	OnProgress      func()
	Retry           service.RetryOptions
	ProviderTimeout time.Duration
	MaxConcurrent   int
}

// DefaultCategorizerConfig returns the default configuration.
func DefaultCategorizerConfig() CategorizerConfig {
	return CategorizerConfig{
		ProviderTimeout: 30 * time.Second,
		MaxConcurrent:   4,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Categorizer assigns suggested payee/category/memo to imported transactions,
// trying cleanup rules first and falling back to the AI provider.
type Categorizer struct {
	store    service.Storage
	provider service.CategorizationProvider
	now      func() time.Time
	config   CategorizerConfig
}

// NewCategorizer creates a categorization workflow.
func NewCategorizer(store service.Storage, provider service.CategorizationProvider, config CategorizerConfig) *Categorizer {
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 30 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Categorizer{
		store:    store,
		provider: provider,
		config:   config,
		now:      time.Now,
	}
}

// Run categorizes every Imported transaction for an account (all accounts
// when accountID is empty). Provider errors never abort the batch: the
// affected transaction is reported as a per-item failure, keeping its status
// for transient errors and moving to Failed once the retry budget is spent.
// AI calls fan out with bounded concurrency and fan back in before the
// aggregate result is reported.
func (c *Categorizer) Run(ctx context.Context, accountID string) (*service.CategorizeResult, error) {
	rules, err := c.store.GetActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	matcher := pattern.NewMatcher(rules)

	states, err := c.store.FindStatesByStatus(ctx, accountID, model.StatusImported)
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		slog.Info("No transactions to categorize", "account", accountID)
		return &service.CategorizeResult{}, nil
	}

	slog.Info("Categorizing transactions",
		"account", accountID,
		"count", len(states),
		"rules", matcher.Len())

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, c.config.MaxConcurrent)
		result service.CategorizeResult
	)

	for idx := range states {
		state := states[idx]

		if state.IsDuplicate {
			mu.Lock()
			result.Skipped++
			if c.config.OnProgress != nil {
				c.config.OnProgress()
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := c.categorizeOne(ctx, &state, matcher)
			mu.Lock()
			defer mu.Unlock()
			if c.config.OnProgress != nil {
				c.config.OnProgress()
			}
			if err != nil {
				result.Failures = append(result.Failures, service.ItemFailure{
					ID:     state.ID,
					Reason: err.Error(),
				})
				return
			}
			switch outcome {
			case outcomeRule:
				result.ByRule++
				result.Categorized++
			case outcomeAI:
				result.ByAI++
				result.Categorized++
			case outcomeSkipped:
				result.Skipped++
			}
		}()
	}

	wg.Wait()

	slog.Info("Categorization completed",
		"account", accountID,
		"categorized", result.Categorized,
		"by_rule", result.ByRule,
		"by_ai", result.ByAI,
		"skipped", result.Skipped,
		"failures", len(result.Failures))

	return &result, nil
}

type categorizeOutcome int

const (
	outcomeSkipped categorizeOutcome = iota
	outcomeRule
	outcomeAI
)

// categorizeOne suggests fields for a single transaction and advances its
// state when a category is present. A missing category leaves the state at
// Imported so a later run can retry.
func (c *Categorizer) categorizeOne(ctx context.Context, state *model.ProcessingState, matcher *pattern.Matcher) (categorizeOutcome, error) {
	txn, err := c.store.GetTransaction(ctx, state.ID)
	if err != nil {
		return outcomeSkipped, err
	}

	outcome := outcomeSkipped

	if rule := matcher.Match(ctx, *txn); rule != nil {
		state.SuggestedPayee = rule.Payee
		state.SuggestedCategory = rule.Category
		if rule.Memo != "" {
			state.SuggestedMemo = rule.Memo
		}
		state.PayeeConfidence = model.NewConfidenceScore(rule.Confidence)
		state.CategoryConfidence = model.NewConfidenceScore(rule.Confidence)
		outcome = outcomeRule

		if err := c.store.RecordRuleUse(ctx, rule.ID, true); err != nil {
			slog.Warn("Failed to record rule use", "rule_id", rule.ID, "error", err)
		}
	} else {
		cleanup, err := c.askProvider(ctx, txn)
		if err != nil {
			if errors.Is(err, common.ErrMaxRetries) {
				// The retry budget is spent: the transaction is parked as
				// Failed until an explicit retry re-admits it.
				if failErr := state.MarkFailed(err.Error()); failErr != nil {
					return outcomeSkipped, failErr
				}
			} else {
				// Per-item diagnostic; the state keeps its status so the next
				// run picks it up again.
				state.LastError = err.Error()
			}
			if saveErr := c.store.SaveProcessingState(ctx, state); saveErr != nil {
				return outcomeSkipped, saveErr
			}
			return outcomeSkipped, fmt.Errorf("provider cleanup for %s: %w", state.ID, err)
		}

		state.SuggestedPayee = cleanup.Payee
		state.SuggestedCategory = cleanup.Category
		state.SuggestedMemo = cleanup.Memo
		state.PayeeConfidence = model.NewConfidenceScore(cleanup.Confidence)
		state.CategoryConfidence = model.NewConfidenceScore(cleanup.Confidence)
		outcome = outcomeAI

		if cleanup.RuleSuggestion != nil {
			c.storePendingRule(ctx, cleanup.RuleSuggestion)
		}
	}

	if state.EffectiveCategory() != "" {
		if err := state.MarkCategorized(c.now().UTC()); err != nil {
			return outcomeSkipped, err
		}
	} else {
		// No category: record the suggestion but stay Imported.
		outcome = outcomeSkipped
	}

	if err := c.store.SaveProcessingState(ctx, state); err != nil {
		return outcomeSkipped, err
	}
	return outcome, nil
}

// askProvider calls the AI provider with the transaction's text and context,
// under the configured timeout and retry budget.
func (c *Categorizer) askProvider(ctx context.Context, txn *model.Transaction) (service.CleanupResult, error) {
	txnContext := map[string]string{
		"amount":          strconv.FormatFloat(txn.Amount, 'f', 2, 64),
		"currency":        txn.Currency,
		"date":            txn.Date.Format("2006-01-02"),
		"type":            txn.Type,
		"counter_account": txn.CounterAccount,
	}

	var result service.CleanupResult
	err := common.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.ProviderTimeout)
		defer cancel()

		var callErr error
		result, callErr = c.provider.Cleanup(callCtx, txn.DescriptionText(), txnContext)
		return callErr
	}, c.config.Retry)
	return result, err
}

// storePendingRule persists an AI rule suggestion for human review. Pending
// rules are never auto-applied, so a bad suggestion costs nothing.
func (c *Categorizer) storePendingRule(ctx context.Context, rule *model.CleanupRule) {
	if err := pattern.ValidateSuggestion(rule); err != nil {
		slog.Warn("Discarding unusable rule suggestion", "error", err)
		return
	}

	rule.Status = model.RulePending
	rule.IsActive = true
	if err := c.store.SaveRule(ctx, rule); err != nil {
		slog.Warn("Failed to store pending rule", "pattern", rule.Pattern, "error", err)
		return
	}
	slog.Info("Stored pending rule suggestion", "rule_id", rule.ID, "pattern", rule.Pattern)
}
