// Package ai implements the categorization provider port against the
// Anthropic messages API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
)

const messagesURL = "https://api.anthropic.com/v1/messages"

// Config holds the AI provider configuration.
type Config struct {
	APIKey            string
	Model             string
	Categories        []string // category names offered to the model
	RequestsPerMinute int
	MaxTokens         int
	Temperature       float64
}

// Client implements service.CategorizationProvider against Anthropic.
type Client struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	apiKey      string
	model       string
	categories  []string
	maxTokens   int
	temperature float64
}

// NewClient creates a new AI categorization client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: AI API key", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       model,
		categories:  cfg.Categories,
		maxTokens:   maxTokens,
		temperature: temperature,
		limiter:     newRateLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Close releases the rate limiter.
func (c *Client) Close() {
	c.limiter.Close()
}

// Cleanup asks the model for a clean payee, category, and memo for the given
// transaction text.
func (c *Client) Cleanup(ctx context.Context, text string, txnContext map[string]string) (service.CleanupResult, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return service.CleanupResult{}, err
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": c.buildPrompt(text, txnContext)},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.CleanupResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return service.CleanupResult{}, fmt.Errorf("%w: status %d", common.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return service.CleanupResult{}, fmt.Errorf("%w: status %d", common.ErrRateLimit, resp.StatusCode)
	case resp.StatusCode >= 500:
		return service.CleanupResult{}, fmt.Errorf("%w: status %d", common.ErrServiceUnavailable, resp.StatusCode)
	default:
		return service.CleanupResult{}, fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response messagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return service.CleanupResult{}, fmt.Errorf("%w: %v", common.ErrResponseParsing, err)
	}
	if len(response.Content) == 0 {
		return service.CleanupResult{}, fmt.Errorf("%w: no content in response", common.ErrResponseParsing)
	}

	return parseCleanup(response.Content[0].Text)
}

const systemPrompt = "You are a financial transaction cleaner. " +
	"Respond only with a JSON object in the exact format requested."

func (c *Client) buildPrompt(text string, txnContext map[string]string) string {
	var b strings.Builder
	b.WriteString("Clean up this bank transaction and assign a budget category.\n\n")
	fmt.Fprintf(&b, "Raw text: %s\n", text)

	keys := make([]string, 0, len(txnContext))
	for k := range txnContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if txnContext[k] != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, txnContext[k])
		}
	}

	if len(c.categories) > 0 {
		fmt.Fprintf(&b, "\nAvailable categories: %s\n", strings.Join(c.categories, ", "))
	}

	b.WriteString(`
Respond with JSON:
{
  "payee": "clean counterparty name",
  "category": "one of the available categories",
  "memo": "short human-readable description",
  "confidence": 0.0-1.0,
  "rule": {"pattern_type": "exact|starts_with|contains|regex", "pattern": "...", "payee": "...", "category": "..."}
}
The "rule" field is optional; include it only when the raw text is stable
enough that a rule would match future transactions from the same counterparty.`)

	return b.String()
}

// messagesResponse is the subset of the Anthropic response we read.
type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// parseCleanup extracts the cleanup result from the model's JSON reply.
func parseCleanup(content string) (service.CleanupResult, error) {
	var reply struct {
		Payee      string  `json:"payee"`
		Category   string  `json:"category"`
		Memo       string  `json:"memo"`
		Confidence float64 `json:"confidence"`
		Rule       *struct {
			PatternType string `json:"pattern_type"`
			Pattern     string `json:"pattern"`
			Payee       string `json:"payee"`
			Category    string `json:"category"`
		} `json:"rule"`
	}

	content = stripMarkdownFence(content)
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return service.CleanupResult{}, fmt.Errorf("%w: %v", common.ErrResponseParsing, err)
	}

	result := service.CleanupResult{
		Payee:      strings.TrimSpace(reply.Payee),
		Category:   strings.TrimSpace(reply.Category),
		Memo:       strings.TrimSpace(reply.Memo),
		Confidence: reply.Confidence,
	}

	if reply.Rule != nil && reply.Rule.Pattern != "" {
		result.RuleSuggestion = &model.CleanupRule{
			PatternType: model.RulePatternType(reply.Rule.PatternType),
			Pattern:     reply.Rule.Pattern,
			Payee:       reply.Rule.Payee,
			Category:    reply.Rule.Category,
			Confidence:  reply.Confidence,
			Status:      model.RulePending,
		}
	}

	return result, nil
}

// stripMarkdownFence removes a ```json ... ``` wrapper the model sometimes
// adds despite instructions.
func stripMarkdownFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
