package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	if !errors.Is(err, common.ErrMissingConfig) {
		t.Errorf("error = %v, want ErrMissingConfig", err)
	}
}

func TestParseCleanup(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     string // payee
		wantRule bool
		wantErr  bool
	}{
		{
			name:    "plain json",
			content: `{"payee": "Whole Foods", "category": "Groceries", "memo": "weekly shop", "confidence": 0.85}`,
			want:    "Whole Foods",
		},
		{
			name: "fenced json",
			content: "```json\n" +
				`{"payee": "Netflix", "category": "Subscriptions", "confidence": 0.9}` +
				"\n```",
			want: "Netflix",
		},
		{
			name: "with rule suggestion",
			content: `{"payee": "Spotify", "category": "Subscriptions", "confidence": 0.92,
				"rule": {"pattern_type": "contains", "pattern": "spotify", "payee": "Spotify", "category": "Subscriptions"}}`,
			want:     "Spotify",
			wantRule: true,
		},
		{
			name:    "whitespace trimmed",
			content: `{"payee": "  Uber  ", "category": " Transport ", "confidence": 0.7}`,
			want:    "Uber",
		},
		{
			name:    "not json",
			content: "Sorry, I cannot categorize this transaction.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCleanup(tt.content)
			if tt.wantErr {
				if !errors.Is(err, common.ErrResponseParsing) {
					t.Fatalf("error = %v, want ErrResponseParsing", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCleanup: %v", err)
			}
			if got.Payee != tt.want {
				t.Errorf("payee = %q, want %q", got.Payee, tt.want)
			}
			if tt.wantRule {
				if got.RuleSuggestion == nil {
					t.Fatal("expected a rule suggestion")
				}
				if got.RuleSuggestion.Status != model.RulePending {
					t.Errorf("suggested rule status = %s, want pending", got.RuleSuggestion.Status)
				}
				if got.RuleSuggestion.Confidence != 0.92 {
					t.Errorf("suggested rule confidence = %v", got.RuleSuggestion.Confidence)
				}
			}
		})
	}
}

func TestParseCleanup_IgnoresEmptyRule(t *testing.T) {
	got, err := parseCleanup(`{"payee": "X", "category": "Y", "confidence": 0.8, "rule": {"pattern": ""}}`)
	if err != nil {
		t.Fatalf("parseCleanup: %v", err)
	}
	if got.RuleSuggestion != nil {
		t.Error("empty pattern should not produce a rule suggestion")
	}
}

func TestStripMarkdownFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMarkdownFence(tt.content); got != tt.want {
				t.Errorf("stripMarkdownFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-key", Categories: []string{"Groceries", "Transport"}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	prompt := client.buildPrompt("ALBERT HEIJN 1403", map[string]string{
		"amount":   "-12.34",
		"currency": "EUR",
		"type":     "",
	})

	if !strings.Contains(prompt, "ALBERT HEIJN 1403") {
		t.Error("prompt missing raw text")
	}
	if !strings.Contains(prompt, "Groceries, Transport") {
		t.Error("prompt missing category list")
	}
	if !strings.Contains(prompt, "amount: -12.34") {
		t.Error("prompt missing context field")
	}
	if strings.Contains(prompt, "type:") {
		t.Error("empty context fields should be omitted")
	}

	// Context keys are sorted for a stable prompt.
	if strings.Index(prompt, "amount:") > strings.Index(prompt, "currency:") {
		t.Error("context fields not in sorted order")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.Close()

	ctx := context.Background()
	if err := rl.wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := rl.wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}

	// Bucket is empty now; a canceled context must unblock the wait.
	canceled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := rl.wait(canceled); err == nil {
		t.Error("expected wait to fail once tokens are exhausted and the context expires")
	}
}
