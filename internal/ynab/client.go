// Package ynab implements the transaction submission port against the YNAB
// v1 API.
package ynab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/service"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

const apiBase = "https://api.ynab.com/v1"

// Config holds YNAB API configuration.
type Config struct {
	AccessToken string
	BudgetID    string
}

// Client implements service.TransactionSubmissionPort against YNAB.
type Client struct {
	httpClient *http.Client
	budgetID   string
	baseURL    string
}

// NewClient creates a YNAB client. The personal access token is carried by an
// oauth2 transport so every request is authenticated uniformly.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: YNAB access token", common.ErrMissingConfig)
	}
	if cfg.BudgetID == "" {
		return nil, fmt.Errorf("%w: YNAB budget id", common.ErrMissingConfig)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		httpClient: httpClient,
		budgetID:   cfg.BudgetID,
		baseURL:    apiBase,
	}, nil
}

// transactionPayload mirrors the YNAB create-transaction request body.
type transactionPayload struct {
	Transaction struct {
		AccountID string `json:"account_id"`
		Date      string `json:"date"`
		Amount    int64  `json:"amount"` // milliunits
		PayeeName string `json:"payee_name"`
		Memo      string `json:"memo,omitempty"`
		Cleared   string `json:"cleared"`
		ImportID  string `json:"import_id"`
	} `json:"transaction"`
}

type transactionResponse struct {
	Data struct {
		TransactionIDs     []string `json:"transaction_ids"`
		DuplicateImportIDs []string `json:"duplicate_import_ids"`
	} `json:"data"`
}

// Submit creates one transaction in YNAB and returns its id. The category is
// carried in the memo as a hint; YNAB resolves categories by its own ids, and
// mapping names onto them is the user's budget configuration, not ours.
func (c *Client) Submit(ctx context.Context, req service.SubmissionRequest) (string, error) {
	var payload transactionPayload
	payload.Transaction.AccountID = req.ExternalAccountID
	payload.Transaction.Date = req.Date.Format("2006-01-02")
	payload.Transaction.Amount = toMilliunits(req.Amount)
	payload.Transaction.PayeeName = req.Payee
	payload.Transaction.Memo = buildMemo(req)
	payload.Transaction.Cleared = "cleared"
	payload.Transaction.ImportID = truncateImportID(req.ImportID)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	url := fmt.Sprintf("%s/budgets/%s/transactions", c.baseURL, c.budgetID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", common.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", common.ErrValidation, string(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", common.ErrRateLimit, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: YNAB API status %d: %s", common.ErrNetwork, resp.StatusCode, string(respBody))
	}

	var parsed transactionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrResponseParsing, err)
	}

	if len(parsed.Data.DuplicateImportIDs) > 0 {
		return "", fmt.Errorf("%w: import id already submitted: %s",
			common.ErrValidation, parsed.Data.DuplicateImportIDs[0])
	}
	if len(parsed.Data.TransactionIDs) == 0 {
		return "", fmt.Errorf("%w: no transaction id in response", common.ErrResponseParsing)
	}

	return parsed.Data.TransactionIDs[0], nil
}

// toMilliunits converts a currency amount to YNAB milliunits without floating
// point drift: -12.34 EUR becomes -12340.
func toMilliunits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
}

// buildMemo combines category and memo; YNAB has no free-form category field
// on imported transactions.
func buildMemo(req service.SubmissionRequest) string {
	switch {
	case req.Memo == "":
		return req.Category
	case req.Category == "":
		return req.Memo
	default:
		return fmt.Sprintf("%s | %s", req.Category, req.Memo)
	}
}

// truncateImportID keeps import ids inside YNAB's 36-character limit.
func truncateImportID(id string) string {
	if len(id) <= 36 {
		return id
	}
	return id[:36]
}
