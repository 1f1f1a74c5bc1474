// Package plaidfeed implements the bank transaction provider port against the
// Plaid API.
package plaidfeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
	"github.com/plaid/plaid-go/v20/plaid"
)

// Config holds Plaid API configuration. The per-account access token is not
// part of the config; it comes from the credential vault at fetch time.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret", common.ErrMissingConfig)
	}
	switch c.Environment {
	case "sandbox", "production":
		return nil
	case "":
		return fmt.Errorf("%w: plaid environment", common.ErrMissingConfig)
	default:
		return fmt.Errorf("invalid Plaid environment %q: must be sandbox or production", c.Environment)
	}
}

// Client implements service.TransactionProvider against Plaid.
type Client struct {
	client    *plaid.APIClient
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewClient creates a new Plaid-backed provider.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &Client{
		client: plaid.NewAPIClient(configuration),
		logger: slog.Default().With("component", "plaidfeed"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Fetch returns the raw transactions Plaid reports for the account between
// from and to, paging through the full result set.
func (c *Client) Fetch(ctx context.Context, token string, accountID string, from, to time.Time) ([]model.RawTransaction, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty access token", common.ErrAuthentication)
	}

	const pageSize = int32(500) // Plaid's max page size

	var all []plaid.Transaction
	offset := int32(0)

	for {
		var page []plaid.Transaction

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				token,
				from.Format("2006-01-02"),
				to.Format("2006-01-02"),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:      plaid.PtrInt32(pageSize),
				Offset:     plaid.PtrInt32(offset),
				AccountIds: &[]string{accountID},
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.classifyError(err)
			}

			page = resp.GetTransactions()
			c.logger.Debug("Fetched transaction page",
				"count", len(page),
				"offset", offset,
				"total", resp.GetTotalTransactions())
			return nil
		}, c.retryOpts)
		if retryErr != nil {
			return nil, retryErr
		}

		all = append(all, page...)
		if len(page) < int(pageSize) {
			break
		}
		offset += pageSize
	}

	c.logger.Info("Fetched transactions from Plaid", "account", accountID, "count", len(all))

	raws := make([]model.RawTransaction, 0, len(all))
	for _, pt := range all {
		raws = append(raws, c.mapTransaction(pt))
	}
	return raws, nil
}

// mapTransaction converts a Plaid transaction into the provider-neutral raw
// form. Plaid reports positive amounts for money out; the domain uses signed
// amounts with outgoing negative, so the sign flips here.
func (c *Client) mapTransaction(pt plaid.Transaction) model.RawTransaction {
	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		c.logger.Error("Failed to parse transaction date", "date", pt.GetDate(), "error", err)
		date = time.Now()
	}

	counterparty := pt.GetMerchantName()
	if counterparty == "" {
		counterparty = pt.GetName()
	}

	txnType := "OTHER"
	switch pt.GetPaymentChannel() {
	case "online":
		txnType = "ONLINE"
	case "in_store":
		txnType = "POS"
	}

	currency := pt.GetIsoCurrencyCode()
	if currency == "" {
		currency = pt.GetUnofficialCurrencyCode()
	}

	return model.RawTransaction{
		ProviderTxID: pt.GetTransactionId(),
		Date:         date,
		Amount:       -pt.GetAmount(),
		Currency:     currency,
		Counterparty: counterparty,
		Memo:         pt.GetName(),
		Type:         txnType,
	}
}

// classifyError maps Plaid API failures onto the domain error taxonomy.
func (c *Client) classifyError(err error) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}

	switch plaidErr.ErrorCode {
	case "RATE_LIMIT_EXCEEDED":
		c.logger.Warn("Plaid rate limit hit, will retry", "error", plaidErr.ErrorMessage)
		return fmt.Errorf("%w: %s", common.ErrRateLimit, plaidErr.ErrorMessage)
	case "INVALID_ACCESS_TOKEN", "ITEM_LOGIN_REQUIRED":
		return fmt.Errorf("%w: %s - %s", common.ErrAuthentication, plaidErr.ErrorCode, plaidErr.ErrorMessage)
	case "INVALID_DATE_RANGE":
		return fmt.Errorf("%w: %s", common.ErrInvalidDateRange, plaidErr.ErrorMessage)
	default:
		return fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage)
	}
}
