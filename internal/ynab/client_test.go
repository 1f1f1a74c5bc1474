package ynab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BudgetID: "b"})
	assert.True(t, errors.Is(err, common.ErrMissingConfig), "error = %v", err)

	_, err = NewClient(Config{AccessToken: "t"})
	assert.True(t, errors.Is(err, common.ErrMissingConfig), "error = %v", err)
}

func TestToMilliunits(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"negative outflow", -12.34, -12340},
		{"positive inflow", 1500.00, 1500000},
		{"sub-cent precision", -0.005, -5},
		{"float drift", -19.99, -19990},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toMilliunits(tt.amount))
		})
	}
}

func TestBuildMemo(t *testing.T) {
	tests := []struct {
		name     string
		category string
		memo     string
		want     string
	}{
		{"both", "Groceries", "weekly shop", "Groceries | weekly shop"},
		{"category only", "Groceries", "", "Groceries"},
		{"memo only", "", "weekly shop", "weekly shop"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildMemo(service.SubmissionRequest{Category: tt.category, Memo: tt.memo})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateImportID(t *testing.T) {
	short := "divvy:acc1/tx-001"
	assert.Equal(t, short, truncateImportID(short))

	long := "divvy:" + strings.Repeat("x", 50)
	got := truncateImportID(long)
	assert.Len(t, got, 36)
	assert.True(t, strings.HasPrefix(long, got))
}

func submissionRequest() service.SubmissionRequest {
	return service.SubmissionRequest{
		ExternalAccountID: "budget-acc-1",
		Date:              time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Amount:            -12.34,
		Currency:          "EUR",
		Payee:             "Albert Heijn",
		Category:          "Groceries",
		Memo:              "weekly shop",
		ImportID:          "divvy:acc1/tx-001",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{AccessToken: "test-token", BudgetID: "budget-1"})
	require.NoError(t, err)
	client.baseURL = server.URL
	return client
}

func TestClient_Submit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/budgets/budget-1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload transactionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "budget-acc-1", payload.Transaction.AccountID)
		assert.Equal(t, "2026-02-03", payload.Transaction.Date)
		assert.Equal(t, int64(-12340), payload.Transaction.Amount)
		assert.Equal(t, "Albert Heijn", payload.Transaction.PayeeName)
		assert.Equal(t, "Groceries | weekly shop", payload.Transaction.Memo)
		assert.Equal(t, "divvy:acc1/tx-001", payload.Transaction.ImportID)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"transaction_ids": ["ynab-42"]}}`))
	})

	externalID, err := client.Submit(context.Background(), submissionRequest())
	require.NoError(t, err)
	assert.Equal(t, "ynab-42", externalID)
}

func TestClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		body    string
		status  int
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{}`,
			wantErr: common.ErrAuthentication,
		},
		{
			name:    "bad request",
			status:  http.StatusBadRequest,
			body:    `{"error": {"detail": "account not found"}}`,
			wantErr: common.ErrValidation,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{}`,
			wantErr: common.ErrRateLimit,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantErr: common.ErrNetwork,
		},
		{
			name:    "duplicate import id",
			status:  http.StatusCreated,
			body:    `{"data": {"transaction_ids": [], "duplicate_import_ids": ["divvy:acc1/tx-001"]}}`,
			wantErr: common.ErrValidation,
		},
		{
			name:    "empty response",
			status:  http.StatusCreated,
			body:    `{"data": {"transaction_ids": []}}`,
			wantErr: common.ErrResponseParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Submit(context.Background(), submissionRequest())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
		})
	}
}
