// Package ofx implements the bank transaction provider port over OFX/QFX
// files exported from a bank, for accounts without API access.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

// Provider implements service.TransactionProvider by parsing a local OFX
// file. The vault token is ignored; file imports carry no bank credentials.
type Provider struct {
	path     string
	currency string
}

// NewProvider creates an OFX file provider for the given path. The currency
// is applied to every parsed transaction; OFX statements carry it per
// statement, not per transaction.
func NewProvider(path, currency string) *Provider {
	return &Provider{path: path, currency: currency}
}

// Fetch parses the configured file and returns the transactions posted inside
// [from, to].
func (p *Provider) Fetch(_ context.Context, _ string, accountID string, from, to time.Time) ([]model.RawTransaction, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OFX file: %w", err)
	}
	defer func() { _ = f.Close() }()

	raws, err := p.parse(f)
	if err != nil {
		return nil, err
	}

	var inRange []model.RawTransaction
	for _, raw := range raws {
		if raw.Date.Before(from) || raw.Date.After(to.Add(24*time.Hour)) {
			continue
		}
		inRange = append(inRange, raw)
	}

	slog.Info("Parsed OFX file",
		"path", p.path,
		"account", accountID,
		"total", len(raws),
		"in_range", len(inRange))

	return inRange, nil
}

func (p *Provider) parse(reader io.Reader) ([]model.RawTransaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrResponseParsing, err)
	}

	var raws []model.RawTransaction
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			for _, ofxTx := range stmt.BankTranList.Transactions {
				raws = append(raws, p.convert(ofxTx))
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			for _, ofxTx := range stmt.BankTranList.Transactions {
				raws = append(raws, p.convert(ofxTx))
			}
		}
	}
	return raws, nil
}

func (p *Provider) convert(ofxTx ofxgo.Transaction) model.RawTransaction {
	// OFX already signs amounts the way the domain expects: debits negative.
	amount, _ := ofxTx.TrnAmt.Float64()

	counterparty := string(ofxTx.Name)
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		counterparty = string(ofxTx.Payee.Name)
	}

	return model.RawTransaction{
		ProviderTxID: string(ofxTx.FiTID),
		Date:         ofxTx.DtPosted.Time,
		Amount:       amount,
		Currency:     p.currency,
		Counterparty: strings.TrimSpace(counterparty),
		Memo:         string(ofxTx.Memo),
		Type:         fmt.Sprintf("%v", ofxTx.TrnType),
	}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes common formatting issues in bank-exported OFX files:
// leading whitespace, mixed-case SEVERITY values, and SGML-style tags missing
// their closing bracket.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}
