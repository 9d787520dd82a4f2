// Package ofx turns OFX/QFX bank statements into draft transactions.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/statement-reconciler/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the closing bracket of a bare opening tag.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	innRegex    = regexp.MustCompile(`(?i)(?:инн|inn)[\s:№]*(\d{12}|\d{10})(?:\D|$)`)
)

// Parser converts statements for one company. Money leaving the account is
// paid by the company, money arriving is received by it.
type Parser struct {
	newID       func() string
	companyINN  string
	companyName string
}

// NewParser creates a parser for the company with the given tax id and name.
func NewParser(companyINN, companyName string) *Parser {
	return &Parser{
		companyINN:  strings.TrimSpace(companyINN),
		companyName: strings.TrimSpace(companyName),
		newID:       uuid.NewString,
	}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file into drafts without a session.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var (
		transactions     []model.Transaction
		bankStmts, cards int
	)

	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		transactions = append(transactions,
			p.convertAll(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID), currencyCode(stmt.CurDef))...)
	}

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		cards++
		transactions = append(transactions,
			p.convertAll(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID), currencyCode(stmt.CurDef))...)
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", cards)

	return transactions, nil
}

func (p *Parser) convertAll(list []ofxgo.Transaction, account, currency string) []model.Transaction {
	out := make([]model.Transaction, 0, len(list))
	for _, ofxTx := range list {
		txn, err := p.convertTransaction(ofxTx, account, currency)
		if err != nil {
			slog.Warn("Skipping unreadable statement line", "fitid", string(ofxTx.FiTID), "error", err)
			continue
		}
		out = append(out, txn)
	}
	return out
}

// convertTransaction maps one statement line onto a draft. The sign of the
// amount decides which side the company is on.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, account, currency string) (model.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	counterparty := counterpartyName(ofxTx)
	counterpartyINN := extractINN(counterparty + " " + string(ofxTx.Memo))
	var counterpartyAccount string
	if ofxTx.BankAcctTo != nil {
		counterpartyAccount = string(ofxTx.BankAcctTo.AcctID)
	}

	txn := model.Transaction{
		ID:          p.newID(),
		Date:        ofxTx.DtPosted.Time.UTC(),
		Amount:      amount.Abs(),
		Number:      documentNumber(ofxTx),
		Description: description(ofxTx),
		Currency:    currency,
	}

	if amount.IsNegative() {
		txn.Payer, txn.PayerINN, txn.PayerAccount = p.companyName, p.companyINN, account
		txn.Receiver, txn.ReceiverINN, txn.ReceiverAccount = counterparty, counterpartyINN, counterpartyAccount
	} else {
		txn.Payer, txn.PayerINN, txn.PayerAccount = counterparty, counterpartyINN, counterpartyAccount
		txn.Receiver, txn.ReceiverINN, txn.ReceiverAccount = p.companyName, p.companyINN, account
	}

	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// counterpartyName prefers PAYEE, then NAME.
func counterpartyName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	return strings.TrimSpace(string(tx.Name))
}

// description is the payment purpose. Banks put it in MEMO; NAME is the
// fallback.
func description(tx ofxgo.Transaction) string {
	if memo := strings.TrimSpace(string(tx.Memo)); memo != "" {
		return memo
	}
	return strings.TrimSpace(string(tx.Name))
}

func documentNumber(tx ofxgo.Transaction) string {
	switch {
	case tx.CheckNum != "":
		return string(tx.CheckNum)
	case tx.RefNum != "":
		return string(tx.RefNum)
	}
	return string(tx.FiTID)
}

// extractINN finds a tax id written as "ИНН 7707083893" in free text.
func extractINN(text string) string {
	m := innRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func currencyCode(c ofxgo.CurrSymbol) string {
	code := strings.ToUpper(c.String())
	switch code {
	case "", "XXX":
		return ""
	case "RUR":
		return model.DefaultCurrency
	}
	return code
}

// Accounts lists the account numbers the statement covers.
func (p *Parser) Accounts(reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	add := func(id ofxgo.String) {
		if id != "" && !seen[string(id)] {
			seen[string(id)] = true
			accounts = append(accounts, string(id))
		}
	}
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(stmt.BankAcctFrom.AcctID)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(stmt.CCAcctFrom.AcctID)
		}
	}
	return accounts, nil
}
