package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the resolved kind of a bank operation.
type Direction string

// Direction values. An empty direction is unresolved.
const (
	DirectionUnresolved Direction = ""
	DirectionIncome     Direction = "income"
	DirectionExpense    Direction = "expense"
	DirectionTransfer   Direction = "transfer"
)

// ParseDirection validates a direction name. The empty string is accepted
// and means unresolved.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUnresolved, DirectionIncome, DirectionExpense, DirectionTransfer:
		return d, nil
	}
	return DirectionUnresolved, fmt.Errorf("unknown direction %q", s)
}

// Resolved reports whether the direction has been decided.
func (d Direction) Resolved() bool {
	return d != DirectionUnresolved
}

// DefaultCurrency is assumed when a statement line carries no currency.
const DefaultCurrency = "RUB"

// Transaction is one imported bank statement line in draft form.
type Transaction struct {
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Amount          decimal.Decimal
	ID              string `validate:"required"`
	SessionID       string `validate:"required"`
	Number          string
	Description     string
	Payer           string
	PayerINN        string `validate:"omitempty,numeric,min=10,max=12"`
	PayerAccount    string
	Receiver        string
	ReceiverINN     string `validate:"omitempty,numeric,min=10,max=12"`
	ReceiverAccount string
	Currency        string `validate:"omitempty,len=3,alpha"`
	Direction       Direction
	CounterpartyID  string
	ArticleID       string
	AccountID       string
	DealID          string
	DepartmentID    string
	Hash            string
	LockedFields    FieldSet
	IsDuplicate     bool
	Processed       bool
}

// Get returns the current value of an editable field.
func (t *Transaction) Get(f Field) string {
	switch f {
	case FieldDirection:
		return string(t.Direction)
	case FieldCounterparty:
		return t.CounterpartyID
	case FieldArticle:
		return t.ArticleID
	case FieldAccount:
		return t.AccountID
	case FieldDeal:
		return t.DealID
	case FieldDepartment:
		return t.DepartmentID
	case FieldCurrency:
		return t.Currency
	}
	return ""
}

// Set writes an editable field without touching its lock.
func (t *Transaction) Set(f Field, value string) {
	switch f {
	case FieldDirection:
		t.Direction = Direction(value)
	case FieldCounterparty:
		t.CounterpartyID = value
	case FieldArticle:
		t.ArticleID = value
	case FieldAccount:
		t.AccountID = value
	case FieldDeal:
		t.DealID = value
	case FieldDepartment:
		t.DepartmentID = value
	case FieldCurrency:
		t.Currency = value
	}
}

// Apply writes every change in c.
func (t *Transaction) Apply(c Changes) {
	for f, v := range c {
		t.Set(f, v)
	}
}

// IsLocked reports whether the user explicitly confirmed the field.
func (t *Transaction) IsLocked(f Field) bool {
	return t.LockedFields.Has(f)
}

// Lock marks the field as user-confirmed.
func (t *Transaction) Lock(f Field) {
	t.LockedFields = t.LockedFields.Add(f)
}

// EffectiveCurrency returns the currency, falling back to the default.
func (t *Transaction) EffectiveCurrency() string {
	if t.Currency == "" {
		return DefaultCurrency
	}
	return t.Currency
}

// RequiredFilled reports whether every required field has a value.
func (t *Transaction) RequiredFilled() bool {
	for _, f := range RequiredFields {
		if f == FieldCurrency {
			continue // falls back to DefaultCurrency
		}
		if t.Get(f) == "" {
			return false
		}
	}
	return true
}

// Eligible reports whether the transaction may still be auto-filled or
// bulk-mutated.
func (t *Transaction) Eligible() bool {
	return !t.Processed
}

// GenerateHash creates a fingerprint for duplicate detection across sessions.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Number,
		t.PayerINN,
		t.ReceiverINN,
		strings.ToLower(strings.TrimSpace(t.Description)))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
