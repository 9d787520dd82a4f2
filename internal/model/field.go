package model

import (
	"fmt"
	"strings"
)

// Field identifies a user-editable attribute of a draft transaction.
// Every field has a persisted column, a label and a lock bit; the
// mappings below are exhaustive switches so adding a field without
// wiring it is caught by the field tests.
type Field uint8

// Editable fields.
const (
	FieldDirection Field = iota + 1
	FieldCounterparty
	FieldArticle
	FieldAccount
	FieldDeal
	FieldDepartment
	FieldCurrency
)

// AllFields lists every editable field in display order.
var AllFields = []Field{
	FieldDirection,
	FieldCounterparty,
	FieldArticle,
	FieldAccount,
	FieldDeal,
	FieldDepartment,
	FieldCurrency,
}

// RequiredFields must all be filled before a transaction is a trustworthy
// template for propagating edits to similar transactions.
var RequiredFields = []Field{
	FieldDirection,
	FieldArticle,
	FieldAccount,
	FieldCurrency,
}

// ParseField converts a UI field name into a Field.
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direction", "operationtype", "type":
		return FieldDirection, nil
	case "counterparty":
		return FieldCounterparty, nil
	case "article":
		return FieldArticle, nil
	case "account":
		return FieldAccount, nil
	case "deal":
		return FieldDeal, nil
	case "department":
		return FieldDepartment, nil
	case "currency":
		return FieldCurrency, nil
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// String returns the UI name of the field.
func (f Field) String() string {
	switch f {
	case FieldDirection:
		return "direction"
	case FieldCounterparty:
		return "counterparty"
	case FieldArticle:
		return "article"
	case FieldAccount:
		return "account"
	case FieldDeal:
		return "deal"
	case FieldDepartment:
		return "department"
	case FieldCurrency:
		return "currency"
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Column returns the persisted column backing the field.
func (f Field) Column() string {
	switch f {
	case FieldDirection:
		return "direction"
	case FieldCounterparty:
		return "counterparty_id"
	case FieldArticle:
		return "article_id"
	case FieldAccount:
		return "account_id"
	case FieldDeal:
		return "deal_id"
	case FieldDepartment:
		return "department_id"
	case FieldCurrency:
		return "currency"
	}
	return ""
}

// Label returns a human readable name used in pending-action descriptions.
func (f Field) Label() string {
	switch f {
	case FieldDirection:
		return "operation type"
	case FieldCounterparty:
		return "counterparty"
	case FieldArticle:
		return "article"
	case FieldAccount:
		return "account"
	case FieldDeal:
		return "deal"
	case FieldDepartment:
		return "department"
	case FieldCurrency:
		return "currency"
	}
	return f.String()
}

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	return f.Column() != ""
}

// IsRequired reports whether the field belongs to the required set.
func (f Field) IsRequired() bool {
	for _, r := range RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}

func (f Field) bit() FieldSet {
	if !f.Valid() {
		return 0
	}
	return FieldSet(1) << f
}

// FieldSet is a bitmask of fields. It is persisted as an integer so the
// store can guard locked fields inside the same UPDATE statement.
type FieldSet uint16

// NewFieldSet builds a set from the given fields.
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s = s.Add(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	b := f.bit()
	return b != 0 && s&b != 0
}

// Add returns the set with f included.
func (s FieldSet) Add(f Field) FieldSet {
	return s | f.bit()
}

// Intersects reports whether any field of o is in s.
func (s FieldSet) Intersects(o FieldSet) bool {
	return s&o != 0
}

// Fields returns the members in display order.
func (s FieldSet) Fields() []Field {
	var out []Field
	for _, f := range AllFields {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FieldSet) String() string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

// Changes maps fields to the values being written. An empty string clears
// a link.
type Changes map[Field]string

// Fields returns the set of fields touched by the change.
func (c Changes) Fields() FieldSet {
	var s FieldSet
	for f := range c {
		s = s.Add(f)
	}
	return s
}
