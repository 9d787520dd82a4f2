// Package model defines the core data structures for the reconciliation engine.
package model

import (
	"fmt"
	"strings"
	"time"
)

// RuleType selects how a rule pattern is compared with a source value.
type RuleType string

// Rule types.
const (
	RuleContains RuleType = "contains"
	RuleEquals   RuleType = "equals"
	RuleRegex    RuleType = "regex"
	RuleAlias    RuleType = "alias"
)

// SourceField selects which transaction text a rule reads.
type SourceField string

// Source fields.
const (
	SourceDescription SourceField = "description"
	SourceReceiver    SourceField = "receiver"
	SourcePayer       SourceField = "payer"
	SourceINN         SourceField = "inn"
)

// TargetType selects what a matched rule fills in.
type TargetType string

// Target types.
const (
	TargetArticle       TargetType = "article"
	TargetCounterparty  TargetType = "counterparty"
	TargetAccount       TargetType = "account"
	TargetOperationType TargetType = "operationType"
)

// Field returns the transaction field a target type fills.
func (t TargetType) Field() (Field, error) {
	switch t {
	case TargetArticle:
		return FieldArticle, nil
	case TargetCounterparty:
		return FieldCounterparty, nil
	case TargetAccount:
		return FieldAccount, nil
	case TargetOperationType:
		return FieldDirection, nil
	}
	return 0, fmt.Errorf("unknown target type %q", string(t))
}

// MappingRule is a pattern-based auto-categorization instruction.
type MappingRule struct {
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	LastUsedAt  *time.Time  `json:"last_used_at,omitempty"`
	Type        RuleType    `json:"rule_type" validate:"required,oneof=contains equals regex alias"`
	SourceField SourceField `json:"source_field" validate:"required,oneof=description receiver payer inn"`
	Pattern     string      `json:"pattern" validate:"required,max=500"`
	TargetType  TargetType  `json:"target_type" validate:"required,oneof=article counterparty account operationType"`
	TargetID    string      `json:"target_id" validate:"required"`
	TargetName  string      `json:"target_name,omitempty"`
	ID          int64       `json:"id"`
	UsageCount  int         `json:"usage_count"`
}

// AliasSet maps a lower-cased canonical pattern to its synonyms.
type AliasSet map[string][]string

// Synonyms returns the pattern followed by every alias registered for it.
func (a AliasSet) Synonyms(pattern string) []string {
	out := []string{pattern}
	return append(out, a[strings.ToLower(strings.TrimSpace(pattern))]...)
}
