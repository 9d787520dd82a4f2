// Package pattern evaluates mapping rules against draft transactions and
// applies their targets as auto-fill.
package pattern

import (
	"github.com/Veraticus/statement-reconciler/internal/model"
)

// Evaluator matches rules against a transaction without side effects.
type Evaluator interface {
	// Evaluate returns the first matching rule per target field, in rule order.
	Evaluate(txn model.Transaction, rules []Rule) []Match
	// CountMatches reports how many pool transactions the rules would fill.
	CountMatches(rules []Rule, pool []model.Transaction) int
}

// Match is one rule selected for one target field.
type Match struct {
	Rule  Rule
	Value string
	Field model.Field
}

// Rule is an alias to the model.MappingRule type for convenience.
type Rule = model.MappingRule
