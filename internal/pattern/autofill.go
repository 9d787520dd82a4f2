package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

// FillResult summarizes an auto-fill pass.
type FillResult struct {
	RuleHits     map[int64]int
	Examined     int
	Filled       int
	FieldsFilled int
	Skipped      int
}

// AutoFiller writes rule targets into draft transactions. It never locks a
// field and never touches a locked or processed one.
type AutoFiller struct {
	transactions service.TransactionStore
	rules        service.RuleStore
	regex        *RegexCache

	// OnProgress, when set, is called after each transaction is examined.
	OnProgress func(done, total int)

	// Overwrite lets rules replace unlocked non-empty values.
	Overwrite bool
}

// NewAutoFiller creates an auto-filler over the given stores.
func NewAutoFiller(transactions service.TransactionStore, rules service.RuleStore, cache *RegexCache) *AutoFiller {
	return &AutoFiller{
		transactions: transactions,
		rules:        rules,
		regex:        cache,
	}
}

// Apply evaluates the current rule set against txns and persists the
// matches. Persisted values are written back into txns. Each applied rule's
// usage counter is incremented exactly once per transaction it filled.
func (a *AutoFiller) Apply(ctx context.Context, txns []model.Transaction) (FillResult, error) {
	result := FillResult{RuleHits: make(map[int64]int)}

	rules, err := a.rules.ListRules(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load rules: %w", err)
	}
	aliases, err := a.rules.ListAliases(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load aliases: %w", err)
	}
	matcher := NewMatcher(a.regex, aliases)

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Examined++

		changes, used := a.plan(txn, matcher.Evaluate(txn, rules))
		if len(changes) > 0 {
			written, err := a.write(ctx, txn.ID, changes, used, &result)
			if err != nil {
				return result, err
			}
			if written {
				txns[i].Apply(changes)
			}
		}
		if a.OnProgress != nil {
			a.OnProgress(i+1, len(txns))
		}
	}

	slog.Info("Auto-fill complete",
		"examined", result.Examined,
		"filled", result.Filled,
		"fields", result.FieldsFilled,
		"skipped", result.Skipped)
	return result, nil
}

// plan decides which matches may be written to txn.
func (a *AutoFiller) plan(txn model.Transaction, matches []Match) (model.Changes, []int64) {
	if !txn.Eligible() {
		return nil, nil
	}
	changes := make(model.Changes)
	var used []int64
	for _, m := range matches {
		if txn.IsLocked(m.Field) {
			continue
		}
		current := txn.Get(m.Field)
		if current == m.Value || (current != "" && !a.Overwrite) {
			continue
		}
		changes[m.Field] = m.Value
		used = append(used, m.Rule.ID)
	}
	return changes, used
}

func (a *AutoFiller) write(ctx context.Context, id string, changes model.Changes, used []int64, result *FillResult) (bool, error) {
	err := a.transactions.UpdateTransaction(ctx, id, changes, false)
	if errors.Is(err, common.ErrStale) || errors.Is(err, common.ErrNotFound) {
		slog.Warn("Skipped auto-fill for stale transaction", "id", id, "error", err)
		result.Skipped++
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to auto-fill transaction %s: %w", id, err)
	}

	result.Filled++
	result.FieldsFilled += len(changes)
	for _, ruleID := range used {
		if err := a.rules.IncrementRuleUsage(ctx, ruleID); err != nil {
			return true, fmt.Errorf("failed to record usage of rule %d: %w", ruleID, err)
		}
		result.RuleHits[ruleID]++
	}
	return true, nil
}
