package pattern

import (
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/statement-reconciler/internal/model"
)

const maxPatternRunes = 500

// RulesFromTransaction derives contains rules from a categorized
// transaction so the same counterparty, article and account are filled the
// next time a similar line is imported. The counterparty pattern comes from
// the receiver for expenses and from the payer otherwise.
func RulesFromTransaction(txn model.Transaction) []Rule {
	var rules []Rule

	if txn.CounterpartyID != "" {
		name, source := txn.Payer, model.SourcePayer
		if txn.Direction == model.DirectionExpense {
			name, source = txn.Receiver, model.SourceReceiver
		}
		if name = strings.TrimSpace(name); name != "" {
			rules = append(rules, Rule{
				Type:        model.RuleContains,
				SourceField: source,
				Pattern:     truncateRunes(name, maxPatternRunes),
				TargetType:  model.TargetCounterparty,
				TargetID:    txn.CounterpartyID,
			})
		}
	}

	description := truncateRunes(strings.TrimSpace(txn.Description), maxPatternRunes)
	if description == "" {
		return rules
	}
	if txn.ArticleID != "" {
		rules = append(rules, Rule{
			Type:        model.RuleContains,
			SourceField: model.SourceDescription,
			Pattern:     description,
			TargetType:  model.TargetArticle,
			TargetID:    txn.ArticleID,
		})
	}
	if txn.AccountID != "" {
		rules = append(rules, Rule{
			Type:        model.RuleContains,
			SourceField: model.SourceDescription,
			Pattern:     description,
			TargetType:  model.TargetAccount,
			TargetID:    txn.AccountID,
		})
	}
	return rules
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
