package pattern

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesFromTransaction(t *testing.T) {
	tests := []struct {
		name string
		txn  model.Transaction
		want []Rule
	}{
		{
			name: "expense uses receiver for counterparty",
			txn: model.Transaction{
				Direction:      model.DirectionExpense,
				Payer:          "ООО Наша компания",
				Receiver:       "ООО Ромашка",
				Description:    "Оплата аренды офиса",
				CounterpartyID: "cp-romashka",
				ArticleID:      "art-rent",
				AccountID:      "acc-main",
			},
			want: []Rule{
				{Type: model.RuleContains, SourceField: model.SourceReceiver, Pattern: "ООО Ромашка", TargetType: model.TargetCounterparty, TargetID: "cp-romashka"},
				{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Оплата аренды офиса", TargetType: model.TargetArticle, TargetID: "art-rent"},
				{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Оплата аренды офиса", TargetType: model.TargetAccount, TargetID: "acc-main"},
			},
		},
		{
			name: "income uses payer for counterparty",
			txn: model.Transaction{
				Direction:      model.DirectionIncome,
				Payer:          "ИП Иванов",
				Receiver:       "ООО Наша компания",
				CounterpartyID: "cp-ivanov",
			},
			want: []Rule{
				{Type: model.RuleContains, SourceField: model.SourcePayer, Pattern: "ИП Иванов", TargetType: model.TargetCounterparty, TargetID: "cp-ivanov"},
			},
		},
		{
			name: "nothing categorized yields nothing",
			txn:  model.Transaction{Description: "Оплата аренды офиса"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RulesFromTransaction(tt.txn)
			assert.Equal(t, tt.want, got)
			for _, r := range got {
				rule := r
				assert.NoError(t, ValidateRule(&rule))
			}
		})
	}
}

func TestRulesFromTransaction_TruncatesLongDescriptions(t *testing.T) {
	txn := model.Transaction{
		Description: strings.Repeat("оплата ", 100),
		ArticleID:   "art-1",
	}
	rules := RulesFromTransaction(txn)
	require.Len(t, rules, 1)
	assert.Equal(t, maxPatternRunes, utf8.RuneCountInString(rules[0].Pattern))
}
