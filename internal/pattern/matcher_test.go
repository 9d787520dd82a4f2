package pattern

import (
	"testing"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Matches(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		txn  model.Transaction
		want bool
	}{
		{
			name: "contains matches inflected word",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Аренда"},
			txn:  model.Transaction{Description: "Оплата аренды офиса"},
			want: true,
		},
		{
			name: "contains matches longer word",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Аренда"},
			txn:  model.Transaction{Description: "Арендатор не найден"},
			want: true,
		},
		{
			name: "contains is case insensitive",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceReceiver, Pattern: "ромашка"},
			txn:  model.Transaction{Receiver: `ООО "РОМАШКА"`},
			want: true,
		},
		{
			name: "contains multi-word pattern needs exact phrase",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "аренда офиса"},
			txn:  model.Transaction{Description: "Оплата аренды офиса"},
			want: false,
		},
		{
			name: "contains matches word prefix",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "налог"},
			txn:  model.Transaction{Description: "Уплата налогов"},
			want: true,
		},
		{
			name: "contains does not match unrelated text",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Аренда"},
			txn:  model.Transaction{Description: "Сбербанк перевод"},
			want: false,
		},
		{
			name: "equals ignores case and surrounding space",
			rule: Rule{Type: model.RuleEquals, SourceField: model.SourcePayer, Pattern: " ип иванов "},
			txn:  model.Transaction{Payer: "ИП Иванов"},
			want: true,
		},
		{
			name: "equals rejects substring",
			rule: Rule{Type: model.RuleEquals, SourceField: model.SourcePayer, Pattern: "Иванов"},
			txn:  model.Transaction{Payer: "ИП Иванов"},
			want: false,
		},
		{
			name: "regex is case insensitive",
			rule: Rule{Type: model.RuleRegex, SourceField: model.SourceDescription, Pattern: `^комиссия\s+за`},
			txn:  model.Transaction{Description: "Комиссия за ведение счета"},
			want: true,
		},
		{
			name: "invalid regex never matches",
			rule: Rule{Type: model.RuleRegex, SourceField: model.SourceDescription, Pattern: `(`},
			txn:  model.Transaction{Description: "("},
			want: false,
		},
		{
			name: "inn contains sees both sides",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceINN, Pattern: "7707083893"},
			txn:  model.Transaction{PayerINN: "7701234567", ReceiverINN: "7707083893"},
			want: true,
		},
		{
			name: "inn regex spans the joined value",
			rule: Rule{Type: model.RuleRegex, SourceField: model.SourceINN, Pattern: `^7701234567 7707083893$`},
			txn:  model.Transaction{PayerINN: "7701234567", ReceiverINN: "7707083893"},
			want: true,
		},
		{
			name: "inn equals compares each side",
			rule: Rule{Type: model.RuleEquals, SourceField: model.SourceINN, Pattern: "7707083893"},
			txn:  model.Transaction{PayerINN: "7701234567", ReceiverINN: "7707083893"},
			want: true,
		},
		{
			name: "empty source value never matches",
			rule: Rule{Type: model.RuleContains, SourceField: model.SourceReceiver, Pattern: "ООО"},
			txn:  model.Transaction{Description: "ООО"},
			want: false,
		},
	}

	m := NewMatcher(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(tt.txn, tt.rule))
		})
	}
}

func TestMatcher_Alias(t *testing.T) {
	aliases := model.AliasSet{"сбербанк": {"ПАО Сбербанк", "Sberbank"}}
	m := NewMatcher(nil, aliases)
	rule := Rule{Type: model.RuleAlias, SourceField: model.SourceReceiver, Pattern: "Сбербанк"}

	assert.True(t, m.Matches(model.Transaction{Receiver: "сбербанк"}, rule))
	assert.True(t, m.Matches(model.Transaction{Receiver: "SBERBANK"}, rule))
	assert.True(t, m.Matches(model.Transaction{Receiver: "пао сбербанк"}, rule))
	assert.False(t, m.Matches(model.Transaction{Receiver: "ПАО Сбербанк России"}, rule))
}

func TestMatcher_EvaluateFirstMatchPerTarget(t *testing.T) {
	rules := []Rule{
		{ID: 1, Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "аренда", TargetType: model.TargetArticle, TargetID: "art-rent"},
		{ID: 2, Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "офис", TargetType: model.TargetArticle, TargetID: "art-office"},
		{ID: 3, Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "офис", TargetType: model.TargetAccount, TargetID: "acc-main"},
		{ID: 4, Type: model.RuleEquals, SourceField: model.SourceReceiver, Pattern: "ООО Ромашка", TargetType: model.TargetOperationType, TargetID: "expense"},
	}
	txn := model.Transaction{Description: "Оплата аренды офиса", Receiver: "ооо ромашка"}

	matches := NewMatcher(nil, nil).Evaluate(txn, rules)
	require.Len(t, matches, 3)

	assert.Equal(t, int64(1), matches[0].Rule.ID)
	assert.Equal(t, model.FieldArticle, matches[0].Field)
	assert.Equal(t, "art-rent", matches[0].Value)

	assert.Equal(t, int64(3), matches[1].Rule.ID)
	assert.Equal(t, model.FieldAccount, matches[1].Field)

	assert.Equal(t, int64(4), matches[2].Rule.ID)
	assert.Equal(t, model.FieldDirection, matches[2].Field)
	assert.Equal(t, "expense", matches[2].Value)
}

func TestMatcher_CountMatches(t *testing.T) {
	rules := []Rule{
		{ID: 1, Type: model.RuleContains, SourceField: model.SourceDescription, Pattern: "Аренда", TargetType: model.TargetArticle, TargetID: "art-rent"},
	}
	locked := model.Transaction{ID: "t3", Description: "аренда склада"}
	locked.Lock(model.FieldArticle)
	pool := []model.Transaction{
		{ID: "t1", Description: "Оплата аренды офиса"},
		{ID: "t2", Description: "Арендатор не найден"},
		locked,
		{ID: "t4", Description: "аренда парковки", Processed: true},
		{ID: "t5", Description: "Сбербанк перевод"},
	}

	assert.Equal(t, 2, NewMatcher(nil, nil).CountMatches(rules, pool))
	assert.Equal(t, 0, NewMatcher(nil, nil).CountMatches(nil, pool))
}

func TestRegexCache_Compile(t *testing.T) {
	cache, err := NewRegexCache(10)
	require.NoError(t, err)
	defer cache.Close()

	first, err := cache.Compile(`ндс\s+\d+`)
	require.NoError(t, err)
	assert.True(t, first.MatchString("В т.ч. НДС 20"))

	second, err := cache.Compile(`ндс\s+\d+`)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())

	_, err = cache.Compile(`[`)
	assert.Error(t, err)

	var nilCache *RegexCache
	re, err := nilCache.Compile(`abc`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("ABC"))
}
