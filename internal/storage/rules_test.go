package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/pattern"
)

func newRule(p string, target model.TargetType, id string) *model.MappingRule {
	return &model.MappingRule{
		Type:        model.RuleContains,
		SourceField: model.SourceDescription,
		Pattern:     p,
		TargetType:  target,
		TargetID:    id,
	}
}

func TestRules_CRUD(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	rule := newRule("  Аренда ", model.TargetArticle, "art-rent")
	require.NoError(t, store.CreateRule(ctx, rule))
	assert.NotZero(t, rule.ID)
	assert.Equal(t, "Аренда", rule.Pattern, "pattern is trimmed on create")

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleContains, got.Type)
	assert.Equal(t, model.TargetArticle, got.TargetType)
	assert.Equal(t, "art-rent", got.TargetID)
	assert.Nil(t, got.LastUsedAt)

	got.Pattern = "аренд"
	got.TargetName = "Rent"
	require.NoError(t, store.UpdateRule(ctx, got))
	updated, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "аренд", updated.Pattern)
	assert.Equal(t, "Rent", updated.TargetName)

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	_, err = store.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteRule(ctx, rule.ID), common.ErrNotFound)

	missing := newRule("x", model.TargetArticle, "a")
	missing.ID = 999
	assert.ErrorIs(t, store.UpdateRule(ctx, missing), common.ErrNotFound)
}

func TestRules_Validation(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	badRegex := newRule("(", model.TargetArticle, "a")
	badRegex.Type = model.RuleRegex
	badType := newRule("x", model.TargetOperationType, "sideways")

	tests := []struct {
		rule *model.MappingRule
		name string
	}{
		{name: "empty pattern", rule: newRule(" ", model.TargetArticle, "a")},
		{name: "bad regex", rule: badRegex},
		{name: "bad operation type", rule: badType},
		{name: "missing target", rule: newRule("x", model.TargetArticle, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateRule(ctx, tt.rule)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.ErrorIs(t, err, pattern.ErrInvalidRule)
		})
	}

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	assert.ErrorIs(t, store.CreateRule(ctx, nil), ErrNilParameter)
}

func TestRules_ListOrderAndUsage(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	store.now = steppingClock()

	first := newRule("связь", model.TargetArticle, "art-telecom")
	second := newRule("аренда", model.TargetArticle, "art-rent")
	third := newRule("ромашка", model.TargetCounterparty, "cp-1")
	for _, r := range []*model.MappingRule{first, second, third} {
		require.NoError(t, store.CreateRule(ctx, r))
	}

	order := func() []int64 {
		rules, err := store.ListRules(ctx)
		require.NoError(t, err)
		out := make([]int64, len(rules))
		for i, r := range rules {
			out[i] = r.ID
		}
		return out
	}
	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, order(), "unused rules by id")

	require.NoError(t, store.IncrementRuleUsage(ctx, third.ID))
	require.NoError(t, store.IncrementRuleUsage(ctx, third.ID))
	require.NoError(t, store.IncrementRuleUsage(ctx, second.ID))
	assert.Equal(t, []int64{second.ID, third.ID, first.ID}, order(), "most recently used first")

	got, err := store.GetRule(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	require.NotNil(t, got.LastUsedAt)

	assert.ErrorIs(t, store.IncrementRuleUsage(ctx, 12345), common.ErrNotFound)
}

func TestAliases(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.AddAlias(ctx, "Сбербанк", "ПАО Сбербанк"))
	require.NoError(t, store.AddAlias(ctx, "Сбербанк", "Sberbank"))
	require.NoError(t, store.AddAlias(ctx, "Сбербанк", "Sberbank"))

	aliases, err := store.ListAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"сбербанк", "Sberbank", "ПАО Сбербанк"}, aliases.Synonyms("сбербанк"))

	assert.ErrorIs(t, store.AddAlias(ctx, "", "x"), ErrEmptyString)
}
