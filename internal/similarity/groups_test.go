package similarity

import (
	"testing"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSimilar(t *testing.T) {
	txns := []model.Transaction{
		{ID: "r1", Description: "ООО Ромашка аренда офиса", Amount: rub(50000), Date: day(2024, 3, 1)},
		{ID: "s1", Description: "Сбербанк перевод", Amount: rub(1000), Date: day(2024, 3, 10)},
		{ID: "r2", Description: "ООО Ромашка аренда офиса", Amount: rub(50000), Date: day(2024, 3, 5)},
		{ID: "lone", Description: "Уплата налога", Amount: rub(777), Date: day(2024, 4, 20)},
		{ID: "s2", Description: "Сбербанк перевод", Amount: rub(1000), Date: day(2024, 3, 11)},
		{ID: "r3", Description: "ООО Ромашка аренда офиса", Amount: rub(50000), Date: day(2024, 3, 1), Processed: true},
	}

	groups := GroupSimilar(txns, Options{MinScore: 24})
	require.Len(t, groups, 2)

	assert.Equal(t, "r1", groups[0].Seed.ID)
	require.Len(t, groups[0].Members, 1)
	assert.Equal(t, "r2", groups[0].Members[0].ID())
	assert.Equal(t, 2, groups[0].Size())

	assert.Equal(t, "s1", groups[1].Seed.ID)
	require.Len(t, groups[1].Members, 1)
	assert.Equal(t, "s2", groups[1].Members[0].ID())
}

func TestGroupSimilar_NoGroups(t *testing.T) {
	assert.Empty(t, GroupSimilar(nil, Options{MinScore: 24}))
	assert.Empty(t, GroupSimilar([]model.Transaction{{ID: "only"}}, Options{}))
}
