package lock

import (
	"context"
	"testing"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_EditLocksField(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(model.Transaction{ID: "t1", SessionID: "s1", ArticleID: "art-old"})
	tracker := NewTracker(store)

	edit, err := tracker.Edit(ctx, "t1", model.FieldArticle, "art-rent")
	require.NoError(t, err)

	assert.Equal(t, "art-old", edit.PreviousValue)
	assert.Equal(t, "art-rent", edit.Value)
	assert.Equal(t, model.Changes{model.FieldArticle: "art-old"}, edit.Snapshot.Previous)
	assert.False(t, edit.Snapshot.PreviousLocks.Has(model.FieldArticle))
	assert.True(t, edit.Snapshot.AppliedLocks.Has(model.FieldArticle))
	assert.Equal(t, `Set article to "art-rent"`, edit.Description())

	stored, _ := store.Get("t1")
	assert.Equal(t, "art-rent", stored.ArticleID)
	assert.True(t, IsLocked(stored, model.FieldArticle))
	assert.False(t, IsLocked(stored, model.FieldAccount))
}

func TestTracker_EditReversal(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(model.Transaction{ID: "t1", SessionID: "s1", ArticleID: "art-old"})

	edit, err := NewTracker(store).Edit(ctx, "t1", model.FieldArticle, "art-rent")
	require.NoError(t, err)

	restored, err := store.Restore(ctx, edit.Reversal())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, restored)

	stored, _ := store.Get("t1")
	assert.Equal(t, "art-old", stored.ArticleID)
	assert.False(t, IsLocked(stored, model.FieldArticle))
}

func TestTracker_EditOverridesOwnLock(t *testing.T) {
	ctx := context.Background()
	txn := model.Transaction{ID: "t1", SessionID: "s1", ArticleID: "art-mine"}
	txn.Lock(model.FieldArticle)
	store := memstore.New(txn)

	_, err := NewTracker(store).Edit(ctx, "t1", model.FieldArticle, "art-new")
	require.NoError(t, err)

	stored, _ := store.Get("t1")
	assert.Equal(t, "art-new", stored.ArticleID)
}

func TestTracker_EditRejects(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(
		model.Transaction{ID: "open", SessionID: "s1"},
		model.Transaction{ID: "done", SessionID: "s1", Processed: true},
	)
	tracker := NewTracker(store)

	_, err := tracker.Edit(ctx, "open", model.Field(99), "x")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = tracker.Edit(ctx, "open", model.FieldDirection, "sideways")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = tracker.Edit(ctx, "missing", model.FieldArticle, "art")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = tracker.Edit(ctx, "done", model.FieldArticle, "art")
	assert.ErrorIs(t, err, common.ErrStale)

	assert.Zero(t, store.Calls["UpdateTransaction"])
}

func TestTracker_EditNormalizesDirection(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(model.Transaction{ID: "t1", SessionID: "s1"})

	edit, err := NewTracker(store).Edit(ctx, "t1", model.FieldDirection, " Expense ")
	require.NoError(t, err)
	assert.Equal(t, "expense", edit.Value)

	stored, _ := store.Get("t1")
	assert.Equal(t, model.DirectionExpense, stored.Direction)
}
