package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

// steppingClock returns a now func that advances a minute per call.
func steppingClock() func() time.Time {
	current := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	store.now = steppingClock()

	seedSession(t, store, "older", draft("o1", 1, 10, "a"))
	seedSession(t, store, "newer", draft("n1", 2, 20, "b"), draft("n2", 3, 30, "c"))

	got, err := store.GetSession(ctx, "newer")
	require.NoError(t, err)
	assert.Equal(t, "newer.ofx", got.FileName)
	assert.Equal(t, model.SessionDraft, got.Status)
	assert.Equal(t, 2, got.ImportedCount)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "newer", sessions[0].ID)
	assert.Equal(t, "older", sessions[1].ID)
	assert.Equal(t, 1, sessions[1].ImportedCount)

	require.NoError(t, store.DeleteSession(ctx, "older"))
	_, err = store.GetSession(ctx, "older")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = store.GetTransactionByID(ctx, "o1")
	assert.ErrorIs(t, err, common.ErrNotFound, "drafts go with their session")

	assert.ErrorIs(t, store.DeleteSession(ctx, "older"), common.ErrNotFound)
}

func TestSessions_Confirm(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	seedSession(t, store, "s1", draft("a", 1, 10, "a"), draft("b", 2, 20, "b"))

	n, err := store.ConfirmSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	session, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionProcessed, session.Status)

	open, err := store.GetTransactions(ctx, "s1", service.TransactionFilter{UnprocessedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)

	n, err = store.ConfirmSession(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.ConfirmSession(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateSession_Validation(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	tests := []struct {
		session *model.ImportSession
		wantErr error
		name    string
	}{
		{name: "nil", session: nil, wantErr: ErrNilParameter},
		{name: "no id", session: &model.ImportSession{FileName: "a.ofx"}, wantErr: ErrInvalidSession},
		{name: "no file", session: &model.ImportSession{ID: "s1"}, wantErr: ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.CreateSession(ctx, tt.session), tt.wantErr)
		})
	}
}
