// Package testutil provides database fixtures for tests that run against
// the real SQLite store.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/storage"
)

// CompanyINN is the tax id the fixtures treat as the company's own.
const CompanyINN = "7700000000"

// TestDB is a migrated in-memory store closed at test cleanup.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBAt(t, ":memory:")
}

// SetupTestDBAt opens and migrates a database at path, for tests that
// share the file with another connection.
func SetupTestDBAt(t *testing.T, path string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	return &TestDB{Storage: store, t: t}
}

// SeedSession creates a draft session and saves txns into it.
func (db *TestDB) SeedSession(id string, txns ...model.Transaction) {
	db.t.Helper()
	ctx := context.Background()

	session := &model.ImportSession{ID: id, FileName: id + ".ofx", Status: model.SessionDraft}
	if err := db.Storage.CreateSession(ctx, session); err != nil {
		db.t.Fatalf("failed to seed session %q: %v", id, err)
	}
	for i := range txns {
		txns[i].SessionID = id
	}
	if len(txns) == 0 {
		return
	}
	if err := db.Storage.SaveTransactions(ctx, txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// MustGet returns the stored transaction or fails the test.
func (db *TestDB) MustGet(id string) model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransactionByID(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %q: %v", id, err)
	}
	return *txn
}

// Payment builds an expense from the company to receiverINN.
func Payment(id string, date time.Time, amount int64, receiverINN, description string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        date,
		Amount:      decimal.NewFromInt(amount),
		Description: description,
		Payer:       "ООО Ромашка",
		PayerINN:    CompanyINN,
		Receiver:    "Контрагент " + receiverINN,
		ReceiverINN: receiverINN,
		Direction:   model.DirectionExpense,
	}
}
