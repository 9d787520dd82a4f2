// Package service defines the collaborator contracts the reconciliation
// engine calls into.
package service

import (
	"context"

	"github.com/Veraticus/statement-reconciler/internal/model"
)

// TransactionFilter narrows a session query.
type TransactionFilter struct {
	IDs             []string
	UnprocessedOnly bool
	Limit           int
}

// TransactionStore is the source of truth for draft transactions. Readers
// must not cache results beyond a single reconciliation step.
type TransactionStore interface {
	GetTransactions(ctx context.Context, sessionID string, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	// UpdateTransaction writes changes to one transaction. With lock set the
	// written fields become user-confirmed.
	UpdateTransaction(ctx context.Context, id string, changes model.Changes, lock bool) error
	// BulkUpdate writes the same changes to every id in one batch. Rows that
	// are processed, missing or have any of the changed fields locked are
	// skipped rather than failing the batch. It returns the ids written.
	BulkUpdate(ctx context.Context, ids []string, changes model.Changes) ([]string, error)
	// Restore writes back captured values and lock bits in one batch,
	// skipping processed or missing rows. It returns the ids restored.
	Restore(ctx context.Context, snapshots []model.FieldSnapshot) ([]string, error)
}

// RuleStore persists mapping rules and their alias table.
type RuleStore interface {
	ListRules(ctx context.Context) ([]model.MappingRule, error)
	GetRule(ctx context.Context, id int64) (*model.MappingRule, error)
	CreateRule(ctx context.Context, rule *model.MappingRule) error
	UpdateRule(ctx context.Context, rule *model.MappingRule) error
	DeleteRule(ctx context.Context, id int64) error
	IncrementRuleUsage(ctx context.Context, id int64) error
	ListAliases(ctx context.Context) (model.AliasSet, error)
	AddAlias(ctx context.Context, canonical, alias string) error
}

// SessionStore persists import sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.ImportSession) error
	GetSession(ctx context.Context, id string) (*model.ImportSession, error)
	ListSessions(ctx context.Context) ([]model.ImportSession, error)
	DeleteSession(ctx context.Context, id string) error
	// ConfirmSession marks the session and all its drafts processed and
	// returns how many drafts were finalized.
	ConfirmSession(ctx context.Context, id string) (int, error)
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
}

// CompanyProfile supplies the tax id used to recognize self-transfers.
type CompanyProfile interface {
	CompanyTaxID() string
}

// Storage is the full persistence layer.
type Storage interface {
	TransactionStore
	RuleStore
	SessionStore
	Migrate(ctx context.Context) error
	Close() error
}
