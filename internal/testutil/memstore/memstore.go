// Package memstore is an in-memory TransactionStore and RuleStore for tests
// that exercise the reconciliation engine without SQLite.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

var (
	_ service.TransactionStore = (*Store)(nil)
	_ service.RuleStore        = (*Store)(nil)
)

// Store mirrors the eligibility rules of the SQLite store.
type Store struct {
	txns     map[string]model.Transaction
	rules    map[int64]model.MappingRule
	aliases  model.AliasSet
	nextRule int64
	mu       sync.Mutex

	// Calls counts mutating calls by method name.
	Calls map[string]int

	// BeforeBulk, when set, runs inside BulkUpdate before any write so tests
	// can change state between selection and apply.
	BeforeBulk func(*Store)
}

// New creates a store seeded with txns.
func New(txns ...model.Transaction) *Store {
	s := &Store{
		txns:    make(map[string]model.Transaction),
		rules:   make(map[int64]model.MappingRule),
		aliases: make(model.AliasSet),
		Calls:   make(map[string]int),
	}
	for _, t := range txns {
		s.txns[t.ID] = t
	}
	return s
}

// Put inserts or replaces a transaction.
func (s *Store) Put(t model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[t.ID] = t
}

// Delete removes a transaction.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txns, id)
}

// Get returns a copy of a transaction, for assertions.
func (s *Store) Get(id string) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	return t, ok
}

// GetTransactions implements service.TransactionStore.
func (s *Store) GetTransactions(_ context.Context, sessionID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var want map[string]bool
	if len(filter.IDs) > 0 {
		want = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			want[id] = true
		}
	}

	var out []model.Transaction
	for _, t := range s.txns {
		if t.SessionID != sessionID {
			continue
		}
		if filter.UnprocessedOnly && t.Processed {
			continue
		}
		if want != nil && !want[t.ID] {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetTransactionByID implements service.TransactionStore.
func (s *Store) GetTransactionByID(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return &t, nil
}

// UpdateTransaction implements service.TransactionStore.
func (s *Store) UpdateTransaction(_ context.Context, id string, changes model.Changes, lock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["UpdateTransaction"]++

	t, ok := s.txns[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if t.Processed || (!lock && t.LockedFields.Intersects(changes.Fields())) {
		return &common.StaleRecordError{Operation: "update", StaleIDs: []string{id}, Requested: 1}
	}
	t.Apply(changes)
	if lock {
		t.LockedFields |= changes.Fields()
	}
	s.txns[id] = t
	return nil
}

// BulkUpdate implements service.TransactionStore.
func (s *Store) BulkUpdate(_ context.Context, ids []string, changes model.Changes) ([]string, error) {
	if s.BeforeBulk != nil {
		s.BeforeBulk(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["BulkUpdate"]++

	var applied []string
	mask := changes.Fields()
	for _, id := range ids {
		t, ok := s.txns[id]
		if !ok || t.Processed || t.LockedFields.Intersects(mask) {
			continue
		}
		t.Apply(changes)
		s.txns[id] = t
		applied = append(applied, id)
	}
	return applied, nil
}

// Restore implements service.TransactionStore.
func (s *Store) Restore(_ context.Context, snapshots []model.FieldSnapshot) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Restore"]++

	var restored []string
	for _, snap := range snapshots {
		t, ok := s.txns[snap.TransactionID]
		if !ok || t.Processed || !snap.Unchanged(t) {
			continue
		}
		mask := snap.Previous.Fields()
		t.Apply(snap.Previous)
		t.LockedFields = (t.LockedFields &^ mask) | (snap.PreviousLocks & mask)
		s.txns[snap.TransactionID] = t
		restored = append(restored, snap.TransactionID)
	}
	return restored, nil
}

// AddRule stores a rule and assigns it an id.
func (s *Store) AddRule(rule model.MappingRule) model.MappingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRule++
	rule.ID = s.nextRule
	s.rules[rule.ID] = rule
	return rule
}

// ListRules implements service.RuleStore, in insertion order.
func (s *Store) ListRules(_ context.Context) ([]model.MappingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MappingRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRule implements service.RuleStore.
func (s *Store) GetRule(_ context.Context, id int64) (*model.MappingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	return &r, nil
}

// CreateRule implements service.RuleStore.
func (s *Store) CreateRule(_ context.Context, rule *model.MappingRule) error {
	*rule = s.AddRule(*rule)
	return nil
}

// UpdateRule implements service.RuleStore.
func (s *Store) UpdateRule(_ context.Context, rule *model.MappingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return fmt.Errorf("mapping rule %d: %w", rule.ID, common.ErrNotFound)
	}
	s.rules[rule.ID] = *rule
	return nil
}

// DeleteRule implements service.RuleStore.
func (s *Store) DeleteRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

// IncrementRuleUsage implements service.RuleStore.
func (s *Store) IncrementRuleUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["IncrementRuleUsage"]++
	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	r.UsageCount++
	s.rules[id] = r
	return nil
}

// ListAliases implements service.RuleStore.
func (s *Store) ListAliases(_ context.Context) (model.AliasSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.AliasSet, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

// AddAlias implements service.RuleStore.
func (s *Store) AddAlias(_ context.Context, canonical, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(canonical))
	s.aliases[key] = append(s.aliases[key], strings.TrimSpace(alias))
	return nil
}
