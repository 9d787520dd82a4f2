// Package bulk propagates a confirmed single-transaction edit to similar
// transactions of the same import session.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/lock"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
	"github.com/Veraticus/statement-reconciler/internal/similarity"
)

// ErrTerminal is returned when applying a proposal that already finished.
var ErrTerminal = errors.New("proposal already finished")

// Registrar receives the reversal data of an applied batch.
type Registrar interface {
	Register(description string, reversal []model.FieldSnapshot, anchor string) model.PendingAction
}

// ApplyResult summarizes a batch write.
type ApplyResult struct {
	Action    *model.PendingAction
	Applied   []string
	Skipped   []string
	Requested int
}

// Coordinator drives proposals from edit to apply.
type Coordinator struct {
	store   service.TransactionStore
	pending Registrar
	options similarity.Options
}

// NewCoordinator creates a coordinator. options.Field is set per proposal.
func NewCoordinator(store service.TransactionStore, pending Registrar, options similarity.Options) *Coordinator {
	return &Coordinator{store: store, pending: pending, options: options}
}

// ShouldPropagate decides whether an edit makes the transaction a usable
// template. A required field qualifies when the edit leaves every required
// field filled; an optional field qualifies only when they were all filled
// already.
func ShouldPropagate(before, after model.Transaction, field model.Field) bool {
	if field.IsRequired() {
		return after.RequiredFilled()
	}
	return before.RequiredFilled()
}

// Propose looks for transactions that should receive the same edit. The
// edited transaction and the candidate pool are read fresh.
func (c *Coordinator) Propose(ctx context.Context, edit lock.Edit) (*Proposal, error) {
	after, err := c.store.GetTransactionByID(ctx, edit.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edited transaction: %w", err)
	}

	p := newProposal(edit, after.SessionID)

	before := *after
	before.Set(edit.Field, edit.PreviousValue)
	if !ShouldPropagate(before, *after, edit.Field) {
		p.skip(SkipIncomplete)
		slog.Debug("Bulk correction skipped", "id", edit.TransactionID, "reason", p.SkipReason)
		return p, nil
	}
	p.state = StateCandidatesFound

	pool, err := c.store.GetTransactions(ctx, after.SessionID, service.TransactionFilter{UnprocessedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate pool: %w", err)
	}

	opts := c.options
	opts.Field = edit.Field
	results := similarity.FindSimilar(*after, pool, opts)
	if len(results) == 0 {
		p.skip(SkipNoCandidates)
		return p, nil
	}

	for _, r := range results {
		if r.Candidate.Get(edit.Field) == edit.Value {
			continue
		}
		p.Candidates = append(p.Candidates, r)
	}
	if len(p.Candidates) == 0 {
		p.skip(SkipAlreadyApplied)
		return p, nil
	}
	p.SelectAll()

	slog.Info("Similar operations found",
		"id", edit.TransactionID,
		"field", edit.Field.String(),
		"candidates", len(p.Candidates))
	return p, nil
}

// Apply writes the edited value to every selected candidate in one batch and
// registers the reversal. Candidates that became processed, deleted or
// locked since the proposal are skipped and reported through a
// *common.StaleRecordError returned next to the result. anchor names the
// transaction the undo affordance belongs to.
func (c *Coordinator) Apply(ctx context.Context, p *Proposal, anchor string) (ApplyResult, error) {
	if p.state != StateCandidatesFound {
		return ApplyResult{}, fmt.Errorf("%w: proposal is %s", ErrTerminal, p.state)
	}

	ids := p.Selected()
	if len(ids) == 0 {
		p.skip(SkipNothingChosen)
		return ApplyResult{}, nil
	}
	p.state = StateApplying

	field := p.Edit.Field
	fresh, err := c.store.GetTransactions(ctx, p.SessionID, service.TransactionFilter{IDs: ids})
	if err != nil {
		p.skip(SkipBatchFailed)
		return ApplyResult{}, fmt.Errorf("failed to refresh selection: %w", err)
	}

	snapshots := make(map[string]model.FieldSnapshot, len(fresh))
	var eligible []string
	for _, t := range fresh {
		if !t.Eligible() || t.IsLocked(field) {
			continue
		}
		snapshots[t.ID] = model.FieldSnapshot{
			TransactionID: t.ID,
			Previous:      model.Changes{field: t.Get(field)},
			PreviousLocks: t.LockedFields,
			AppliedLocks:  t.LockedFields,
		}
		eligible = append(eligible, t.ID)
	}

	var applied []string
	if len(eligible) > 0 {
		applied, err = c.store.BulkUpdate(ctx, eligible, model.Changes{field: p.Edit.Value})
		if err != nil {
			p.skip(SkipBatchFailed)
			return ApplyResult{}, fmt.Errorf("failed to apply %s to similar operations: %w", field, err)
		}
	}

	result := ApplyResult{
		Requested: len(ids),
		Applied:   applied,
		Skipped:   subtract(ids, applied),
	}

	if len(applied) == 0 {
		p.skip(SkipAllStale)
	} else {
		reversal := make([]model.FieldSnapshot, 0, len(applied))
		for _, id := range applied {
			reversal = append(reversal, snapshots[id])
		}
		desc := fmt.Sprintf("Applied to %d similar operations: %s", len(applied), field.Label())
		action := c.pending.Register(desc, reversal, anchor)
		result.Action = &action
		p.state = StateApplied

		slog.Info("Bulk correction applied",
			"field", field.String(),
			"requested", len(ids),
			"applied", len(applied))
	}

	if len(result.Skipped) > 0 {
		return result, &common.StaleRecordError{
			Operation: "bulk apply",
			StaleIDs:  result.Skipped,
			Requested: len(ids),
			Applied:   len(applied),
		}
	}
	return result, nil
}

func subtract(all, done []string) []string {
	seen := make(map[string]bool, len(done))
	for _, id := range done {
		seen[id] = true
	}
	var out []string
	for _, id := range all {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}
