// Package lock records direct user edits. A field the user sets by hand is
// locked on that transaction and no auto-fill or bulk apply may overwrite it.
package lock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

// Edit describes a committed direct edit.
type Edit struct {
	TransactionID string
	Value         string
	PreviousValue string
	Field         model.Field
	// Snapshot restores the field value and its lock bit.
	Snapshot model.FieldSnapshot
}

// Description names the edit for the undo affordance.
func (e Edit) Description() string {
	return fmt.Sprintf("Set %s to %q", e.Field.Label(), e.Value)
}

// Reversal returns the snapshots that undo the edit.
func (e Edit) Reversal() []model.FieldSnapshot {
	return []model.FieldSnapshot{e.Snapshot}
}

// Tracker applies direct user edits through the transaction store.
type Tracker struct {
	store service.TransactionStore
}

// NewTracker creates a tracker over store.
func NewTracker(store service.TransactionStore) *Tracker {
	return &Tracker{store: store}
}

// IsLocked reports whether the user confirmed field f on t.
func IsLocked(t model.Transaction, f model.Field) bool {
	return t.IsLocked(f)
}

// Edit writes value into field on the transaction and locks the field.
func (tr *Tracker) Edit(ctx context.Context, id string, field model.Field, value string) (Edit, error) {
	if !field.Valid() {
		return Edit{}, common.NewValidationError("field", fmt.Sprintf("unknown field %d", field), common.ErrValidation)
	}
	if field == model.FieldDirection {
		d, err := model.ParseDirection(value)
		if err != nil {
			return Edit{}, common.NewValidationError(field.String(), err.Error(), common.ErrValidation)
		}
		value = string(d)
	}

	before, err := tr.store.GetTransactionByID(ctx, id)
	if err != nil {
		return Edit{}, err
	}
	if before.Processed {
		return Edit{}, &common.StaleRecordError{Operation: "edit", StaleIDs: []string{id}, Requested: 1}
	}

	if err := tr.store.UpdateTransaction(ctx, id, model.Changes{field: value}, true); err != nil {
		return Edit{}, fmt.Errorf("failed to edit %s on %s: %w", field, id, err)
	}

	slog.Debug("Field edited and locked", "id", id, "field", field.String())

	return Edit{
		TransactionID: id,
		Field:         field,
		Value:         value,
		PreviousValue: before.Get(field),
		Snapshot: model.FieldSnapshot{
			TransactionID: id,
			Previous:      model.Changes{field: before.Get(field)},
			PreviousLocks: before.LockedFields,
			AppliedLocks:  before.LockedFields.Add(field),
		},
	}, nil
}
