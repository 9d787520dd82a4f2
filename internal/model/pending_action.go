package model

import "time"

// FieldSnapshot captures the values a mutation is about to overwrite on one
// transaction, together with the lock bits those fields had before and
// after it. A restore is refused when the lock bits moved since the
// mutation.
type FieldSnapshot struct {
	Previous      Changes
	TransactionID string
	PreviousLocks FieldSet
	AppliedLocks  FieldSet
}

// Unchanged reports whether the lock bits of the snapshot fields on t are
// still the ones the mutation left.
func (s FieldSnapshot) Unchanged(t Transaction) bool {
	mask := s.Previous.Fields()
	return t.LockedFields&mask == s.AppliedLocks&mask
}

// PendingAction is the single most recent reversible mutation.
type PendingAction struct {
	CreatedAt   time.Time
	ID          string
	Description string
	Anchor      string
	Reversal    []FieldSnapshot
	Expiry      time.Duration
}

// ExpiresAt returns the instant the action stops being reversible.
func (p PendingAction) ExpiresAt() time.Time {
	return p.CreatedAt.Add(p.Expiry)
}

// TransactionIDs lists the transactions the reversal touches.
func (p PendingAction) TransactionIDs() []string {
	ids := make([]string, len(p.Reversal))
	for i, s := range p.Reversal {
		ids[i] = s.TransactionID
	}
	return ids
}
