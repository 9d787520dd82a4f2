// Package undo keeps the single most recent reversible mutation and restores
// it on request until it expires.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
)

// DefaultExpiry is how long a registered action stays reversible.
const DefaultExpiry = 5 * time.Second

// ErrNothingToUndo is returned when the slot is empty or expired.
var ErrNothingToUndo = errors.New("nothing to undo")

// Restorer writes captured values back in one batch and returns the ids it
// restored.
type Restorer interface {
	Restore(ctx context.Context, snapshots []model.FieldSnapshot) ([]string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithExpiry sets the reversal window. Non-positive values keep the default.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithOnExpire registers a hook called after an action times out without
// being undone or canceled. It runs on the timer goroutine.
func WithOnExpire(fn func(model.PendingAction)) Option {
	return func(m *Manager) {
		m.onExpire = fn
	}
}

// Manager holds exactly one pending action. Registering a new action
// replaces the previous one.
type Manager struct {
	store    Restorer
	clock    clock.Clock
	onExpire func(model.PendingAction)
	slot     *model.PendingAction
	timer    *clock.Timer
	expiry   time.Duration
	mu       sync.Mutex
}

// NewManager creates an empty manager that restores through store.
func NewManager(store Restorer, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		clock:  clock.New(),
		expiry: DefaultExpiry,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Expiry returns the configured reversal window.
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Register stores a new pending action, discarding whatever was there.
// The expiry window starts now.
func (m *Manager) Register(description string, reversal []model.FieldSnapshot, anchor string) model.PendingAction {
	action := model.PendingAction{
		ID:          uuid.NewString(),
		Description: description,
		Anchor:      anchor,
		Reversal:    reversal,
		CreatedAt:   m.clock.Now(),
		Expiry:      m.expiry,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot != nil {
		slog.Debug("Replacing pending action", "previous", m.slot.ID, "next", action.ID)
	}
	m.clearLocked()
	m.slot = &action
	id := action.ID
	m.timer = m.clock.AfterFunc(m.expiry, func() { m.expire(id) })

	return action
}

// IsAvailable reports whether an unexpired action is waiting.
func (m *Manager) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked()
}

// Current returns the waiting action, if any.
func (m *Manager) Current() (model.PendingAction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked() {
		return model.PendingAction{}, false
	}
	return *m.slot, true
}

// Remaining returns how long the waiting action stays reversible.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked() {
		return 0
	}
	return m.slot.ExpiresAt().Sub(m.clock.Now())
}

// Undo writes back the captured values of the waiting action. The slot is
// cleared before the write, so a failed restore is never retried.
func (m *Manager) Undo(ctx context.Context) (model.PendingAction, error) {
	m.mu.Lock()
	if !m.liveLocked() {
		m.clearLocked()
		m.mu.Unlock()
		return model.PendingAction{}, ErrNothingToUndo
	}
	action := *m.slot
	m.clearLocked()
	m.mu.Unlock()

	restored, err := m.store.Restore(ctx, action.Reversal)
	if err != nil {
		return action, fmt.Errorf("failed to undo %q: %w", action.Description, err)
	}

	if len(restored) < len(action.Reversal) {
		stale := missing(action.TransactionIDs(), restored)
		slog.Warn("Undo skipped stale records", "action", action.ID, "stale", len(stale))
		return action, &common.StaleRecordError{
			Operation: "undo",
			StaleIDs:  stale,
			Requested: len(action.Reversal),
			Applied:   len(restored),
		}
	}

	slog.Info("Pending action undone", "action", action.ID, "restored", len(restored))
	return action, nil
}

// Cancel drops the waiting action without touching any data. It reports
// whether something was dropped.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.liveLocked()
	m.clearLocked()
	return live
}

func (m *Manager) liveLocked() bool {
	return m.slot != nil && m.clock.Now().Before(m.slot.ExpiresAt())
}

func (m *Manager) clearLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.slot = nil
}

func (m *Manager) expire(id string) {
	m.mu.Lock()
	if m.slot == nil || m.slot.ID != id {
		m.mu.Unlock()
		return
	}
	action := *m.slot
	m.slot = nil
	m.timer = nil
	hook := m.onExpire
	m.mu.Unlock()

	slog.Debug("Pending action expired", "action", id)
	if hook != nil {
		hook(action)
	}
}

func missing(all, present []string) []string {
	seen := make(map[string]bool, len(present))
	for _, id := range present {
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
