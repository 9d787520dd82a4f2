package bulk

import (
	"fmt"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/lock"
	"github.com/Veraticus/statement-reconciler/internal/model"
)

// State is a step of a bulk correction.
type State int

// Proposal states. Applied and Skipped are terminal.
const (
	StateIdle State = iota
	StateCandidatesFound
	StateApplying
	StateApplied
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCandidatesFound:
		return "candidates found"
	case StateApplying:
		return "applying"
	case StateApplied:
		return "applied"
	case StateSkipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateSkipped
}

// Reasons a proposal ends in StateSkipped.
const (
	SkipIncomplete     = "template transaction is incomplete"
	SkipNoCandidates   = "no similar operations"
	SkipDismissed      = "dismissed"
	SkipNothingChosen  = "nothing selected"
	SkipAllStale       = "all selected operations became stale"
	SkipBatchFailed    = "batch write failed"
	SkipAlreadyApplied = "candidates already hold the value"
)

// Proposal offers to copy one edit onto similar transactions of the same
// session. Every candidate starts selected.
type Proposal struct {
	selected   map[string]bool
	Candidates []model.SimilarityResult
	Edit       lock.Edit
	SkipReason string
	SessionID  string
	state      State
}

func newProposal(edit lock.Edit, sessionID string) *Proposal {
	return &Proposal{
		Edit:      edit,
		SessionID: sessionID,
		selected:  make(map[string]bool),
		state:     StateIdle,
	}
}

// State returns the current step.
func (p *Proposal) State() State {
	return p.state
}

// Select replaces the selection. Unknown ids are rejected.
func (p *Proposal) Select(ids ...string) error {
	if p.state != StateCandidatesFound {
		return fmt.Errorf("cannot select on a proposal that is %s", p.state)
	}
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !p.isCandidate(id) {
			return common.NewValidationError("candidate", fmt.Sprintf("%s is not a proposed candidate", id), common.ErrValidation)
		}
		next[id] = true
	}
	p.selected = next
	return nil
}

// SelectAll restores the default selection.
func (p *Proposal) SelectAll() {
	if p.state != StateCandidatesFound {
		return
	}
	for _, c := range p.Candidates {
		p.selected[c.ID()] = true
	}
}

// Selected returns the chosen candidate ids in ranking order.
func (p *Proposal) Selected() []string {
	var out []string
	for _, c := range p.Candidates {
		if p.selected[c.ID()] {
			out = append(out, c.ID())
		}
	}
	return out
}

// Skip abandons the proposal. The original edit stays committed.
func (p *Proposal) Skip() {
	if p.state.Terminal() {
		return
	}
	p.skip(SkipDismissed)
}

func (p *Proposal) skip(reason string) {
	p.state = StateSkipped
	p.SkipReason = reason
}

func (p *Proposal) isCandidate(id string) bool {
	for _, c := range p.Candidates {
		if c.ID() == id {
			return true
		}
	}
	return false
}
