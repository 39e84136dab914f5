package workflow

import (
	"errors"
	"fmt"

	"github.com/viant/docuflow/internal/clock"
)

// Machine validates and applies stage transitions. Transitions are driven by
// messages; the message id doubles as the idempotency key so a redelivered
// message never advances the workflow twice.
type Machine struct {
	legal map[Stage][]Stage
}

var (
	// ErrIllegalTransition marks an attempt to move between unrelated stages;
	// callers log and discard, they do not fail the workflow.
	ErrIllegalTransition = errors.New("workflow: illegal transition")

	// ErrDuplicateMessage marks a redelivered message whose transition was
	// already applied.
	ErrDuplicateMessage = errors.New("workflow: duplicate message")

	// ErrTerminal marks a transition attempted after archival.
	ErrTerminal = errors.New("workflow: state is terminal")
)

// NewMachine builds the stage graph. Cancellation may reject a workflow from
// any active stage, which is why Rejected has more inbound edges than the
// quality-review decision alone would need.
func NewMachine() *Machine {
	return &Machine{
		legal: map[Stage][]Stage{
			StageIdle:            {StageIngested},
			StageIngested:        {StageClassifying, StageRejected},
			StageClassifying:     {StageTaskAssigned, StageRejected},
			StageTaskAssigned:    {StageProcessing, StageCrossValidating, StageRejected, StageHumanReview},
			StageProcessing:      {StageCrossValidating, StageRejected, StageHumanReview},
			StageCrossValidating: {StageQualityReview, StageRejected, StageHumanReview},
			StageQualityReview:   {StageApproved, StageRejected, StageHumanReview},
			StageApproved:        {StageLearning},
			StageRejected:        {StageLearning},
			StageHumanReview:     {StageLearning},
			StageLearning:        {StageTerminal},
		},
	}
}

// CanTransition reports whether from→to is a legal edge.
func (m *Machine) CanTransition(from, to Stage) bool {
	for _, next := range m.legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply advances the state to the target stage. messageID deduplicates
// redeliveries; a transition is applied exactly once per message.
func (m *Machine) Apply(state *State, to Stage, messageID, note string) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if messageID != "" {
		if state.seen == nil {
			state.seen = make(map[string]bool)
		}
		if state.seen[messageID] {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, messageID)
		}
	}
	if state.Terminal {
		return fmt.Errorf("%w: document %s", ErrTerminal, state.DocumentID)
	}
	from := state.Stage
	if !m.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s (document %s)", ErrIllegalTransition, from, to, state.DocumentID)
	}

	now := clock.Now()
	state.Stage = to
	state.UpdatedAt = now
	state.History = append(state.History, Transition{
		From:      from,
		To:        to,
		At:        now,
		MessageID: messageID,
		Note:      note,
	})
	if to == StageTerminal {
		state.Terminal = true
	}
	if messageID != "" {
		state.seen[messageID] = true
	}
	return nil
}
