package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
)

func newTestState() *State {
	return NewState(&model.Document{ID: "doc-1", Type: model.DocumentTypeInvoice}, time.Now())
}

func TestMachine_Apply(t *testing.T) {
	machine := NewMachine()
	state := newTestState()

	err := machine.Apply(state, StageIngested, "m1", "")
	assert.Nil(t, err)
	assert.Equal(t, StageIngested, state.CurrentStage())

	err = machine.Apply(state, StageClassifying, "m2", "")
	assert.Nil(t, err)

	// Skipping stages is illegal
	err = machine.Apply(state, StageApproved, "m3", "")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StageClassifying, state.CurrentStage())
}

func TestMachine_DuplicateMessage(t *testing.T) {
	machine := NewMachine()
	state := newTestState()

	err := machine.Apply(state, StageIngested, "m1", "")
	assert.Nil(t, err)

	// Redelivery of the same message never advances the workflow twice
	err = machine.Apply(state, StageClassifying, "m1", "")
	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Equal(t, StageIngested, state.CurrentStage())
}

func TestMachine_TerminalIsFinal(t *testing.T) {
	machine := NewMachine()
	state := newTestState()
	for i, stage := range []Stage{StageIngested, StageClassifying, StageTaskAssigned, StageProcessing, StageCrossValidating, StageQualityReview, StageApproved, StageLearning, StageTerminal} {
		err := machine.Apply(state, stage, "", "")
		assert.Nil(t, err, "step %v", i)
	}
	assert.True(t, state.IsTerminal())

	err := machine.Apply(state, StageLearning, "m-late", "")
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, 9, len(state.Snapshot().History))
}

func TestMachine_CancellationEdges(t *testing.T) {
	machine := NewMachine()
	for _, from := range []Stage{StageIngested, StageClassifying, StageTaskAssigned, StageProcessing, StageCrossValidating, StageQualityReview} {
		assert.True(t, machine.CanTransition(from, StageRejected), "from %v", from)
	}
	assert.False(t, machine.CanTransition(StageLearning, StageRejected))
}

func TestState_Barrier(t *testing.T) {
	state := newTestState()
	state.SetTasks([]model.Capability{model.CapabilityExtraction, model.CapabilityMasterData})

	assert.False(t, state.RecordTask(model.CapabilityExtraction, model.TaskStatusDone))
	assert.False(t, state.BarrierSatisfied())

	// Running is not terminal
	assert.False(t, state.RecordTask(model.CapabilityMasterData, model.TaskStatusRunning))

	// A failed task still satisfies the barrier
	assert.True(t, state.RecordTask(model.CapabilityMasterData, model.TaskStatusFailed))
	assert.True(t, state.BarrierSatisfied())
}
