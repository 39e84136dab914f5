package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/registry"
)

func testConfig() Config {
	return Config{
		DefaultTimeout: time.Second,
		SweepInterval:  10 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		RetryFactor:    2,
		RetryMaxDelay:  10 * time.Millisecond,
	}
}

type harness struct {
	registry  *registry.Service
	bus       *bus.Service
	scheduler *Service

	mu          sync.Mutex
	assignments []*model.TaskAssignment
	failures    []*model.TaskFailure
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	h := &harness{
		registry: registry.New(registry.DefaultConfig()),
		bus:      bus.New(bus.DefaultConfig()),
	}
	h.scheduler = New(config, h.registry, h.bus)
	h.bus.Subscribe(model.TopicTaskAssigned, func(ctx context.Context, message *model.Message) error {
		assignment, err := bus.PayloadAs[model.TaskAssignment](message)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.assignments = append(h.assignments, assignment)
		h.mu.Unlock()
		return nil
	})
	h.bus.Subscribe(model.TopicTaskUnrecoverable, func(ctx context.Context, message *model.Message) error {
		failure, err := bus.PayloadAs[model.TaskFailure](message)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.failures = append(h.failures, failure)
		h.mu.Unlock()
		return nil
	})
	t.Cleanup(h.bus.Shutdown)
	return h
}

func (h *harness) register(t *testing.T, agentID string, capability model.Capability, capacity int) {
	t.Helper()
	err := h.registry.Register(registry.Descriptor{ID: agentID, Capability: capability, Capacity: capacity})
	assert.Nil(t, err)
}

func (h *harness) waitAssignments(t *testing.T, count int) []*model.TaskAssignment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		if len(h.assignments) >= count {
			out := append([]*model.TaskAssignment(nil), h.assignments...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v assignments", count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_SubmitAssigns(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 2)

	task, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "ref-1")
	assert.Nil(t, err)

	assignments := h.waitAssignments(t, 1)
	assert.Equal(t, task.ID, assignments[0].TaskID)
	assert.Equal(t, "a1", assignments[0].AgentID)
	assert.Equal(t, "ref-1", assignments[0].PayloadRef)

	snapshot, _ := h.registry.Snapshot("a1")
	assert.Equal(t, 1, snapshot.InFlight)
}

func TestService_DuplicateTask(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 2)

	_, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	_, err = h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.ErrorIs(t, err, ErrDuplicateTask)

	// A second capability for the same document is fine
	_, err = h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityMasterData, model.PriorityNormal, "")
	assert.Nil(t, err)
}

func TestService_LeastLoadedAssignment(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 4)
	h.register(t, "a2", model.CapabilityExtraction, 4)

	for i, doc := range []string{"doc-1", "doc-2", "doc-3", "doc-4"} {
		_, err := h.scheduler.Submit(context.Background(), doc, model.CapabilityExtraction, model.PriorityNormal, "")
		assert.Nil(t, err, "submit %v", i)
	}
	h.waitAssignments(t, 4)

	s1, _ := h.registry.Snapshot("a1")
	s2, _ := h.registry.Snapshot("a2")
	assert.Equal(t, 2, s1.InFlight)
	assert.Equal(t, 2, s2.InFlight)
}

func TestService_PendingDrainsOnCompletion(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 1)

	first, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	second, err := h.scheduler.Submit(context.Background(), "doc-2", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)

	h.waitAssignments(t, 1)
	stored, ok := h.scheduler.Task(second.ID)
	assert.True(t, ok)
	assert.Equal(t, model.TaskStatusPending, stored.Status)

	_, err = h.scheduler.HandleCompletion(context.Background(), &model.TaskCompletion{
		TaskID: first.ID, DocumentID: "doc-1", Capability: model.CapabilityExtraction, AgentID: "a1", Status: model.TaskStatusDone,
	})
	assert.Nil(t, err)

	assignments := h.waitAssignments(t, 2)
	assert.Equal(t, second.ID, assignments[1].TaskID)
}

func TestService_DuplicateCompletion(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 1)

	task, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	h.waitAssignments(t, 1)

	completion := &model.TaskCompletion{TaskID: task.ID, DocumentID: "doc-1", Capability: model.CapabilityExtraction, Status: model.TaskStatusDone}
	_, err = h.scheduler.HandleCompletion(context.Background(), completion)
	assert.Nil(t, err)
	_, err = h.scheduler.HandleCompletion(context.Background(), completion)
	assert.ErrorIs(t, err, ErrDuplicateCompletion)

	_, err = h.scheduler.HandleCompletion(context.Background(), &model.TaskCompletion{TaskID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownTask)

	// Capacity was released exactly once
	snapshot, _ := h.registry.Snapshot("a1")
	assert.Equal(t, 0, snapshot.InFlight)
}

func TestService_TimeoutRetryThenUnrecoverable(t *testing.T) {
	config := testConfig()
	config.DefaultTimeout = 10 * time.Millisecond
	config.MaxRetries = 1
	h := newHarness(t, config)
	h.register(t, "a1", model.CapabilityExtraction, 1)

	task, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	h.waitAssignments(t, 1)

	// First expiry requeues with backoff
	time.Sleep(15 * time.Millisecond)
	h.scheduler.TimeoutSweep(context.Background(), time.Now())
	time.Sleep(5 * time.Millisecond)
	h.scheduler.TimeoutSweep(context.Background(), time.Now())
	h.waitAssignments(t, 2)

	// Second expiry exhausts the retries
	time.Sleep(15 * time.Millisecond)
	h.scheduler.TimeoutSweep(context.Background(), time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		failed := len(h.failures)
		h.mu.Unlock()
		if failed > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task was not reported unrecoverable")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.mu.Lock()
	failure := h.failures[0]
	h.mu.Unlock()
	assert.Equal(t, task.ID, failure.TaskID)
	assert.Equal(t, model.FailureReasonTimeout, failure.Reason)

	stored, _ := h.scheduler.Task(task.ID)
	assert.Equal(t, model.TaskStatusTimedOut, stored.Status)
	snapshot, _ := h.registry.Snapshot("a1")
	assert.Equal(t, 0, snapshot.InFlight)
}

func TestService_CancelDocument(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "a1", model.CapabilityExtraction, 1)
	h.register(t, "b1", model.CapabilityMasterData, 1)

	first, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	second, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityMasterData, model.PriorityNormal, "")
	assert.Nil(t, err)
	h.waitAssignments(t, 2)

	cancelled := h.scheduler.CancelDocument("doc-1")
	assert.Equal(t, 2, len(cancelled))

	for _, id := range []string{first.ID, second.ID} {
		stored, _ := h.scheduler.Task(id)
		assert.Equal(t, model.TaskStatusFailed, stored.Status)
		assert.Equal(t, model.FailureReasonCancelled, stored.FailureReason)
	}
	s1, _ := h.registry.Snapshot("a1")
	s2, _ := h.registry.Snapshot("b1")
	assert.Equal(t, 0, s1.InFlight)
	assert.Equal(t, 0, s2.InFlight)

	// Archive drops the terminal tasks
	h.scheduler.Archive("doc-1")
	_, ok := h.scheduler.Task(first.ID)
	assert.False(t, ok)
}

func TestService_AssignSkipsCancelledTask(t *testing.T) {
	h := newHarness(t, testConfig())

	// No agent registered yet, so the task parks in the pending queue
	task, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)

	h.register(t, "a1", model.CapabilityExtraction, 1)
	h.scheduler.CancelDocument("doc-1")

	h.scheduler.mu.Lock()
	internal := h.scheduler.tasks[task.ID]
	h.scheduler.mu.Unlock()

	// Cancellation landed after dispatch popped the task; assign must notice
	// and hand the reserved slot back
	assert.True(t, h.scheduler.assign(context.Background(), internal))
	assert.Equal(t, model.TaskStatusFailed, internal.Status)
	assert.Equal(t, model.FailureReasonCancelled, internal.FailureReason)

	snapshot, ok := h.registry.Snapshot("a1")
	assert.True(t, ok)
	assert.Equal(t, 0, snapshot.InFlight)
}

func TestService_StaleCompletionKeepsReassignedSlot(t *testing.T) {
	config := testConfig()
	config.DefaultTimeout = 20 * time.Millisecond
	h := newHarness(t, config)
	h.register(t, "a1", model.CapabilityExtraction, 1)

	task, err := h.scheduler.Submit(context.Background(), "doc-1", model.CapabilityExtraction, model.PriorityNormal, "")
	assert.Nil(t, err)
	h.waitAssignments(t, 1)

	// Expire the first attempt, then park a1 at capacity so the retry lands
	// on a different agent
	time.Sleep(30 * time.Millisecond)
	h.scheduler.TimeoutSweep(context.Background(), time.Now())
	h.register(t, "a2", model.CapabilityExtraction, 1)
	assert.Nil(t, h.registry.Acquire("a1"))
	time.Sleep(5 * time.Millisecond)
	h.scheduler.TimeoutSweep(context.Background(), time.Now())

	assignments := h.waitAssignments(t, 2)
	assert.Equal(t, "a2", assignments[1].AgentID)

	// The late report from the first attempt wins but must not free a2's slot
	_, err = h.scheduler.HandleCompletion(context.Background(), &model.TaskCompletion{
		TaskID: task.ID, DocumentID: "doc-1", AgentID: "a1", Status: model.TaskStatusDone,
	})
	assert.Nil(t, err)
	snapshot, _ := h.registry.Snapshot("a2")
	assert.Equal(t, 1, snapshot.InFlight)

	// a2's own report arrives afterwards and frees its slot exactly once
	_, err = h.scheduler.HandleCompletion(context.Background(), &model.TaskCompletion{
		TaskID: task.ID, DocumentID: "doc-1", AgentID: "a2", Status: model.TaskStatusDone,
	})
	assert.ErrorIs(t, err, ErrDuplicateCompletion)
	snapshot, _ = h.registry.Snapshot("a2")
	assert.Equal(t, 0, snapshot.InFlight)

	_, err = h.scheduler.HandleCompletion(context.Background(), &model.TaskCompletion{
		TaskID: task.ID, DocumentID: "doc-1", AgentID: "a2", Status: model.TaskStatusDone,
	})
	assert.ErrorIs(t, err, ErrDuplicateCompletion)
	snapshot, _ = h.registry.Snapshot("a2")
	assert.Equal(t, 0, snapshot.InFlight)
}
