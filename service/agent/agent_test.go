package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/registry"
)

func TestRunner_ProcessesAssignment(t *testing.T) {
	messageBus := bus.New(bus.DefaultConfig())
	defer messageBus.Shutdown()
	reg := registry.New(registry.DefaultConfig())

	impl := CapabilityFunc(func(ctx context.Context, documentID, payloadRef string) (*Result, error) {
		return &Result{
			Status: model.TaskStatusDone,
			Findings: []*model.Finding{
				{Severity: model.SeverityLow, Category: "minor-format"},
			},
		}, nil
	})
	runner := NewRunner(DefaultConfig(), "extractor-1", model.CapabilityExtraction, impl, 2, messageBus, reg)
	assert.Nil(t, runner.Start(context.Background()))
	defer runner.Shutdown()

	snapshot, ok := reg.Snapshot("extractor-1")
	assert.True(t, ok)
	assert.Equal(t, model.CapabilityExtraction, snapshot.Capability)

	started := make(chan *model.TaskCompletion, 1)
	completed := make(chan *model.TaskCompletion, 1)
	messageBus.Subscribe(model.TopicTaskStarted, func(ctx context.Context, message *model.Message) error {
		completion, err := bus.PayloadAs[model.TaskCompletion](message)
		if err != nil {
			return err
		}
		started <- completion
		return nil
	})
	messageBus.Subscribe(model.TopicTaskCompleted, func(ctx context.Context, message *model.Message) error {
		completion, err := bus.PayloadAs[model.TaskCompletion](message)
		if err != nil {
			return err
		}
		completed <- completion
		return nil
	})

	_, err := messageBus.Publish(context.Background(), &model.Message{
		Type:          model.MessageTypeTaskAssigned,
		CorrelationID: "doc-1",
		Topic:         model.AgentTopic("extractor-1"),
		Payload: &model.TaskAssignment{
			TaskID:     "t-1",
			DocumentID: "doc-1",
			Capability: model.CapabilityExtraction,
			AgentID:    "extractor-1",
		},
	})
	assert.Nil(t, err)

	select {
	case completion := <-started:
		assert.Equal(t, model.TaskStatusRunning, completion.Status)
	case <-time.After(2 * time.Second):
		t.Fatalf("start was not announced")
	}
	select {
	case completion := <-completed:
		assert.Equal(t, "t-1", completion.TaskID)
		assert.Equal(t, model.TaskStatusDone, completion.Status)
		assert.Equal(t, 1, len(completion.Findings))
		// The runner stamps document and capability onto findings
		assert.Equal(t, "doc-1", completion.Findings[0].DocumentID)
		assert.Equal(t, model.CapabilityExtraction, completion.Findings[0].Capability)
	case <-time.After(2 * time.Second):
		t.Fatalf("completion was not reported")
	}
}

func TestRunner_ReportsFailure(t *testing.T) {
	messageBus := bus.New(bus.DefaultConfig())
	defer messageBus.Shutdown()
	reg := registry.New(registry.DefaultConfig())

	impl := CapabilityFunc(func(ctx context.Context, documentID, payloadRef string) (*Result, error) {
		return nil, fmt.Errorf("malformed document")
	})
	runner := NewRunner(DefaultConfig(), "extractor-1", model.CapabilityExtraction, impl, 1, messageBus, reg)
	assert.Nil(t, runner.Start(context.Background()))
	defer runner.Shutdown()

	completed := make(chan *model.TaskCompletion, 1)
	messageBus.Subscribe(model.TopicTaskCompleted, func(ctx context.Context, message *model.Message) error {
		completion, err := bus.PayloadAs[model.TaskCompletion](message)
		if err != nil {
			return err
		}
		completed <- completion
		return nil
	})

	_, err := messageBus.Publish(context.Background(), &model.Message{
		Type:          model.MessageTypeTaskAssigned,
		CorrelationID: "doc-1",
		Topic:         model.AgentTopic("extractor-1"),
		Payload:       &model.TaskAssignment{TaskID: "t-1", DocumentID: "doc-1", Capability: model.CapabilityExtraction},
	})
	assert.Nil(t, err)

	select {
	case completion := <-completed:
		assert.Equal(t, model.TaskStatusFailed, completion.Status)
		assert.Equal(t, "malformed document", completion.Error)
	case <-time.After(2 * time.Second):
		t.Fatalf("failure was not reported")
	}
}
