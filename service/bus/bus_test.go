package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
)

func testConfig() Config {
	config := DefaultConfig()
	config.DeliveryTimeout = time.Second
	config.MaxRetries = 2
	config.RetryBaseDelay = time.Millisecond
	config.RetryMaxDelay = 5 * time.Millisecond
	config.RetryJitter = 0
	return config
}

func publish(t *testing.T, service *Service, topic, correlationID string, priority model.Priority, payload interface{}) *model.Message {
	t.Helper()
	message := &model.Message{
		Type:          model.MessageTypeTaskCompleted,
		CorrelationID: correlationID,
		Topic:         topic,
		Priority:      priority,
		Payload:       payload,
	}
	_, err := service.Publish(context.Background(), message)
	assert.Nil(t, err)
	return message
}

func TestService_PerCorrelationOrder(t *testing.T) {
	service := New(testConfig())
	defer service.Shutdown()

	var mu sync.Mutex
	received := map[string][]int{}
	done := make(chan struct{}, 20)
	service.Subscribe("t1", func(ctx context.Context, message *model.Message) error {
		mu.Lock()
		received[message.CorrelationID] = append(received[message.CorrelationID], message.Payload.(int))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	// Interleave two correlations with mixed priorities; order within each
	// correlation must follow publish order regardless of priority.
	for i := 0; i < 10; i++ {
		priority := model.PriorityLow
		if i%3 == 0 {
			priority = model.PriorityCritical
		}
		publish(t, service, "t1", "doc-a", priority, i)
		publish(t, service, "t1", "doc-b", priority, i)
	}
	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for deliveries")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, received["doc-a"])
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, received["doc-b"])
}

func TestService_RetryThenDeliver(t *testing.T) {
	service := New(testConfig())
	defer service.Shutdown()

	var attempts int
	done := make(chan struct{})
	var mu sync.Mutex
	service.Subscribe("t1", func(ctx context.Context, message *model.Message) error {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current < 3 {
			return fmt.Errorf("transient failure %d", current)
		}
		close(done)
		return nil
	})
	publish(t, service, "t1", "doc-1", model.PriorityNormal, "payload")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not redelivered")
	}
	stats := service.Stats()
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 2, stats.Retried)
	assert.Equal(t, 0, stats.DeadLettered)
}

func TestService_DeadLetter(t *testing.T) {
	var hooked []*model.Message
	var mu sync.Mutex
	service := New(testConfig(), WithDeadLetterHook(func(message *model.Message) {
		mu.Lock()
		hooked = append(hooked, message)
		mu.Unlock()
	}))
	defer service.Shutdown()

	failed := make(chan *model.Message, 1)
	service.Subscribe("t1", func(ctx context.Context, message *model.Message) error {
		return fmt.Errorf("permanent failure")
	})
	service.Subscribe(model.TopicDeliveryFailed, func(ctx context.Context, message *model.Message) error {
		failed <- message
		return nil
	})
	original := publish(t, service, "t1", "doc-1", model.PriorityNormal, "payload")

	select {
	case notice := <-failed:
		assert.Equal(t, model.MessageTypeDeliveryFailed, notice.Type)
		assert.Equal(t, original.CorrelationID, notice.CorrelationID)
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery.failed was not published")
	}
	dead := service.DeadLetters()
	assert.Equal(t, 1, len(dead))
	assert.Equal(t, original.ID, dead[0].ID)
	mu.Lock()
	assert.Equal(t, 1, len(hooked))
	mu.Unlock()
}

func TestService_TTLExpiry(t *testing.T) {
	service := New(testConfig())
	defer service.Shutdown()

	delivered := make(chan struct{}, 1)
	sub := service.Subscribe("t1", func(ctx context.Context, message *model.Message) error {
		delivered <- struct{}{}
		return nil
	})
	_ = sub

	message := &model.Message{
		Type:          model.MessageTypeTaskCompleted,
		CorrelationID: "doc-1",
		Topic:         "t1",
		Timestamp:     time.Now().Add(-time.Minute),
		TTL:           time.Second,
	}
	_, err := service.Publish(context.Background(), message)
	assert.Nil(t, err)

	select {
	case <-delivered:
		t.Fatalf("expired message was delivered")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, service.Stats().Expired)
}

func TestService_SubscriptionClose(t *testing.T) {
	service := New(testConfig())
	defer service.Shutdown()

	delivered := make(chan struct{}, 1)
	sub := service.Subscribe("t1", func(ctx context.Context, message *model.Message) error {
		delivered <- struct{}{}
		return nil
	})
	sub.Close()

	receipt, err := service.Publish(context.Background(), &model.Message{Topic: "t1", CorrelationID: "doc-1"})
	assert.Nil(t, err)
	assert.Equal(t, 0, receipt.Subscribers)
	select {
	case <-delivered:
		t.Fatalf("closed subscription received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_History(t *testing.T) {
	service := New(testConfig())
	defer service.Shutdown()

	publish(t, service, "t1", "doc-a", model.PriorityNormal, 1)
	publish(t, service, "t1", "doc-b", model.PriorityNormal, 2)
	publish(t, service, "t1", "doc-a", model.PriorityNormal, 3)

	history := service.History("doc-a")
	assert.Equal(t, 2, len(history))
	assert.Equal(t, 1, history[0].Payload)
	assert.Equal(t, 3, history[1].Payload)
	assert.Equal(t, 3, len(service.History("")))
}

func TestPayloadAs(t *testing.T) {
	completion := &model.TaskCompletion{TaskID: "t-1", DocumentID: "doc-1"}
	message := &model.Message{Payload: completion}

	decoded, err := PayloadAs[model.TaskCompletion](message)
	assert.Nil(t, err)
	assert.Equal(t, completion, decoded)

	// Map payloads (e.g. after a JSON round trip) convert too
	message = &model.Message{Payload: map[string]interface{}{"taskId": "t-2", "documentId": "doc-2"}}
	decoded, err = PayloadAs[model.TaskCompletion](message)
	assert.Nil(t, err)
	assert.Equal(t, "t-2", decoded.TaskID)
	assert.Equal(t, "doc-2", decoded.DocumentID)
}
