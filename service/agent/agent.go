// Package agent runs capability implementations against the message bus. A
// Runner subscribes to its agent's assignment topic, bounds concurrency with
// the registered capacity and reports outcomes back to the scheduler.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/registry"
)

// Result is what a capability produces for one task.
type Result struct {
	Findings []*model.Finding
	Status   model.TaskStatus
}

// Capability processes one document and returns its findings. The payload
// reference locates the document content; implementations resolve it
// themselves.
type Capability interface {
	Process(ctx context.Context, documentID, payloadRef string) (*Result, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, documentID, payloadRef string) (*Result, error)

// Process implements Capability.
func (f CapabilityFunc) Process(ctx context.Context, documentID, payloadRef string) (*Result, error) {
	return f(ctx, documentID, payloadRef)
}

// Config holds runner tunables.
type Config struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval,omitempty"`
}

// DefaultConfig returns runner defaults.
func DefaultConfig() Config {
	return Config{HeartbeatInterval: 3 * time.Second}
}

// Runner binds one capability implementation to one registered agent
// identity.
type Runner struct {
	config     Config
	agentID    string
	capability model.Capability
	impl       Capability
	capacity   int64
	bus        *bus.Service
	registry   *registry.Service
	sem        *semaphore.Weighted

	subscription *bus.Subscription
	stopOnce     sync.Once
	stopCh       chan struct{}
}

// NewRunner creates a runner for the given agent identity. The capacity caps
// the number of tasks processed concurrently.
func NewRunner(config Config, agentID string, capability model.Capability, impl Capability, capacity int, messageBus *bus.Service, reg *registry.Service) *Runner {
	if config.HeartbeatInterval == 0 {
		config = DefaultConfig()
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Runner{
		config:     config,
		agentID:    agentID,
		capability: capability,
		impl:       impl,
		capacity:   int64(capacity),
		bus:        messageBus,
		registry:   reg,
		sem:        semaphore.NewWeighted(int64(capacity)),
		stopCh:     make(chan struct{}),
	}
}

// AgentID returns the runner's agent identity.
func (r *Runner) AgentID() string {
	return r.agentID
}

// Start registers the agent, subscribes to its assignment topic and begins
// heartbeating until the context is cancelled or Shutdown is called.
func (r *Runner) Start(ctx context.Context) error {
	descriptor := registry.Descriptor{
		ID:         r.agentID,
		Capability: r.capability,
		Capacity:   int(r.capacity),
	}
	if err := r.registry.Register(descriptor); err != nil {
		return fmt.Errorf("failed to register agent %v: %w", r.agentID, err)
	}
	r.subscription = r.bus.Subscribe(model.AgentTopic(r.agentID), r.handleAssignment)
	go r.heartbeatLoop(ctx)
	return nil
}

// Shutdown stops heartbeating and detaches from the bus. In-flight tasks run
// to completion.
func (r *Runner) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.subscription != nil {
			r.subscription.Close()
		}
	})
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.registry.Heartbeat(r.agentID)
			inFlight := 0
			if snapshot, ok := r.registry.Snapshot(r.agentID); ok {
				inFlight = snapshot.InFlight
			}
			beat := &model.Message{
				Type:          model.MessageTypeHeartbeat,
				CorrelationID: r.agentID,
				Sender:        r.agentID,
				Topic:         model.TopicHeartbeat,
				Priority:      model.PriorityLow,
				Payload: &model.Heartbeat{
					AgentID:    r.agentID,
					Capability: r.capability,
					InFlight:   inFlight,
					SentAt:     clock.Now(),
				},
			}
			if _, err := r.bus.Publish(ctx, beat); err != nil {
				log.Printf("agent %v: heartbeat publish failed: %v", r.agentID, err)
			}
		}
	}
}

// handleAssignment executes one assigned task end to end: it announces the
// start, invokes the capability and reports the completion.
func (r *Runner) handleAssignment(ctx context.Context, message *model.Message) error {
	assignment, err := bus.PayloadAs[model.TaskAssignment](message)
	if err != nil {
		return fmt.Errorf("agent %v: invalid assignment payload: %w", r.agentID, err)
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	started := &model.Message{
		Type:          model.MessageTypeTaskStarted,
		CorrelationID: assignment.DocumentID,
		Sender:        r.agentID,
		Topic:         model.TopicTaskStarted,
		Priority:      message.Priority,
		Payload: &model.TaskCompletion{
			TaskID:     assignment.TaskID,
			DocumentID: assignment.DocumentID,
			Capability: assignment.Capability,
			AgentID:    r.agentID,
			Status:     model.TaskStatusRunning,
		},
	}
	if _, err := r.bus.Publish(ctx, started); err != nil {
		log.Printf("agent %v: failed to announce start of task %v: %v", r.agentID, assignment.TaskID, err)
	}

	completion := &model.TaskCompletion{
		TaskID:     assignment.TaskID,
		DocumentID: assignment.DocumentID,
		Capability: assignment.Capability,
		AgentID:    r.agentID,
	}
	result, err := r.impl.Process(ctx, assignment.DocumentID, assignment.PayloadRef)
	switch {
	case err != nil:
		completion.Status = model.TaskStatusFailed
		completion.Error = err.Error()
	case result != nil:
		completion.Status = result.Status
		completion.Findings = result.Findings
		if completion.Status == "" {
			completion.Status = model.TaskStatusDone
		}
	default:
		completion.Status = model.TaskStatusDone
	}
	for _, finding := range completion.Findings {
		if finding.DocumentID == "" {
			finding.DocumentID = assignment.DocumentID
		}
		if finding.Capability == "" {
			finding.Capability = assignment.Capability
		}
	}
	outcome := &model.Message{
		Type:          model.MessageTypeTaskCompleted,
		CorrelationID: assignment.DocumentID,
		Sender:        r.agentID,
		Topic:         model.TopicTaskCompleted,
		Priority:      message.Priority,
		Payload:       completion,
	}
	if _, err := r.bus.Publish(ctx, outcome); err != nil {
		return fmt.Errorf("agent %v: failed to report completion of task %v: %w", r.agentID, assignment.TaskID, err)
	}
	return nil
}
