// Package scheduler assigns tasks to registered agents and supervises their
// lifecycle: retries with exponential backoff, deadline enforcement and
// capability exclusivity per document.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/internal/idgen"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/registry"
	"github.com/viant/docuflow/tracing"
)

// Config holds scheduler tunables.
type Config struct {
	DefaultTimeout time.Duration `yaml:"defaultTimeout,omitempty"`
	SweepInterval  time.Duration `yaml:"sweepInterval,omitempty"`
	MaxRetries     int           `yaml:"maxRetries,omitempty"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay,omitempty"`
	RetryFactor    float64       `yaml:"retryFactor,omitempty"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay,omitempty"`
}

// DefaultConfig returns scheduler defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		SweepInterval:  200 * time.Millisecond,
		MaxRetries:     2,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryFactor:    2,
		RetryMaxDelay:  2 * time.Second,
	}
}

var (
	// ErrDuplicateTask indicates a non-terminal task already exists for the
	// same document and capability pair.
	ErrDuplicateTask = fmt.Errorf("duplicate task for document capability")
	// ErrUnknownTask indicates the completion refers to no known task.
	ErrUnknownTask = fmt.Errorf("unknown task")
	// ErrDuplicateCompletion indicates the task already reached a terminal
	// status.
	ErrDuplicateCompletion = fmt.Errorf("task already completed")
)

// Service schedules tasks over the agent registry and reports outcomes on the
// message bus.
type Service struct {
	config   Config
	registry *registry.Service
	bus      *bus.Service

	mu          sync.Mutex
	tasks       map[string]*model.Task
	activeByDoc map[string]map[model.Capability]string
	pending     []string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a scheduler backed by the supplied registry and bus.
func New(config Config, reg *registry.Service, messageBus *bus.Service) *Service {
	if config.DefaultTimeout == 0 {
		config = DefaultConfig()
	}
	return &Service{
		config:      config,
		registry:    reg,
		bus:         messageBus,
		tasks:       make(map[string]*model.Task),
		activeByDoc: make(map[string]map[model.Capability]string),
		stopCh:      make(chan struct{}),
	}
}

// Submit accepts a new task for the given document and capability. At most
// one non-terminal task may exist per (document, capability) pair.
func (s *Service) Submit(ctx context.Context, documentID string, capability model.Capability, priority model.Priority, payloadRef string) (*model.Task, error) {
	s.mu.Lock()
	if active, ok := s.activeByDoc[documentID]; ok {
		if _, busy := active[capability]; busy {
			s.mu.Unlock()
			return nil, ErrDuplicateTask
		}
	}
	now := clock.Now()
	task := &model.Task{
		ID:         idgen.New(),
		DocumentID: documentID,
		Capability: capability,
		Priority:   priority,
		Status:     model.TaskStatusPending,
		PayloadRef: payloadRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tasks[task.ID] = task
	if s.activeByDoc[documentID] == nil {
		s.activeByDoc[documentID] = make(map[model.Capability]string)
	}
	s.activeByDoc[documentID][capability] = task.ID
	s.pending = append(s.pending, task.ID)
	s.mu.Unlock()

	s.dispatch(ctx)
	return task.Clone(), nil
}

// Task returns a copy of the task with the given id.
func (s *Service) Task(taskID string) (*model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// dispatch tries to assign every pending task whose retry delay has elapsed.
func (s *Service) dispatch(ctx context.Context) {
	now := clock.Now()
	s.mu.Lock()
	candidates := make([]*model.Task, 0, len(s.pending))
	remaining := s.pending[:0]
	for _, id := range s.pending {
		task, ok := s.tasks[id]
		if !ok || task.Status != model.TaskStatusPending {
			continue
		}
		if task.RunAfter != nil && task.RunAfter.After(now) {
			remaining = append(remaining, id)
			continue
		}
		candidates = append(candidates, task)
	}
	s.pending = remaining
	s.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	for _, task := range candidates {
		if !s.assign(ctx, task) {
			s.mu.Lock()
			s.pending = append(s.pending, task.ID)
			s.mu.Unlock()
		}
	}
}

// assign picks the least loaded healthy agent for the task's capability.
// Ties break on the earliest last assignment so load spreads round-robin.
func (s *Service) assign(ctx context.Context, task *model.Task) bool {
	agents := s.registry.Candidates(task.Capability)
	if len(agents) == 0 {
		return false
	}
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].InFlight != agents[j].InFlight {
			return agents[i].InFlight < agents[j].InFlight
		}
		return agents[i].LastAssignment.Before(agents[j].LastAssignment)
	})
	chosen := agents[0]
	if err := s.registry.Acquire(chosen.ID); err != nil {
		return false
	}
	now := clock.Now()

	s.mu.Lock()
	if task.Status != model.TaskStatusPending {
		// Cancelled between dispatch and assignment.
		s.mu.Unlock()
		s.registry.Release(chosen.ID)
		return true
	}
	task.Status = model.TaskStatusAssigned
	task.AgentID = chosen.ID
	task.Attempts++
	task.RunAfter = nil
	task.UpdatedAt = now
	task.Deadline = now.Add(s.config.DefaultTimeout)
	assignment := &model.TaskAssignment{
		TaskID:     task.ID,
		DocumentID: task.DocumentID,
		Capability: task.Capability,
		AgentID:    chosen.ID,
		Attempt:    task.Attempts,
		Deadline:   task.Deadline,
		PayloadRef: task.PayloadRef,
	}
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "scheduler.assign", "PRODUCER")
	message := &model.Message{
		Type:          model.MessageTypeTaskAssigned,
		CorrelationID: task.DocumentID,
		Sender:        "scheduler",
		Topic:         model.AgentTopic(chosen.ID),
		Priority:      task.Priority,
		Payload:       assignment,
	}
	_, err := s.bus.Publish(ctx, message)
	span.WithAttributes(map[string]string{
		"task.id":    task.ID,
		"agent.id":   chosen.ID,
		"capability": string(task.Capability),
	})
	tracing.EndSpan(span, err)
	if err != nil {
		s.registry.Release(chosen.ID)
		s.mu.Lock()
		task.Status = model.TaskStatusPending
		task.AgentID = ""
		s.mu.Unlock()
		return false
	}
	notice := &model.Message{
		Type:          model.MessageTypeTaskAssigned,
		CorrelationID: task.DocumentID,
		Sender:        "scheduler",
		Topic:         model.TopicTaskAssigned,
		Priority:      task.Priority,
		Payload:       assignment,
	}
	if _, err := s.bus.Publish(ctx, notice); err != nil {
		log.Printf("scheduler: failed to publish assignment notice for task %v: %v", task.ID, err)
	}
	return true
}

// MarkRunning transitions an assigned task to running.
func (s *Service) MarkRunning(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return ErrUnknownTask
	}
	if task.Status.IsTerminal() {
		return ErrDuplicateCompletion
	}
	task.Status = model.TaskStatusRunning
	task.UpdatedAt = clock.Now()
	return nil
}

// HandleCompletion records a terminal outcome reported by an agent, releases
// the agent's capacity slot and frees the capability for the document.
func (s *Service) HandleCompletion(ctx context.Context, completion *model.TaskCompletion) (*model.Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[completion.TaskID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownTask
	}
	if task.Status.IsTerminal() {
		// A straggling report from the agent still bound to the task frees
		// its slot exactly once.
		var agentID string
		if task.AgentID != "" && task.AgentID == completion.AgentID {
			agentID = task.AgentID
			task.AgentID = ""
		}
		s.mu.Unlock()
		if agentID != "" {
			s.registry.Release(agentID)
			s.dispatch(ctx)
		}
		return nil, ErrDuplicateCompletion
	}
	status := completion.Status
	if status == "" {
		status = model.TaskStatusDone
	}
	task.Status = status
	task.UpdatedAt = clock.Now()
	agentID := task.AgentID
	if completion.AgentID != "" && completion.AgentID != agentID {
		// A late report from a previous attempt; the reassigned agent keeps
		// its slot until its own report arrives.
		agentID = ""
	} else {
		task.AgentID = ""
	}
	s.clearActiveLocked(task)
	snapshot := task.Clone()
	s.mu.Unlock()

	if agentID != "" {
		s.registry.Release(agentID)
	}
	s.dispatch(ctx)
	return snapshot, nil
}

// TimeoutSweep fails every assigned or running task whose deadline elapsed.
// Tasks with attempts left are requeued with exponential backoff, the rest
// are reported as unrecoverable on the bus.
func (s *Service) TimeoutSweep(ctx context.Context, now time.Time) {
	type expired struct {
		task    *model.Task
		agentID string
		final   bool
	}
	var hits []expired
	s.mu.Lock()
	for _, task := range s.tasks {
		if task.Status != model.TaskStatusAssigned && task.Status != model.TaskStatusRunning {
			continue
		}
		if task.Deadline.IsZero() || task.Deadline.After(now) {
			continue
		}
		agentID := task.AgentID
		task.AgentID = ""
		if task.Attempts > s.config.MaxRetries {
			task.Status = model.TaskStatusTimedOut
			task.FailureReason = model.FailureReasonTimeout
			task.UpdatedAt = now
			s.clearActiveLocked(task)
			hits = append(hits, expired{task: task.Clone(), agentID: agentID, final: true})
			continue
		}
		task.Status = model.TaskStatusPending
		task.UpdatedAt = now
		runAfter := now.Add(s.backoff(task.Attempts))
		task.RunAfter = &runAfter
		s.pending = append(s.pending, task.ID)
		hits = append(hits, expired{task: task.Clone(), agentID: agentID})
	}
	s.mu.Unlock()

	for _, hit := range hits {
		if hit.agentID != "" {
			s.registry.Release(hit.agentID)
		}
		if !hit.final {
			continue
		}
		failure := &model.TaskFailure{
			TaskID:     hit.task.ID,
			DocumentID: hit.task.DocumentID,
			Capability: hit.task.Capability,
			Reason:     model.FailureReasonTimeout,
			Attempts:   hit.task.Attempts,
		}
		message := &model.Message{
			Type:          model.MessageTypeTaskUnrecoverable,
			CorrelationID: hit.task.DocumentID,
			Sender:        "scheduler",
			Topic:         model.TopicTaskUnrecoverable,
			Priority:      model.PriorityHigh,
			Payload:       failure,
		}
		if _, err := s.bus.Publish(ctx, message); err != nil {
			log.Printf("scheduler: failed to publish unrecoverable failure for task %v: %v", hit.task.ID, err)
		}
	}
	s.dispatch(ctx)
}

func (s *Service) backoff(attempt int) time.Duration {
	delay := s.config.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * s.config.RetryFactor)
		if delay >= s.config.RetryMaxDelay {
			return s.config.RetryMaxDelay
		}
	}
	if delay > s.config.RetryMaxDelay {
		delay = s.config.RetryMaxDelay
	}
	return delay
}

// CancelDocument marks every non-terminal task of the document as failed with
// a cancelled reason and reclaims agent capacity. It returns the cancelled
// task ids.
func (s *Service) CancelDocument(documentID string) []string {
	now := clock.Now()
	var cancelled []string
	var agents []string
	s.mu.Lock()
	for _, task := range s.tasks {
		if task.DocumentID != documentID || task.Status.IsTerminal() {
			continue
		}
		task.Status = model.TaskStatusFailed
		task.FailureReason = model.FailureReasonCancelled
		task.UpdatedAt = now
		if task.AgentID != "" {
			agents = append(agents, task.AgentID)
			task.AgentID = ""
		}
		cancelled = append(cancelled, task.ID)
	}
	delete(s.activeByDoc, documentID)
	s.mu.Unlock()
	for _, agentID := range agents {
		s.registry.Release(agentID)
	}
	return cancelled
}

// Archive drops terminal tasks of the document from the working set.
func (s *Service) Archive(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, task := range s.tasks {
		if task.DocumentID == documentID && task.Status.IsTerminal() {
			delete(s.tasks, id)
		}
	}
	if active, ok := s.activeByDoc[documentID]; ok && len(active) == 0 {
		delete(s.activeByDoc, documentID)
	}
}

func (s *Service) clearActiveLocked(task *model.Task) {
	if active, ok := s.activeByDoc[task.DocumentID]; ok {
		if active[task.Capability] == task.ID {
			delete(active, task.Capability)
		}
		if len(active) == 0 {
			delete(s.activeByDoc, task.DocumentID)
		}
	}
}

// Start runs the periodic deadline sweep until the context is cancelled or
// Shutdown is called.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.TimeoutSweep(ctx, clock.Now())
		}
	}
}

// Shutdown stops the sweep loop.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
