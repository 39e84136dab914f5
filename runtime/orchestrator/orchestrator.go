package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/policy"
	"github.com/viant/docuflow/progress"
	"github.com/viant/docuflow/runtime/workflow"
	"github.com/viant/docuflow/service/aggregator"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/dao"
	"github.com/viant/docuflow/service/dao/memory"
	"github.com/viant/docuflow/service/scheduler"
	"github.com/viant/docuflow/tracing"
)

// Config holds orchestrator tunables.
type Config struct {
	// WorkflowTimeout bounds an entire workflow; on expiry the document is
	// forced to human review with whatever evidence exists.
	WorkflowTimeout time.Duration  `yaml:"workflowTimeout,omitempty"`
	SweepInterval   time.Duration  `yaml:"sweepInterval,omitempty"`
	DefaultPriority model.Priority `yaml:"defaultPriority,omitempty"`
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		WorkflowTimeout: 2 * time.Minute,
		SweepInterval:   500 * time.Millisecond,
		DefaultPriority: model.PriorityNormal,
	}
}

// Classifier maps an ingested document to the capability set its workflow
// requires.
type Classifier interface {
	Classify(ctx context.Context, document *model.Document) ([]model.Capability, error)
}

// TableClassifier resolves capabilities from a static document-type table.
type TableClassifier struct {
	table map[model.DocumentType][]model.Capability
}

// NewClassifier returns the stock document-type routing table.
func NewClassifier() *TableClassifier {
	return &TableClassifier{
		table: map[model.DocumentType][]model.Capability{
			model.DocumentTypeInvoice:    {model.CapabilityExtraction, model.CapabilityMasterData, model.CapabilityContractMatch},
			model.DocumentTypeContract:   {model.CapabilityExtraction, model.CapabilityMasterData},
			model.DocumentTypeMSA:        {model.CapabilityExtraction, model.CapabilityMSAReview},
			model.DocumentTypeLease:      {model.CapabilityExtraction, model.CapabilityLeaseReview},
			model.DocumentTypeFixedAsset: {model.CapabilityExtraction, model.CapabilityFixedAssets},
		},
	}
}

// Classify implements Classifier.
func (c *TableClassifier) Classify(_ context.Context, document *model.Document) ([]model.Capability, error) {
	capabilities, ok := c.table[document.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported document type: %v", document.Type)
	}
	return capabilities, nil
}

// Archive persists terminal workflow snapshots.
type Archive interface {
	SaveWorkflow(ctx context.Context, snapshot *workflow.Snapshot) error
	LoadWorkflow(ctx context.Context, documentID string) (*workflow.Snapshot, error)
}

var (
	// ErrWorkflowExists indicates a non-terminal workflow is already open for
	// the document.
	ErrWorkflowExists = errors.New("orchestrator: workflow already open for document")
	// ErrUnknownWorkflow indicates no workflow, active or archived, matches
	// the id.
	ErrUnknownWorkflow = errors.New("orchestrator: unknown workflow")
	// ErrNotReviewable indicates feedback arrived for a workflow that is not
	// awaiting human review.
	ErrNotReviewable = errors.New("orchestrator: workflow is not awaiting review")
	// ErrNotAdmitted indicates the admission policy refused the document.
	ErrNotAdmitted = errors.New("orchestrator: document not admitted by policy")
)

// Service drives document workflows end to end: it classifies ingested
// documents, fans tasks out through the scheduler, joins their results at the
// fan-in barrier and applies the quality verdict. All state changes for one
// document are serialized on a per-document lock.
type Service struct {
	config     Config
	bus        *bus.Service
	machine    *workflow.Machine
	scheduler  *scheduler.Service
	aggregator *aggregator.Service
	classifier Classifier
	archive    Archive
	documents  dao.Service[string, model.Document]

	mu       sync.RWMutex
	states   map[string]*workflow.State
	trackers map[string]*progress.Progress
	locks    sync.Map

	subscriptions []*bus.Subscription
	stopOnce      sync.Once
	stopCh        chan struct{}
}

// New creates an orchestrator over the supplied collaborators. The archive
// may be nil, in which case terminal snapshots are only kept in memory.
func New(config Config, messageBus *bus.Service, taskScheduler *scheduler.Service, agg *aggregator.Service, classifier Classifier, archive Archive) *Service {
	if config.WorkflowTimeout == 0 {
		config = DefaultConfig()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Service{
		config:     config,
		bus:        messageBus,
		machine:    workflow.NewMachine(),
		scheduler:  taskScheduler,
		aggregator: agg,
		classifier: classifier,
		archive:    archive,
		documents: memory.New(
			func(document *model.Document) string { return document.ID },
			memory.WithAttribute[string, model.Document](func(document *model.Document, name string) (string, bool) {
				if name == "Type" {
					return string(document.Type), true
				}
				return "", false
			}),
		),
		states:   make(map[string]*workflow.State),
		trackers: make(map[string]*progress.Progress),
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to the workflow topics and runs the timeout sweep until
// the context is cancelled or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.subscriptions = []*bus.Subscription{
		s.bus.Subscribe(model.TopicTaskStarted, s.handleTaskStarted),
		s.bus.Subscribe(model.TopicTaskCompleted, s.handleTaskCompleted),
		s.bus.Subscribe(model.TopicTaskUnrecoverable, s.handleTaskUnrecoverable),
		s.bus.Subscribe(model.TopicAnomalyRaised, s.handleAnomaly),
		s.bus.Subscribe(model.TopicWorkflowControl, s.handleControl),
	}
	go s.sweepLoop(ctx)
	return nil
}

// Shutdown detaches from the bus and stops the sweep loop.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		for _, subscription := range s.subscriptions {
			subscription.Close()
		}
	})
}

func (s *Service) sweepLoop(ctx context.Context) {
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

// docLock returns the mutex serializing all workflow changes for a document.
func (s *Service) docLock(documentID string) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(documentID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// tracker returns the document's progress tracker; a nil result is a safe
// no-op target.
func (s *Service) tracker(documentID string) *progress.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trackers[documentID]
}

func (s *Service) state(documentID string) (*workflow.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[documentID]
	return state, ok
}

// Ingest opens a workflow for the document, classifies it and fans out one
// task per required capability. The returned workflow id equals the document
// id; at most one non-terminal workflow exists per document.
func (s *Service) Ingest(ctx context.Context, document *model.Document) (string, error) {
	if document == nil || document.ID == "" {
		return "", fmt.Errorf("orchestrator: document was empty")
	}
	ctx, span := tracing.StartSpan(ctx, "orchestrator.ingest", "")
	span.WithAttributes(map[string]string{
		"document.id":   document.ID,
		"document.type": string(document.Type),
	})
	workflowID, err := s.ingest(ctx, document)
	tracing.EndSpan(span, err)
	return workflowID, err
}

func (s *Service) ingest(ctx context.Context, document *model.Document) (string, error) {
	if !policy.FromContext(ctx).Admit(ctx, document) {
		return "", fmt.Errorf("%w: %s (%s)", ErrNotAdmitted, document.ID, document.Type)
	}
	lock := s.docLock(document.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	if existing, ok := s.states[document.ID]; ok && !existing.IsTerminal() {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrWorkflowExists, document.ID)
	}
	now := clock.Now()
	if document.ReceivedAt.IsZero() {
		document.ReceivedAt = now
	}
	state := workflow.NewState(document, now)
	s.states[document.ID] = state
	if tracker, ok := progress.FromContext(ctx); ok {
		s.trackers[document.ID] = tracker
	}
	s.mu.Unlock()
	if err := s.documents.Save(ctx, document); err != nil {
		return "", err
	}

	if err := s.machine.Apply(state, workflow.StageIngested, "", "ingested"); err != nil {
		return "", err
	}
	if err := s.machine.Apply(state, workflow.StageClassifying, "", "classifying"); err != nil {
		return "", err
	}
	required, err := s.classifier.Classify(ctx, document)
	if err != nil {
		s.reject(ctx, state, "", "classification failed: "+err.Error())
		return "", err
	}
	state.SetTasks(required)
	s.tracker(document.ID).Update(progress.Delta{Total: len(required), Pending: len(required)})
	for _, capability := range required {
		if _, err := s.scheduler.Submit(ctx, document.ID, capability, s.config.DefaultPriority, document.PayloadRef); err != nil {
			s.reject(ctx, state, "", "task submission failed: "+err.Error())
			return "", err
		}
	}
	if err := s.machine.Apply(state, workflow.StageTaskAssigned, "", "tasks submitted"); err != nil {
		return "", err
	}
	return document.ID, nil
}

// handleTaskStarted moves the workflow into Processing on the first start
// announcement; later ones for the same document are no-ops.
func (s *Service) handleTaskStarted(_ context.Context, message *model.Message) error {
	completion, err := bus.PayloadAs[model.TaskCompletion](message)
	if err != nil {
		return err
	}
	if err := s.scheduler.MarkRunning(completion.TaskID); err != nil {
		if !errors.Is(err, scheduler.ErrUnknownTask) && !errors.Is(err, scheduler.ErrDuplicateCompletion) {
			return err
		}
	}
	lock := s.docLock(completion.DocumentID)
	lock.Lock()
	defer lock.Unlock()
	state, ok := s.state(completion.DocumentID)
	if !ok {
		return nil
	}
	if !state.Observe(message.ID) {
		return nil
	}
	s.tracker(completion.DocumentID).Update(progress.Delta{Running: 1, Pending: -1})
	if state.CurrentStage() != workflow.StageTaskAssigned {
		return nil
	}
	s.apply(state, workflow.StageProcessing, "", "first task started")
	return nil
}

// handleTaskCompleted joins one capability's result into the workflow and
// advances past the fan-in barrier once every required capability reported.
func (s *Service) handleTaskCompleted(ctx context.Context, message *model.Message) error {
	completion, err := bus.PayloadAs[model.TaskCompletion](message)
	if err != nil {
		return err
	}
	if _, err := s.scheduler.HandleCompletion(ctx, completion); err != nil {
		// Late or duplicate completions are dropped; the first report won.
		if !errors.Is(err, scheduler.ErrUnknownTask) && !errors.Is(err, scheduler.ErrDuplicateCompletion) {
			return err
		}
		return nil
	}
	s.aggregator.AddFindings(completion.Findings)

	lock := s.docLock(completion.DocumentID)
	lock.Lock()
	defer lock.Unlock()
	state, ok := s.state(completion.DocumentID)
	if !ok || state.IsTerminal() {
		return nil
	}
	status := completion.Status
	if status == "" {
		status = model.TaskStatusDone
	}
	s.tracker(completion.DocumentID).Update(progress.Delta{Completed: 1, Running: -1, Findings: len(completion.Findings)})
	if !state.RecordTask(completion.Capability, status) {
		return nil
	}
	return s.joinBarrier(ctx, state, message.ID)
}

// handleTaskUnrecoverable records a critical agent-unavailable finding for
// the failed capability and joins the barrier so the workflow still reaches
// a decision.
func (s *Service) handleTaskUnrecoverable(ctx context.Context, message *model.Message) error {
	failure, err := bus.PayloadAs[model.TaskFailure](message)
	if err != nil {
		return err
	}
	lock := s.docLock(failure.DocumentID)
	lock.Lock()
	defer lock.Unlock()
	state, ok := s.state(failure.DocumentID)
	if !ok || state.IsTerminal() {
		return nil
	}
	if !state.Observe(message.ID) {
		return nil
	}
	finding := &model.Finding{
		DocumentID:  failure.DocumentID,
		Capability:  failure.Capability,
		Severity:    model.SeverityCritical,
		Category:    model.CategoryAgentUnavailable,
		Description: fmt.Sprintf("capability %v failed after %v attempts: %v", failure.Capability, failure.Attempts, failure.Reason),
	}
	s.aggregator.AddFinding(finding)
	if _, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeAnomalyRaised,
		CorrelationID: failure.DocumentID,
		Sender:        "orchestrator",
		Topic:         model.TopicAnomalyRaised,
		Priority:      model.PriorityHigh,
		Payload:       finding,
	}); err != nil {
		log.Printf("orchestrator: failed to publish anomaly for %v: %v", failure.DocumentID, err)
	}
	s.tracker(failure.DocumentID).Update(progress.Delta{Failed: 1, Findings: 1})
	if !state.RecordTask(failure.Capability, model.TaskStatusTimedOut) {
		return nil
	}
	return s.joinBarrier(ctx, state, "")
}

// handleAnomaly accepts findings raised outside the task completion path.
func (s *Service) handleAnomaly(_ context.Context, message *model.Message) error {
	if message.Sender == "orchestrator" {
		return nil
	}
	finding, err := bus.PayloadAs[model.Finding](message)
	if err != nil {
		return err
	}
	s.aggregator.AddFinding(finding)
	return nil
}

// joinBarrier moves a workflow whose tasks all reported through cross
// validation into quality review and applies the verdict. Callers hold the
// document lock.
func (s *Service) joinBarrier(ctx context.Context, state *workflow.State, messageID string) error {
	stage := state.CurrentStage()
	if stage == workflow.StageTaskAssigned || stage == workflow.StageProcessing {
		if err := s.apply(state, workflow.StageCrossValidating, messageID, "all tasks reported"); err != nil {
			return nil
		}
	}
	if state.CurrentStage() != workflow.StageCrossValidating {
		return nil
	}
	if err := s.apply(state, workflow.StageQualityReview, "", "cross validation complete"); err != nil {
		return nil
	}
	return s.decide(ctx, state)
}

// decide computes the quality verdict and moves the workflow to its decision
// stage. Callers hold the document lock.
func (s *Service) decide(ctx context.Context, state *workflow.State) error {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.decide", "")
	verdict := s.aggregator.ComputeVerdict(state.DocumentID)
	state.Resolve(verdict, verdict.Decision, "")
	span.WithAttributes(map[string]string{
		"document.id": state.DocumentID,
		"decision":    string(verdict.Decision),
		"score":       fmt.Sprintf("%d", verdict.Score),
	})
	var err error
	switch verdict.Decision {
	case model.DecisionApproved:
		if err = s.apply(state, workflow.StageApproved, "", fmt.Sprintf("score %d", verdict.Score)); err == nil {
			err = s.finish(ctx, state)
		}
	case model.DecisionRejected:
		if err = s.apply(state, workflow.StageRejected, "", fmt.Sprintf("score %d", verdict.Score)); err == nil {
			err = s.finish(ctx, state)
		}
	default:
		if err = s.apply(state, workflow.StageHumanReview, "", fmt.Sprintf("score %d", verdict.Score)); err == nil {
			err = s.escalate(ctx, state, "quality review inconclusive")
		}
	}
	tracing.EndSpan(span, err)
	return err
}

// escalate hands the workflow to the human review channel; the workflow then
// waits for feedback.
func (s *Service) escalate(ctx context.Context, state *workflow.State, reason string) error {
	escalation := &model.Escalation{
		WorkflowID: state.DocumentID,
		Reason:     reason,
	}
	if _, _, verdict, _ := state.Outcome(); verdict != nil {
		escalation.Score = verdict.Score
		escalation.OverallSeverity = verdict.OverallSeverity
		escalation.Findings = verdict.Findings
	}
	_, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeEscalatedForReview,
		CorrelationID: state.DocumentID,
		Sender:        "orchestrator",
		Topic:         model.TopicEscalatedForReview,
		Priority:      model.PriorityHigh,
		Payload:       escalation,
	})
	return err
}

// finish publishes the outcome and learning sample, archives the workflow
// and releases its working state. Callers hold the document lock.
func (s *Service) finish(ctx context.Context, state *workflow.State) error {
	now := clock.Now()
	decision, tag, verdict, feedback := state.Outcome()
	outcome := &model.WorkflowOutcome{
		WorkflowID: state.DocumentID,
		Decision:   decision,
		Tag:        tag,
		FinishedAt: now,
	}
	sample := &model.LearningSample{
		WorkflowID: state.DocumentID,
		Decision:   decision,
		Feedback:   feedback,
	}
	if verdict != nil {
		outcome.Score = verdict.Score
		sample.Score = verdict.Score
		sample.Findings = verdict.Findings
	}
	if _, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeWorkflowCompleted,
		CorrelationID: state.DocumentID,
		Sender:        "orchestrator",
		Topic:         model.TopicWorkflowCompleted,
		Priority:      model.PriorityNormal,
		Payload:       outcome,
	}); err != nil {
		log.Printf("orchestrator: failed to publish outcome for %v: %v", state.DocumentID, err)
	}
	if _, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeLearningSample,
		CorrelationID: state.DocumentID,
		Sender:        "orchestrator",
		Topic:         model.TopicLearningSample,
		Priority:      model.PriorityLow,
		Payload:       sample,
	}); err != nil {
		log.Printf("orchestrator: failed to publish learning sample for %v: %v", state.DocumentID, err)
	}
	if err := s.apply(state, workflow.StageLearning, "", "outcome published"); err != nil {
		return nil
	}
	if err := s.apply(state, workflow.StageTerminal, "", "archived"); err != nil {
		return nil
	}
	if s.archive != nil {
		if err := s.archive.SaveWorkflow(ctx, state.Snapshot()); err != nil {
			log.Printf("orchestrator: failed to archive workflow %v: %v", state.DocumentID, err)
		}
	}
	s.scheduler.Archive(state.DocumentID)
	s.aggregator.Reset(state.DocumentID)
	s.mu.Lock()
	delete(s.trackers, state.DocumentID)
	s.mu.Unlock()
	return nil
}

// reject force-fails an open workflow. Callers hold the document lock.
func (s *Service) reject(ctx context.Context, state *workflow.State, messageID, note string) {
	if err := s.apply(state, workflow.StageRejected, messageID, note); err != nil {
		return
	}
	state.Resolve(nil, model.DecisionRejected, note)
	if err := s.finish(ctx, state); err != nil {
		log.Printf("orchestrator: failed to finish rejected workflow %v: %v", state.DocumentID, err)
	}
}

// handleControl processes cancellation and human feedback messages.
func (s *Service) handleControl(ctx context.Context, message *model.Message) error {
	switch message.Type {
	case model.MessageTypeCancelWorkflow:
		return s.handleCancel(ctx, message)
	case model.MessageTypeHumanFeedback:
		return s.handleFeedback(ctx, message)
	}
	return nil
}

func (s *Service) handleCancel(ctx context.Context, message *model.Message) error {
	documentID := message.CorrelationID
	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()
	state, ok := s.state(documentID)
	if !ok || state.IsTerminal() {
		return nil
	}
	s.scheduler.CancelDocument(documentID)
	s.reject(ctx, state, message.ID, "cancelled")
	return nil
}

func (s *Service) handleFeedback(ctx context.Context, message *model.Message) error {
	feedback, err := bus.PayloadAs[model.Feedback](message)
	if err != nil {
		return err
	}
	documentID := message.CorrelationID
	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()
	state, ok := s.state(documentID)
	if !ok || state.IsTerminal() {
		return nil
	}
	if state.CurrentStage() != workflow.StageHumanReview {
		log.Printf("orchestrator: feedback for %v ignored, workflow is not awaiting review", documentID)
		return nil
	}
	if feedback.SubmittedAt.IsZero() {
		feedback.SubmittedAt = clock.Now()
	}
	state.ResolveFeedback(feedback, "reviewed")
	return s.finish(ctx, state)
}

// Cancel requests cancellation of an open workflow via the control topic.
func (s *Service) Cancel(ctx context.Context, workflowID string) error {
	state, ok := s.state(workflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if state.IsTerminal() {
		return nil
	}
	_, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeCancelWorkflow,
		CorrelationID: workflowID,
		Sender:        "orchestrator",
		Topic:         model.TopicWorkflowControl,
		Priority:      model.PriorityCritical,
	})
	return err
}

// SubmitFeedback hands a human reviewer's decision back to the workflow via
// the control topic.
func (s *Service) SubmitFeedback(ctx context.Context, workflowID string, feedback *model.Feedback) error {
	state, ok := s.state(workflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if state.CurrentStage() != workflow.StageHumanReview {
		return fmt.Errorf("%w: %s", ErrNotReviewable, workflowID)
	}
	_, err := s.bus.Publish(ctx, &model.Message{
		Type:          model.MessageTypeHumanFeedback,
		CorrelationID: workflowID,
		Sender:        "reviewer",
		Topic:         model.TopicWorkflowControl,
		Priority:      model.PriorityHigh,
		Payload:       feedback,
	})
	return err
}

// TimeoutSweep forces every workflow open longer than the configured timeout
// into human review with whatever evidence accumulated so far.
func (s *Service) TimeoutSweep(ctx context.Context, now time.Time) {
	s.mu.RLock()
	var expired []*workflow.State
	for _, state := range s.states {
		if !state.IsTerminal() && state.Age(now) > s.config.WorkflowTimeout {
			expired = append(expired, state)
		}
	}
	s.mu.RUnlock()

	for _, state := range expired {
		lock := s.docLock(state.DocumentID)
		lock.Lock()
		if state.IsTerminal() {
			lock.Unlock()
			continue
		}
		stage := state.CurrentStage()
		if stage == workflow.StageHumanReview {
			lock.Unlock()
			continue
		}
		s.scheduler.CancelDocument(state.DocumentID)
		state.Resolve(s.aggregator.ComputeVerdict(state.DocumentID), model.DecisionHumanReview, "timeout")
		if err := s.apply(state, workflow.StageHumanReview, "", "workflow timeout"); err == nil {
			if err := s.escalate(ctx, state, "workflow timeout"); err != nil {
				log.Printf("orchestrator: failed to escalate timed out workflow %v: %v", state.DocumentID, err)
			}
		}
		lock.Unlock()
	}
}

// Document returns an ingested document by id.
func (s *Service) Document(ctx context.Context, documentID string) (*model.Document, error) {
	return s.documents.Load(ctx, documentID)
}

// Documents lists ingested documents, optionally filtered (e.g. by Type).
func (s *Service) Documents(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Document, error) {
	return s.documents.List(ctx, parameters...)
}

// Status returns the workflow snapshot for an open or archived workflow.
func (s *Service) Status(ctx context.Context, workflowID string) (*workflow.Snapshot, error) {
	if state, ok := s.state(workflowID); ok {
		return state.Snapshot(), nil
	}
	if s.archive != nil {
		if snapshot, err := s.archive.LoadWorkflow(ctx, workflowID); err == nil {
			return snapshot, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
}

// apply runs one transition, logging and swallowing illegal or duplicate
// attempts so redeliveries never fail the workflow.
func (s *Service) apply(state *workflow.State, to workflow.Stage, messageID, note string) error {
	err := s.machine.Apply(state, to, messageID, note)
	if err == nil {
		return nil
	}
	if errors.Is(err, workflow.ErrDuplicateMessage) || errors.Is(err, workflow.ErrIllegalTransition) || errors.Is(err, workflow.ErrTerminal) {
		log.Printf("orchestrator: transition to %v discarded for %v: %v", to, state.DocumentID, err)
		return err
	}
	return err
}
