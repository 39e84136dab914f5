package docuflow

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/runtime/orchestrator"
	"github.com/viant/docuflow/runtime/workflow"
	"github.com/viant/docuflow/service/agent"
	"github.com/viant/docuflow/service/aggregator"
	"github.com/viant/docuflow/service/bus"
	"github.com/viant/docuflow/service/dao"
	archivefs "github.com/viant/docuflow/service/dao/archive/fs"
	"github.com/viant/docuflow/service/registry"
	"github.com/viant/docuflow/service/scheduler"
)

// Runtime is the running document workflow engine.
type Runtime struct {
	bus          *bus.Service
	registry     *registry.Service
	scheduler    *scheduler.Service
	aggregator   *aggregator.Service
	orchestrator *orchestrator.Service
	runners      []*agent.Runner
}

// Bus returns the message bus.
func (r *Runtime) Bus() *bus.Service {
	return r.bus
}

// Registry returns the agent registry.
func (r *Runtime) Registry() *registry.Service {
	return r.registry
}

// Scheduler returns the task scheduler.
func (r *Runtime) Scheduler() *scheduler.Service {
	return r.scheduler
}

// Start launches every component and the capability runners.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.bus.Start(ctx); err != nil {
		return err
	}
	if err := r.orchestrator.Start(ctx); err != nil {
		return err
	}
	go func() {
		_ = r.registry.Start(ctx)
	}()
	go r.scheduler.Start(ctx)
	for _, runner := range r.runners {
		if err := runner.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops the engine; in-flight deliveries finish first.
func (r *Runtime) Shutdown(ctx context.Context) error {
	for _, runner := range r.runners {
		runner.Shutdown()
	}
	r.orchestrator.Shutdown()
	r.scheduler.Shutdown()
	r.registry.Shutdown()
	r.bus.Shutdown()
	return nil
}

// Document returns an ingested document by id.
func (r *Runtime) Document(ctx context.Context, documentID string) (*model.Document, error) {
	return r.orchestrator.Document(ctx, documentID)
}

// Documents lists ingested documents, optionally filtered by parameters such
// as dao.NewParameter("Type", "invoice").
func (r *Runtime) Documents(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Document, error) {
	return r.orchestrator.Documents(ctx, parameters...)
}

// Ingest opens a workflow for the document and returns the workflow id.
func (r *Runtime) Ingest(ctx context.Context, document *model.Document) (string, error) {
	return r.orchestrator.Ingest(ctx, document)
}

// Status returns the workflow snapshot for an open or archived workflow.
func (r *Runtime) Status(ctx context.Context, workflowID string) (*workflow.Snapshot, error) {
	return r.orchestrator.Status(ctx, workflowID)
}

// SubmitFeedback hands a human reviewer's decision to a workflow awaiting
// review.
func (r *Runtime) SubmitFeedback(ctx context.Context, workflowID string, feedback *model.Feedback) error {
	return r.orchestrator.SubmitFeedback(ctx, workflowID, feedback)
}

// Cancel requests cancellation of an open workflow.
func (r *Runtime) Cancel(ctx context.Context, workflowID string) error {
	return r.orchestrator.Cancel(ctx, workflowID)
}

// WaitForDecision polls until the workflow reaches a decision stage (human
// review included) or the timeout elapses.
func (r *Runtime) WaitForDecision(ctx context.Context, workflowID string, timeout time.Duration) (*workflow.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snapshot, err := r.orchestrator.Status(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		switch snapshot.Stage {
		case workflow.StageApproved, workflow.StageRejected, workflow.StageHumanReview,
			workflow.StageLearning, workflow.StageTerminal:
			return snapshot, nil
		}
		if time.Now().After(deadline) {
			return snapshot, fmt.Errorf("timeout waiting for workflow %q", workflowID)
		}
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// WaitForTerminal polls until the workflow is archived or the timeout
// elapses.
func (r *Runtime) WaitForTerminal(ctx context.Context, workflowID string, timeout time.Duration) (*workflow.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snapshot, err := r.orchestrator.Status(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if snapshot.Terminal {
			return snapshot, nil
		}
		if time.Now().After(deadline) {
			return snapshot, fmt.Errorf("timeout waiting for workflow %q", workflowID)
		}
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// archiveDeadLetter persists dead-lettered messages to the archive.
func (r *Runtime) archiveDeadLetter(archive *archivefs.Service) func(*model.Message) {
	return func(message *model.Message) {
		_ = archive.SaveDeadLetter(context.Background(), message)
	}
}
