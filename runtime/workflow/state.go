package workflow

import (
	"sync"
	"time"

	"github.com/viant/docuflow/model"
)

// Stage identifies where a document sits in its workflow.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageIngested        Stage = "ingested"
	StageClassifying     Stage = "classifying"
	StageTaskAssigned    Stage = "taskAssigned"
	StageProcessing      Stage = "processing"
	StageCrossValidating Stage = "crossValidating"
	StageQualityReview   Stage = "qualityReview"
	StageApproved        Stage = "approved"
	StageRejected        Stage = "rejected"
	StageHumanReview     Stage = "humanReview"
	StageLearning        Stage = "learning"
	StageTerminal        Stage = "terminal"
)

// Transition records one applied stage change.
type Transition struct {
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	At        time.Time `json:"at"`
	MessageID string    `json:"messageId,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// State is the single source of truth for one document's workflow. It is
// owned by the orchestrator; at most one non-terminal State exists per
// document id at any time.
type State struct {
	DocumentID string                                `json:"documentId"`
	Document   *model.Document                       `json:"document"`
	Stage      Stage                                 `json:"stage"`
	Required   []model.Capability                    `json:"required,omitempty"`
	TaskStatus map[model.Capability]model.TaskStatus `json:"taskStatus,omitempty"`
	Decision   model.Decision                        `json:"decision,omitempty"`
	Tag        string                                `json:"tag,omitempty"`
	Feedback   *model.Feedback                       `json:"feedback,omitempty"`
	Verdict    *model.Verdict                        `json:"verdict,omitempty"`
	History    []Transition                          `json:"history"`
	Terminal   bool                                  `json:"terminal"`
	CreatedAt  time.Time                             `json:"createdAt"`
	UpdatedAt  time.Time                             `json:"updatedAt"`

	mu   sync.RWMutex
	seen map[string]bool
}

// NewState creates an Idle workflow state for a document.
func NewState(doc *model.Document, now time.Time) *State {
	return &State{
		DocumentID: doc.ID,
		Document:   doc,
		Stage:      StageIdle,
		TaskStatus: make(map[model.Capability]model.TaskStatus),
		CreatedAt:  now,
		UpdatedAt:  now,
		seen:       make(map[string]bool),
	}
}

// CurrentStage returns the stage under the state's lock.
func (s *State) CurrentStage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stage
}

// IsTerminal reports whether the workflow has been archived.
func (s *State) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Terminal
}

// SetTasks records the capability set the fan-in barrier waits on.
func (s *State) SetTasks(required []model.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Required = append([]model.Capability(nil), required...)
	for _, capability := range required {
		s.TaskStatus[capability] = model.TaskStatusPending
	}
}

// RecordTask updates one capability's task status; it reports whether the
// fan-in barrier is now satisfied (every required capability Done or Failed).
func (s *State) RecordTask(capability model.Capability, status model.TaskStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TaskStatus[capability] = status
	for _, required := range s.Required {
		if !s.TaskStatus[required].IsTerminal() {
			return false
		}
	}
	return true
}

// BarrierSatisfied reports whether all required tasks have reported.
func (s *State) BarrierSatisfied() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, required := range s.Required {
		if !s.TaskStatus[required].IsTerminal() {
			return false
		}
	}
	return len(s.Required) > 0
}

// Observe records a delivery of the message id and reports whether it is the
// first one. It shares the id set Apply uses, so a handler can dedup counter
// updates against at-least-once redelivery; an empty id always passes.
func (s *State) Observe(messageID string) bool {
	if messageID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[messageID] {
		return false
	}
	s.seen[messageID] = true
	return true
}

// Resolve records the verdict, decision and tag under the state's lock so
// concurrent Snapshot readers never observe a partial outcome. A nil verdict
// keeps the existing one; an empty tag keeps the existing tag.
func (s *State) Resolve(verdict *model.Verdict, decision model.Decision, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if verdict != nil {
		s.Verdict = verdict
	}
	s.Decision = decision
	if tag != "" {
		s.Tag = tag
	}
}

// ResolveFeedback records a reviewer's decision under the state's lock.
func (s *State) ResolveFeedback(feedback *model.Feedback, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Feedback = feedback
	s.Decision = feedback.Decision
	s.Tag = tag
}

// Outcome returns the decision, tag, verdict and feedback under the state's
// lock.
func (s *State) Outcome() (model.Decision, string, *model.Verdict, *model.Feedback) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Decision, s.Tag, s.Verdict, s.Feedback
}

// Age returns how long the workflow has been open.
func (s *State) Age(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.CreatedAt)
}

// Snapshot is a read-only copy of a State handed to callers of Status.
type Snapshot struct {
	DocumentID string                                `json:"documentId"`
	Stage      Stage                                 `json:"stage"`
	Required   []model.Capability                    `json:"required,omitempty"`
	TaskStatus map[model.Capability]model.TaskStatus `json:"taskStatus,omitempty"`
	Decision   model.Decision                        `json:"decision,omitempty"`
	Tag        string                                `json:"tag,omitempty"`
	Verdict    *model.Verdict                        `json:"verdict,omitempty"`
	History    []Transition                          `json:"history"`
	Terminal   bool                                  `json:"terminal"`
	CreatedAt  time.Time                             `json:"createdAt"`
	UpdatedAt  time.Time                             `json:"updatedAt"`
}

// Snapshot copies the externally relevant fields under the state's lock.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Snapshot{
		DocumentID: s.DocumentID,
		Stage:      s.Stage,
		Decision:   s.Decision,
		Tag:        s.Tag,
		Verdict:    s.Verdict,
		Terminal:   s.Terminal,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	out.Required = append([]model.Capability(nil), s.Required...)
	out.History = append([]Transition(nil), s.History...)
	out.TaskStatus = make(map[model.Capability]model.TaskStatus, len(s.TaskStatus))
	for capability, status := range s.TaskStatus {
		out.TaskStatus[capability] = status
	}
	return out
}
