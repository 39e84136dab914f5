package model

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusAssigned TaskStatus = "assigned"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusTimedOut TaskStatus = "timedOut"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailed, TaskStatusTimedOut:
		return true
	}
	return false
}

// Failure reasons recorded on a task.
const (
	FailureReasonTimeout   = "timeout"
	FailureReasonCancelled = "cancelled"
	FailureReasonRejected  = "rejected"
)

// Priority orders ready work; it never reorders messages sharing a
// correlation id.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// Task is a unit of work derived from a document for one capability. At most
// one task per (document, capability) pair may be assigned or running at any
// instant.
type Task struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"documentId"`
	Capability    Capability `json:"capability"`
	Priority      Priority   `json:"priority"`
	Status        TaskStatus `json:"status"`
	AgentID       string     `json:"agentId,omitempty"`
	PayloadRef    string     `json:"payloadRef,omitempty"`
	Attempts      int        `json:"attempts"`
	Deadline      time.Time  `json:"deadline"`
	RunAfter      *time.Time `json:"runAfter,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Clone returns a copy safe to hand outside the scheduler's lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.RunAfter != nil {
		at := *t.RunAfter
		clone.RunAfter = &at
	}
	return &clone
}
