package model

import "time"

// TaskAssignment is the payload of a task.assigned message delivered on the
// target agent's topic.
type TaskAssignment struct {
	TaskID     string     `json:"taskId"`
	DocumentID string     `json:"documentId"`
	Capability Capability `json:"capability"`
	AgentID    string     `json:"agentId"`
	PayloadRef string     `json:"payloadRef,omitempty"`
	Deadline   time.Time  `json:"deadline"`
	Attempt    int        `json:"attempt"`
}

// TaskCompletion is the payload of a task.completed message.
type TaskCompletion struct {
	TaskID     string     `json:"taskId"`
	DocumentID string     `json:"documentId"`
	Capability Capability `json:"capability"`
	AgentID    string     `json:"agentId"`
	Status     TaskStatus `json:"status"`
	Findings   []*Finding `json:"findings,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TaskFailure is the payload of a task.unrecoverable message, emitted when a
// task exhausted all retries.
type TaskFailure struct {
	TaskID     string     `json:"taskId"`
	DocumentID string     `json:"documentId"`
	Capability Capability `json:"capability"`
	Reason     string     `json:"reason"`
	Attempts   int        `json:"attempts"`
}

// Feedback carries a human reviewer's decision back into the workflow.
type Feedback struct {
	Decision    Decision          `json:"decision"`
	Corrections map[string]string `json:"corrections,omitempty"`
	Reviewer    string            `json:"reviewer,omitempty"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// Escalation is the payload of a review.escalated message handed to the human
// review channel.
type Escalation struct {
	WorkflowID      string     `json:"workflowId"`
	Score           int        `json:"score"`
	OverallSeverity Severity   `json:"overallSeverity"`
	Findings        []*Finding `json:"findings,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// WorkflowOutcome is the payload of a workflow.completed message consumed by
// the dashboard.
type WorkflowOutcome struct {
	WorkflowID string    `json:"workflowId"`
	Decision   Decision  `json:"decision"`
	Score      int       `json:"score"`
	Tag        string    `json:"tag,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// LearningSample is the payload handed to the learning collaborator once a
// workflow reaches its terminal decision.
type LearningSample struct {
	WorkflowID string     `json:"workflowId"`
	Decision   Decision   `json:"decision"`
	Score      int        `json:"score"`
	Findings   []*Finding `json:"findings,omitempty"`
	Feedback   *Feedback  `json:"feedback,omitempty"`
}

// Heartbeat is the payload of an agent.heartbeat message.
type Heartbeat struct {
	AgentID    string     `json:"agentId"`
	Capability Capability `json:"capability"`
	InFlight   int        `json:"inFlight"`
	SentAt     time.Time  `json:"sentAt"`
}
