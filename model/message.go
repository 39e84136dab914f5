package model

import "time"

// MessageType tags the semantic kind of a message.
type MessageType string

const (
	MessageTypeTaskAssigned       MessageType = "task.assigned"
	MessageTypeTaskStarted        MessageType = "task.started"
	MessageTypeTaskCompleted      MessageType = "task.completed"
	MessageTypeTaskUnrecoverable  MessageType = "task.unrecoverable"
	MessageTypeAnomalyRaised      MessageType = "anomaly.raised"
	MessageTypeWorkflowCompleted  MessageType = "workflow.completed"
	MessageTypeCancelWorkflow     MessageType = "workflow.cancel"
	MessageTypeHumanFeedback      MessageType = "workflow.feedback"
	MessageTypeEscalatedForReview MessageType = "review.escalated"
	MessageTypeLearningSample     MessageType = "learning.sample"
	MessageTypeDeliveryFailed     MessageType = "delivery.failed"
	MessageTypeHeartbeat          MessageType = "agent.heartbeat"
)

// Well-known topics. Task assignments are delivered on a per-agent topic
// built with AgentTopic.
const (
	TopicTaskStarted        = "task.started"
	TopicTaskCompleted      = "task.completed"
	TopicTaskAssigned       = "task.assigned"
	TopicTaskUnrecoverable  = "task.unrecoverable"
	TopicAnomalyRaised      = "anomaly.raised"
	TopicWorkflowCompleted  = "workflow.completed"
	TopicWorkflowControl    = "workflow.control"
	TopicEscalatedForReview = "review.escalated"
	TopicLearningSample     = "learning.sample"
	TopicDeliveryFailed     = "delivery.failed"
	TopicHeartbeat          = "agent.heartbeat"
)

// AgentTopic returns the inbound assignment topic for an agent instance.
func AgentTopic(agentID string) string {
	return "agent." + agentID
}

// Message is the envelope for all cross-component communication. The
// correlation id equals the document id for task-scoped messages so that a
// subscriber observes all messages of one workflow in publish order.
type Message struct {
	ID            string        `json:"id"`
	Type          MessageType   `json:"type"`
	CorrelationID string        `json:"correlationId"`
	Sender        string        `json:"sender"`
	Topic         string        `json:"topic"`
	Priority      Priority      `json:"priority"`
	Payload       interface{}   `json:"payload,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	TTL           time.Duration `json:"ttl,omitempty"`
}

// Expired reports whether the message outlived its TTL at the given instant.
// A zero TTL never expires.
func (m *Message) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.Timestamp.Add(m.TTL))
}
