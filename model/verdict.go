package model

// Decision is the terminal disposition of a workflow.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionHumanReview Decision = "humanReview"
)

// Verdict aggregates all findings for a document into a severity-ranked
// quality outcome used to make the terminal decision.
type Verdict struct {
	DocumentID      string     `json:"documentId"`
	Score           int        `json:"score"`
	OverallSeverity Severity   `json:"overallSeverity"`
	Decision        Decision   `json:"decision"`
	Findings        []*Finding `json:"findings,omitempty"`
}
