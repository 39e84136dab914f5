package model

import "time"

// Severity ranks a finding. Ordering matters: a verdict's overall severity is
// the maximum across findings, never an average.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// Well-known finding categories.
const (
	// CategoryAgentUnavailable is recorded when a task exhausts its retries
	// without any agent completing it.
	CategoryAgentUnavailable = "agent-unavailable"

	// CategoryMissingCrossReference marks a document that fails to reference
	// required master data; critical findings in this category block approval.
	CategoryMissingCrossReference = "missing-cross-reference"

	// CategoryExpectedAbsence marks a correctly absent attribute (e.g. a
	// framework agreement lacking a reference number). Such findings are
	// conformance evidence and are excluded from scoring.
	CategoryExpectedAbsence = "expected-absence"
)

// Finding is a single piece of evidence produced by one capability about one
// document. Findings are append-only and never mutated after creation.
type Finding struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"documentId"`
	Capability  Capability `json:"capability"`
	Severity    Severity   `json:"severity"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	CreatedAt   time.Time  `json:"createdAt"`
}
