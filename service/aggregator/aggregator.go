// Package aggregator collects findings per document and reduces them into a
// severity-weighted quality verdict.
package aggregator

import (
	"sync"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/internal/idgen"
	"github.com/viant/docuflow/model"
)

// Config holds scoring weights and decision thresholds.
type Config struct {
	// Weights maps severity to the score deduction per finding.
	Weights map[model.Severity]int `yaml:"weights,omitempty"`
	// ApproveScoreFloor is the minimum score eligible for approval.
	ApproveScoreFloor int `yaml:"approveScoreFloor,omitempty"`
	// ApproveSeverityCeiling is the highest overall severity still eligible
	// for approval.
	ApproveSeverityCeiling model.Severity `yaml:"approveSeverityCeiling,omitempty"`
	// BlockingCategories reject the document outright when any finding in
	// one of them reaches critical severity.
	BlockingCategories []string `yaml:"blockingCategories,omitempty"`
	// SuppressedCategories are excluded from scoring altogether.
	SuppressedCategories []string `yaml:"suppressedCategories,omitempty"`
}

// DefaultConfig returns the stock scoring policy.
func DefaultConfig() Config {
	return Config{
		Weights: map[model.Severity]int{
			model.SeverityCritical: 40,
			model.SeverityHigh:     20,
			model.SeverityMedium:   8,
			model.SeverityLow:      2,
			model.SeverityInfo:     0,
		},
		ApproveScoreFloor:      90,
		ApproveSeverityCeiling: model.SeverityMedium,
		BlockingCategories:     []string{model.CategoryMissingCrossReference},
		SuppressedCategories:   []string{model.CategoryExpectedAbsence},
	}
}

// Service accumulates findings and computes verdicts. Findings are append
// only; recomputing a verdict over the same set yields the same result.
type Service struct {
	config     Config
	blocking   map[string]bool
	suppressed map[string]bool

	mu       sync.RWMutex
	findings map[string][]*model.Finding
}

// New creates an aggregator with the given scoring policy.
func New(config Config) *Service {
	if len(config.Weights) == 0 {
		config = DefaultConfig()
	}
	s := &Service{
		config:     config,
		blocking:   make(map[string]bool),
		suppressed: make(map[string]bool),
		findings:   make(map[string][]*model.Finding),
	}
	for _, category := range config.BlockingCategories {
		s.blocking[category] = true
	}
	for _, category := range config.SuppressedCategories {
		s.suppressed[category] = true
	}
	return s
}

// AddFinding appends a finding to the document's evidence set, assigning an
// id and timestamp when absent.
func (s *Service) AddFinding(finding *model.Finding) {
	if finding == nil || finding.DocumentID == "" {
		return
	}
	if finding.ID == "" {
		finding.ID = idgen.New()
	}
	if finding.CreatedAt.IsZero() {
		finding.CreatedAt = clock.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings[finding.DocumentID] = append(s.findings[finding.DocumentID], finding)
}

// AddFindings appends a batch of findings for one document.
func (s *Service) AddFindings(findings []*model.Finding) {
	for _, finding := range findings {
		s.AddFinding(finding)
	}
}

// Findings returns a copy of the document's evidence set in arrival order.
func (s *Service) Findings(documentID string) []*model.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.findings[documentID]
	out := make([]*model.Finding, len(stored))
	copy(out, stored)
	return out
}

// ComputeVerdict reduces the document's findings into a verdict. The score
// starts at 100 and each non-suppressed finding deducts its severity weight;
// the score never drops below zero. Overall severity is the maximum across
// non-suppressed findings. A critical finding in a blocking category rejects
// the document regardless of score.
func (s *Service) ComputeVerdict(documentID string) *model.Verdict {
	findings := s.Findings(documentID)
	score := 100
	overall := model.SeverityInfo
	blocked := false
	for _, finding := range findings {
		if s.suppressed[finding.Category] {
			continue
		}
		score -= s.config.Weights[finding.Severity]
		if finding.Severity > overall {
			overall = finding.Severity
		}
		if finding.Severity == model.SeverityCritical && s.blocking[finding.Category] {
			blocked = true
		}
	}
	if score < 0 {
		score = 0
	}
	verdict := &model.Verdict{
		DocumentID:      documentID,
		Score:           score,
		OverallSeverity: overall,
		Findings:        findings,
	}
	switch {
	case blocked:
		verdict.Decision = model.DecisionRejected
	case score >= s.config.ApproveScoreFloor && overall <= s.config.ApproveSeverityCeiling:
		verdict.Decision = model.DecisionApproved
	default:
		verdict.Decision = model.DecisionHumanReview
	}
	return verdict
}

// Reset discards the document's evidence set once its workflow is archived.
func (s *Service) Reset(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.findings, documentID)
}
