// Package registry tracks available specialist agents, their capability,
// capacity and health. Descriptors are owned exclusively by the registry;
// callers receive snapshot copies and mutate only through registration,
// heartbeat and completion events.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/model"
)

// Health is an agent's availability status.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// Descriptor describes one registered agent instance.
type Descriptor struct {
	ID             string           `json:"id"`
	Capability     model.Capability `json:"capability"`
	Capacity       int              `json:"capacity"`
	InFlight       int              `json:"inFlight"`
	Health         Health           `json:"health"`
	LastHeartbeat  time.Time        `json:"lastHeartbeat"`
	LastAssignment time.Time        `json:"lastAssignment"`
}

var (
	// ErrNotRegistered is returned for operations on an unknown agent id.
	ErrNotRegistered = errors.New("registry: agent not registered")

	// ErrAtCapacity is returned by Acquire when the agent has no free slot.
	ErrAtCapacity = errors.New("registry: agent at capacity")
)

// Config controls health decay.
type Config struct {
	// DegradedAfter and UnavailableAfter are heartbeat silences beyond which
	// an agent is marked Degraded respectively Unavailable.
	DegradedAfter    time.Duration
	UnavailableAfter time.Duration

	// SweepInterval is how often the health sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard registry configuration.
func DefaultConfig() Config {
	return Config{
		DegradedAfter:    10 * time.Second,
		UnavailableAfter: 30 * time.Second,
		SweepInterval:    time.Second,
	}
}

// Service is the agent registry.
type Service struct {
	config Config

	mu     sync.RWMutex
	agents map[string]*Descriptor

	shutdownCh chan struct{}
	once       sync.Once
}

// New creates a registry.
func New(config Config) *Service {
	if config.SweepInterval == 0 {
		config = DefaultConfig()
	}
	return &Service{
		config:     config,
		agents:     make(map[string]*Descriptor),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds or refreshes an agent. A re-registration resets health and
// keeps the in-flight count.
func (s *Service) Register(descriptor Descriptor) error {
	if descriptor.ID == "" {
		return fmt.Errorf("registry: agent id cannot be empty")
	}
	if descriptor.Capacity <= 0 {
		return fmt.Errorf("registry: agent %s capacity must be positive", descriptor.ID)
	}
	now := clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[descriptor.ID]; ok {
		existing.Capability = descriptor.Capability
		existing.Capacity = descriptor.Capacity
		existing.Health = HealthHealthy
		existing.LastHeartbeat = now
		return nil
	}
	descriptor.Health = HealthHealthy
	descriptor.InFlight = 0
	descriptor.LastHeartbeat = now
	s.agents[descriptor.ID] = &descriptor
	return nil
}

// Heartbeat refreshes liveness and restores a degraded/unavailable agent to
// Healthy.
func (s *Service) Heartbeat(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, agentID)
	}
	agent.LastHeartbeat = clock.Now()
	agent.Health = HealthHealthy
	return nil
}

// Acquire reserves one execution slot on the agent and stamps the assignment
// time used by the scheduler's round-robin tie-break.
func (s *Service) Acquire(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, agentID)
	}
	if agent.InFlight >= agent.Capacity {
		return fmt.Errorf("%w: %s", ErrAtCapacity, agentID)
	}
	agent.InFlight++
	agent.LastAssignment = clock.Now()
	return nil
}

// Release frees one execution slot after a completion, timeout or cancel.
func (s *Service) Release(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok := s.agents[agentID]; ok && agent.InFlight > 0 {
		agent.InFlight--
	}
}

// Candidates returns snapshots of healthy agents for a capability that have
// spare capacity. Degraded and unavailable agents are excluded until a
// heartbeat restores them.
func (s *Service) Candidates(capability model.Capability) []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Descriptor
	for _, agent := range s.agents {
		if agent.Capability != capability || agent.Health != HealthHealthy {
			continue
		}
		if agent.InFlight >= agent.Capacity {
			continue
		}
		out = append(out, *agent)
	}
	return out
}

// Snapshot returns a copy of one descriptor.
func (s *Service) Snapshot(agentID string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return Descriptor{}, false
	}
	return *agent, true
}

// Agents returns snapshots of all descriptors.
func (s *Service) Agents() []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Descriptor, 0, len(s.agents))
	for _, agent := range s.agents {
		out = append(out, *agent)
	}
	return out
}

// Sweep downgrades agents whose heartbeat went silent.
func (s *Service) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range s.agents {
		silence := now.Sub(agent.LastHeartbeat)
		switch {
		case silence > s.config.UnavailableAfter:
			agent.Health = HealthUnavailable
		case silence > s.config.DegradedAfter:
			if agent.Health == HealthHealthy {
				agent.Health = HealthDegraded
			}
		}
	}
}

// Start runs the periodic health sweep until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			s.Sweep(clock.Now())
		}
	}
}

// Shutdown stops the sweep loop.
func (s *Service) Shutdown() {
	s.once.Do(func() {
		close(s.shutdownCh)
	})
}
