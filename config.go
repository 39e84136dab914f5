package docuflow

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/docuflow/runtime/orchestrator"
	"github.com/viant/docuflow/service/agent"
	"github.com/viant/docuflow/service/aggregator"
	"github.com/viant/docuflow/service/bus"
	archive "github.com/viant/docuflow/service/dao/archive/fs"
	"github.com/viant/docuflow/service/registry"
	"github.com/viant/docuflow/service/scheduler"
)

// Config is a serialisable representation of the engine configuration. The
// zero-value is useful; all nested fields inherit their package defaults.
type Config struct {
	Bus          bus.Config          `json:"bus" yaml:"bus"`
	Registry     registry.Config     `json:"registry" yaml:"registry"`
	Scheduler    scheduler.Config    `json:"scheduler" yaml:"scheduler"`
	Aggregator   aggregator.Config   `json:"aggregator" yaml:"aggregator"`
	Agent        agent.Config        `json:"agent" yaml:"agent"`
	Orchestrator orchestrator.Config `json:"orchestrator" yaml:"orchestrator"`
	Archive      archive.Config      `json:"archive" yaml:"archive"`
}

// DefaultConfig returns a Config populated with every package's defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Bus:          bus.DefaultConfig(),
		Registry:     registry.DefaultConfig(),
		Scheduler:    scheduler.DefaultConfig(),
		Aggregator:   aggregator.DefaultConfig(),
		Agent:        agent.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Archive:      archive.DefaultConfig(),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Bus.Concurrency < 0 {
		return fmt.Errorf("bus.concurrency must be >= 0")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler.maxRetries must be >= 0")
	}
	if c.Orchestrator.WorkflowTimeout < 0 {
		return fmt.Errorf("orchestrator.workflowTimeout must be >= 0")
	}
	return nil
}

// LoadConfig reads a YAML configuration from any afs-supported URL, layered
// over DefaultConfig.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", URL, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
