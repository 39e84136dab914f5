package docuflow

import (
	"log"

	"github.com/viant/docuflow/extension"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/runtime/orchestrator"
	"github.com/viant/docuflow/service/agent"
	"github.com/viant/docuflow/service/aggregator"
	"github.com/viant/docuflow/service/bus"
	archivefs "github.com/viant/docuflow/service/dao/archive/fs"
	"github.com/viant/docuflow/service/registry"
	"github.com/viant/docuflow/service/scheduler"
)

// Service assembles the document workflow engine: bus, registry, scheduler,
// aggregator and orchestrator, plus any configured capability runners.
type Service struct {
	config  *Config
	runtime *Runtime

	classifier     orchestrator.Classifier
	archive        orchestrator.Archive
	extensionTypes *extension.Types
	capabilities   []capabilityBinding
	archiveErr     error
}

type capabilityBinding struct {
	agentID    string
	capability model.Capability
	impl       agent.Capability
	capacity   int
}

func (s *Service) init(options []Option) {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	for _, option := range options {
		option(s)
	}
	if s.extensionTypes == nil {
		s.extensionTypes = extension.NewTypes()
	}
	if s.archive == nil {
		archive, err := archivefs.New(s.config.Archive, s.extensionTypes)
		if err != nil {
			// The engine still runs without an archive; terminal snapshots
			// simply stay in memory.
			s.archiveErr = err
			log.Printf("docuflow: archive disabled: %v", err)
		} else {
			s.archive = archive
		}
	}

	r := s.runtime
	r.registry = registry.New(s.config.Registry)
	busOptions := []bus.Option{}
	if archive, ok := s.archive.(*archivefs.Service); ok && archive != nil {
		busOptions = append(busOptions, bus.WithDeadLetterHook(r.archiveDeadLetter(archive)))
	}
	r.bus = bus.New(s.config.Bus, busOptions...)
	r.scheduler = scheduler.New(s.config.Scheduler, r.registry, r.bus)
	r.aggregator = aggregator.New(s.config.Aggregator)
	r.orchestrator = orchestrator.New(s.config.Orchestrator, r.bus, r.scheduler, r.aggregator, s.classifier, s.archive)
	for _, binding := range s.capabilities {
		runner := agent.NewRunner(s.config.Agent, binding.agentID, binding.capability, binding.impl, binding.capacity, r.bus, r.registry)
		r.runners = append(r.runners, runner)
	}
}

// Runtime returns the assembled runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// ExtensionTypes returns the payload type registry used by the archive.
func (s *Service) ExtensionTypes() *extension.Types {
	return s.extensionTypes
}

// New assembles a Service from the supplied options.
func New(options ...Option) *Service {
	ret := &Service{runtime: &Runtime{}}
	ret.init(options)
	return ret
}
