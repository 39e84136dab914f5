package docuflow

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/viant/docuflow/extension"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/runtime/orchestrator"
	"github.com/viant/docuflow/service/agent"
	"github.com/viant/docuflow/tracing"
)

// Option customises the assembled service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithClassifier sets the document classifier.
func WithClassifier(classifier orchestrator.Classifier) Option {
	return func(s *Service) {
		s.classifier = classifier
	}
}

// WithArchive sets the workflow archive.
func WithArchive(archive orchestrator.Archive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithExtensionTypes sets the payload type registry.
func WithExtensionTypes(types *extension.Types) Option {
	return func(s *Service) {
		s.extensionTypes = types
	}
}

// WithCapability registers an agent instance serving one capability with the
// given concurrent capacity. The runner starts with the runtime.
func WithCapability(agentID string, capability model.Capability, impl agent.Capability, capacity int) Option {
	return func(s *Service) {
		s.capabilities = append(s.capabilities, capabilityBinding{
			agentID:    agentID,
			capability: capability,
			impl:       impl,
			capacity:   capacity,
		})
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, e.g. OTLP, Jaeger or Zipkin. The first successful
// initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
