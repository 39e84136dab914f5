// Package docuflow provides a document workflow orchestration engine.
//
// The engine routes ingested documents through capability-specific agents
// over an in-process message bus and comes with pluggable service layers
// such as:
//
//   - bus        – at-least-once, per-correlation ordered messaging
//   - registry   – agent registration, health and capacity tracking
//   - scheduler  – task assignment, retries and deadline enforcement
//   - aggregator – severity-weighted quality scoring of findings
//
// Docuflow is designed to be embedded in host applications. End-users
// typically interact with the engine via the high-level Service façade
// exposed by the root package:
//
//	srv := docuflow.New(
//	    docuflow.WithCapability("extractor-1", model.CapabilityExtraction, extractor, 2),
//	)
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	id, _ := rt.Ingest(ctx, document)
//	snapshot, _ := rt.WaitForDecision(ctx, id, time.Minute)
//
// For more details see the README and individual sub-packages.
package docuflow
