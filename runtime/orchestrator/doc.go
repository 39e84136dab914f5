// Package orchestrator coordinates document workflows over the message bus.
//
// Each ingested document gets one workflow identified by the document id.
// The orchestrator classifies the document into required capabilities, fans
// out one task per capability through the scheduler and waits at a fan-in
// barrier until every capability reported a terminal status. Accumulated
// findings are then reduced to a quality verdict which drives the terminal
// decision: approval, rejection or escalation to human review.
//
// Message redeliveries are harmless: stage transitions are deduplicated by
// message id and all changes to one workflow are serialized on a
// per-document lock.
package orchestrator
