// Package bus implements the in-process message bus used for all
// cross-component coordination.
//
// Delivery is at-least-once per subscriber and ordered per correlation id:
// every message sharing a correlation id (the document id) reaches a given
// subscriber in publish order, while the priority field only reorders ready
// messages across correlation ids. Failed deliveries are retried with capped
// exponential backoff and jitter; exhausted messages land in the dead-letter
// log and surface as a delivery.failed event.
package bus
