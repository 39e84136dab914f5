// Package model contains the in-memory representation of documents, tasks,
// findings and messages exchanged between the orchestration components.
//
// All types here are plain data carriers: documents are immutable once
// stored, findings are append-only evidence, and the message envelope keeps
// the correlation id (the document id) that ordering guarantees hang off.
package model
