// Package policy provides optional declarative admission rules applied when
// documents are ingested – for example to require operator confirmation for
// selected document types or to block them outright.
package policy
