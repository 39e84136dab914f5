// Package idgen wraps UUID generation behind a stub point. Callers treat the
// returned identifiers as opaque strings.
package idgen

import "github.com/google/uuid"

// NewFunc produces a new globally unique identifier; tests may replace it
// with a deterministic sequence.
var NewFunc = func() string { return uuid.New().String() }

// New returns a fresh identifier via NewFunc.
func New() string { return NewFunc() }
