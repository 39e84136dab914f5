package dao

import (
	"context"
	"errors"
)

// Sentinel errors shared by all store implementations so that callers detect
// conditions via errors.Is rather than string matching.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates an empty or otherwise unusable key.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist nil.
	ErrNilEntity = errors.New("dao: nil entity")
)

// Service is a generic persistence contract keyed by a comparable identifier.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// Parameter narrows a List call, e.g. {Name: "Stage", Value: "processing"}.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter builds a list filter; multiple values match any of them.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Matches reports whether a candidate attribute value satisfies the
// parameter.
func (p *Parameter) Matches(value string) bool {
	switch actual := p.Value.(type) {
	case string:
		return value == actual
	case []string:
		for _, item := range actual {
			if value == item {
				return true
			}
		}
		return false
	}
	return true
}
