// Package memory provides a generic in-memory dao.Service backed by a map.
package memory

import (
	"context"
	"sync"

	"github.com/viant/docuflow/service/dao"
)

// Store keeps entities of type *T mapped by a comparable key K extracted via
// the supplied selector. An optional attribute selector feeds List filtering
// (e.g. by workflow stage).
type Store[K comparable, T any] struct {
	mu        sync.RWMutex
	records   map[K]*T
	key       func(*T) K
	attribute func(*T, string) (string, bool)
}

var _ dao.Service[string, any] = (*Store[string, any])(nil)

// Option customises a Store.
type Option[K comparable, T any] func(*Store[K, T])

// WithAttribute registers the attribute selector used by List parameters.
func WithAttribute[K comparable, T any](fn func(*T, string) (string, bool)) Option[K, T] {
	return func(s *Store[K, T]) {
		s.attribute = fn
	}
}

// New creates a Store; key extracts the entity identifier.
func New[K comparable, T any](key func(*T) K, options ...Option[K, T]) *Store[K, T] {
	ret := &Store[K, T]{
		records: make(map[K]*T),
		key:     key,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Save stores or overwrites a record.
func (s *Store[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.key(v)
	var zero K
	if key == zero {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = v
	return nil
}

// Load returns a record by key or dao.ErrNotFound.
func (s *Store[K, T]) Load(_ context.Context, key K) (*T, error) {
	var zero K
	if key == zero {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return v, nil
}

// Delete removes a record.
func (s *Store[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns records matching every parameter; with no attribute selector
// all records match.
func (s *Store[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
outer:
	for _, v := range s.records {
		if s.attribute != nil {
			for _, parameter := range parameters {
				value, ok := s.attribute(v, parameter.Name)
				if ok && !parameter.Matches(value) {
					continue outer
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}
