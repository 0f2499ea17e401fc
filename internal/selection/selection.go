// Package selection tracks which entities a user has picked for comparison.
package selection

import (
	"sync"

	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/identity"
	"github.com/sells-group/compare-engine/internal/record"
)

// Set is an insertion-ordered set of identity keys. It is safe for concurrent
// use.
type Set struct {
	mu     sync.Mutex
	schema entity.Schema
	keys   []string
}

// New returns an empty set that derives raw-record keys with the default
// schema.
func New() *Set {
	return NewForSchema(entity.SolarDeveloper)
}

// NewForSchema returns an empty set that canonicalizes raw records with
// schema, so their keys match the directory built with the same schema.
func NewForSchema(schema entity.Schema) *Set {
	if len(schema.Fields) == 0 {
		schema = entity.SolarDeveloper
	}
	return &Set{schema: schema}
}

// KeyOf derives the identity key for a toggle input: a name string, an
// entity, or a raw record. Unsupported inputs yield "".
func (s *Set) KeyOf(input any) string {
	return KeyOf(s.schema, input)
}

// KeyOf derives input's identity key, canonicalizing raw records with schema.
func KeyOf(schema entity.Schema, input any) string {
	switch v := input.(type) {
	case string:
		return identity.Key(v)
	case entity.Entity:
		return v.Key()
	case *entity.Entity:
		if v == nil {
			return ""
		}
		return v.Key()
	case record.Raw:
		return schema.Canonicalize(v).Key()
	case map[string]any:
		return schema.Canonicalize(record.Raw(v)).Key()
	default:
		return ""
	}
}

// Toggle adds the input's key when absent and removes it when present. It
// reports whether the key is selected afterwards. Inputs with an empty key are
// ignored.
func (s *Set) Toggle(input any) bool {
	key := s.KeyOf(input)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(key); i >= 0 {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
		return false
	}
	s.keys = append(s.keys, key)
	return true
}

// Add selects the input's key if it is not already selected.
func (s *Set) Add(input any) {
	key := s.KeyOf(input)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(key) < 0 {
		s.keys = append(s.keys, key)
	}
}

// Remove drops key. The key is normalized first, so display names work too.
func (s *Set) Remove(key string) {
	key = identity.Key(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(key); i >= 0 {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

// Contains reports whether the input's key is selected.
func (s *Set) Contains(input any) bool {
	key := s.KeyOf(input)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(key) >= 0
}

// Keys returns a copy of the selected keys in insertion order.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.keys...)
}

// Len returns the number of selected keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
}

// Resolve maps the selected keys to entities in selection order. Keys with no
// matching entity are skipped but stay selected, so they reappear once the
// data contains them again.
func (s *Set) Resolve(entities []entity.Entity) []entity.Entity {
	byKey := make(map[string]entity.Entity, len(entities))
	for _, e := range entities {
		k := e.Key()
		if k == "" {
			continue
		}
		if _, ok := byKey[k]; !ok {
			byKey[k] = e
		}
	}

	keys := s.Keys()
	out := make([]entity.Entity, 0, len(keys))
	for _, k := range keys {
		if e, ok := byKey[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Pair returns the first two resolved selections. ok is false when fewer than
// two selected keys resolve.
func (s *Set) Pair(entities []entity.Entity) (a, b entity.Entity, ok bool) {
	resolved := s.Resolve(entities)
	if len(resolved) < 2 {
		return entity.Entity{}, entity.Entity{}, false
	}
	return resolved[0], resolved[1], true
}

func (s *Set) indexLocked(key string) int {
	for i, k := range s.keys {
		if k == key {
			return i
		}
	}
	return -1
}
