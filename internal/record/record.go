// Package record defines the host-side shape query rows are copied into.
//
// A Factory creates an empty Record for a type name; the bridge then sets
// one field per result column, using the column name verbatim. Two
// implementations ship here: Map, a dynamic ordered record that accepts any
// field, and Registry, a Factory over declared schemas that can reject
// columns a type does not know.
package record

import (
	"context"
	"slices"
)

// Record is a mutable, named-field container for one result row.
type Record interface {
	// Type is the record type name the factory was asked for.
	Type() string

	// Set assigns value to field. Setting a field twice keeps the last value.
	Set(ctx context.Context, field string, value any) error

	// Get returns the value of field and whether it was set.
	Get(field string) (any, bool)

	// Fields lists the set fields in first-assignment order.
	Fields() []string
}

// Factory creates empty records by type name.
type Factory interface {
	Instantiate(ctx context.Context, typeName string) (Record, error)
}

// Validator is implemented by factories that can check a column set
// against a type before any row is read.
type Validator interface {
	Validate(typeName string, fields []string) error
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, typeName string) (Record, error)

func (f FactoryFunc) Instantiate(ctx context.Context, typeName string) (Record, error) {
	return f(ctx, typeName)
}

// Map is a dynamic Record that remembers field order. The zero value is
// not usable; call NewMap.
type Map struct {
	typ    string
	names  []string
	values map[string]any
}

// NewMap returns an empty Map sized for n fields.
func NewMap(typeName string, n int) *Map {
	return &Map{
		typ:    typeName,
		names:  make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

func (m *Map) Type() string { return m.typ }

// Set never fails. A repeated field keeps its original position.
func (m *Map) Set(_ context.Context, field string, value any) error {
	if _, ok := m.values[field]; !ok {
		m.names = append(m.names, field)
	}
	m.values[field] = value
	return nil
}

func (m *Map) Get(field string) (any, bool) {
	v, ok := m.values[field]
	return v, ok
}

func (m *Map) Fields() []string { return slices.Clone(m.names) }
