package record

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/rowbridge/internal/errs"
)

// Schema declares a record type. A strict schema rejects fields it does not
// list; a loose one only documents them.
type Schema struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
	Strict bool     `yaml:"strict"`
}

// schemaFile is the on-disk layout read by LoadSchemas.
type schemaFile struct {
	Types []Schema `yaml:"types"`
}

// Registry is a Factory backed by declared schemas. With dynamic types
// allowed, unknown type names produce plain Maps instead of an error.
type Registry struct {
	mu           sync.RWMutex
	schemas      map[string]*entry
	allowDynamic bool
}

type entry struct {
	schema  Schema
	allowed map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry(allowDynamic bool) *Registry {
	return &Registry{
		schemas:      make(map[string]*entry),
		allowDynamic: allowDynamic,
	}
}

// Register adds or replaces a schema.
func (r *Registry) Register(s Schema) error {
	if s.Name == "" {
		return errs.New(errs.ErrKindInvalidInput, "record schema has no name")
	}
	allowed := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f == "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("record type %q declares an empty field name", s.Name))
		}
		if _, dup := allowed[f]; dup {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("record type %q declares field %q twice", s.Name, f))
		}
		allowed[f] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = &entry{schema: s, allowed: allowed}
	return nil
}

// Load registers every schema read from rd.
func (r *Registry) Load(rd io.Reader) error {
	schemas, err := LoadSchemas(rd)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchemas decodes a YAML document of the form
//
//	types:
//	  - name: user
//	    strict: true
//	    fields: [id, name]
func LoadSchemas(rd io.Reader) ([]Schema, error) {
	var f schemaFile
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to decode record schemas", err)
	}
	return f.Types, nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.schemas[name]
	if !ok {
		return Schema{}, false
	}
	return e.schema, true
}

// Instantiate implements Factory.
func (r *Registry) Instantiate(_ context.Context, typeName string) (Record, error) {
	e, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return NewMap(typeName, 0), nil
	}
	m := NewMap(typeName, len(e.schema.Fields))
	if !e.schema.Strict {
		return m, nil
	}
	return &strictMap{Map: m, allowed: e.allowed}, nil
}

// Validate implements Validator. It fails when a strict type does not
// declare one of fields.
func (r *Registry) Validate(typeName string, fields []string) error {
	e, err := r.lookup(typeName)
	if err != nil || e == nil || !e.schema.Strict {
		return err
	}
	for _, f := range fields {
		if _, ok := e.allowed[f]; !ok {
			return unknownField(typeName, f)
		}
	}
	return nil
}

// lookup returns a nil entry, without error, for a dynamic type.
func (r *Registry) lookup(typeName string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.schemas[typeName]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}
	if r.allowDynamic && typeName != "" {
		return nil, nil
	}
	return nil, errs.New(errs.ErrKindInstantiation, fmt.Sprintf("unknown record type %q", typeName))
}

func unknownField(typeName, field string) error {
	return errs.New(errs.ErrKindInstantiation, fmt.Sprintf("record type %q has no field %q", typeName, field))
}

// strictMap refuses fields outside its schema.
type strictMap struct {
	*Map
	allowed map[string]struct{}
}

func (s *strictMap) Set(ctx context.Context, field string, value any) error {
	if _, ok := s.allowed[field]; !ok {
		return unknownField(s.typ, field)
	}
	return s.Map.Set(ctx, field, value)
}
