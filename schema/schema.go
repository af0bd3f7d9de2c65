// Package schema describes the entities and fields the kernel knows
// about. A Descriptor carries no runtime values; it only shapes how
// backends lay out domain tables and coerce values.
package schema

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Type is the set of field value types a backend must be able to
// represent, coercing as documented on each reference backend.
type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Boolean Type = "boolean"
	Enum    Type = "enum"
)

// Field describes one field of one entity.
type Field struct {
	Name     string   `yaml:"name"`
	Type     Type     `yaml:"type"`
	Values   []string `yaml:"values,omitempty"` // only meaningful for Enum
	Optional bool     `yaml:"optional"`
}

// Entity describes one entity's ordered fields.
type Entity struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Descriptor is an ordered set of entities.
type Descriptor struct {
	Entities []Entity `yaml:"entities"`

	byName map[string]Entity
}

// New builds a Descriptor from entities, indexing them by name.
func New(entities ...Entity) *Descriptor {
	d := &Descriptor{Entities: entities}
	d.index()
	return d
}

func (d *Descriptor) index() {
	d.byName = make(map[string]Entity, len(d.Entities))
	for _, e := range d.Entities {
		d.byName[e.Name] = e
	}
}

// Entity looks up an entity by name.
func (d *Descriptor) Entity(name string) (Entity, bool) {
	if d.byName == nil {
		d.index()
	}
	e, ok := d.byName[name]
	return e, ok
}

// Known reports whether name is a declared entity.
func (d *Descriptor) Known(name string) bool {
	_, ok := d.Entity(name)
	return ok
}

// Field looks up a field descriptor within an entity.
func (e Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// LoadYAML parses a Descriptor from YAML shaped like:
//
//	entities:
//	  - name: todos
//	    fields:
//	      - {name: title, type: string}
//	      - {name: done, type: boolean}
func LoadYAML(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}
	d.index()
	return &d, nil
}
