// Package schema describes the shape a generated value must have: an ordered set of named
// fields, their semantic types, per-field constraints and the guidance text shown to the
// generation service.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

const (
	duplicateFieldErrorFormat      = "schema %s: %w: %s"
	emptyFieldNameErrorFormat      = "schema %s: %w at position %d"
	missingElementTypeErrorFormat  = "schema %s: field %s: %w"
	missingObjectSchemaErrorFormat = "schema %s: field %s: %w"
	unknownKindErrorFormat         = "schema %s: field %s: %w %d"
)

var (
	ErrDuplicateField      = errors.New("duplicate field name")
	ErrEmptyFieldName      = errors.New("empty field name")
	ErrMissingElementType  = errors.New("list field requires an element type")
	ErrMissingObjectSchema = errors.New("object field requires a nested schema")
	ErrUnknownKind         = errors.New("unknown field kind")
	ErrDuplicateSchema     = errors.New("duplicate schema name")
)

// Kind enumerates the semantic types a field may hold.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindFloat
	KindBoolean
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Type is a semantic field type. Elem is set for lists, Object for nested schemas.
type Type struct {
	Kind   Kind
	Elem   *Type
	Object *Descriptor
}

func String() Type  { return Type{Kind: KindString} }
func Integer() Type { return Type{Kind: KindInteger} }
func Float() Type   { return Type{Kind: KindFloat} }
func Boolean() Type { return Type{Kind: KindBoolean} }

// ListOf returns a list type whose elements have type elem.
func ListOf(elem Type) Type {
	element := elem
	return Type{Kind: KindList, Elem: &element}
}

// Object returns a nested object type described by d.
func Object(d *Descriptor) Type {
	return Type{Kind: KindObject, Object: d}
}

func (t Type) String() string {
	switch t.Kind {
	case KindList:
		if t.Elem == nil {
			return "list"
		}
		return "list[" + t.Elem.String() + "]"
	case KindObject:
		if t.Object == nil || t.Object.Name() == "" {
			return "object"
		}
		return "object(" + t.Object.Name() + ")"
	default:
		return t.Kind.String()
	}
}

// Field is one named entry of a Descriptor.
type Field struct {
	Name        string
	Type        Type
	Description string
	Optional    bool
	Constraints []Constraint
	Normalizers []Normalizer
}

// Descriptor is an immutable, ordered schema. Nested descriptors must be built before the
// descriptor that embeds them, so a descriptor tree cannot contain cycles.
type Descriptor struct {
	name        string
	description string
	fields      []Field
	index       map[string]int
}

// New validates the fields and builds a Descriptor.
func New(name string, description string, fields ...Field) (*Descriptor, error) {
	descriptor := &Descriptor{
		name:        strings.TrimSpace(name),
		description: strings.TrimSpace(description),
		fields:      make([]Field, 0, len(fields)),
		index:       make(map[string]int, len(fields)),
	}
	for position, field := range fields {
		fieldName := strings.TrimSpace(field.Name)
		if fieldName == "" {
			return nil, fmt.Errorf(emptyFieldNameErrorFormat, descriptor.name, ErrEmptyFieldName, position)
		}
		if _, exists := descriptor.index[fieldName]; exists {
			return nil, fmt.Errorf(duplicateFieldErrorFormat, descriptor.name, ErrDuplicateField, fieldName)
		}
		if err := checkType(descriptor.name, fieldName, field.Type); err != nil {
			return nil, err
		}
		field.Name = fieldName
		field.Constraints = append([]Constraint(nil), field.Constraints...)
		field.Normalizers = append([]Normalizer(nil), field.Normalizers...)
		descriptor.index[fieldName] = len(descriptor.fields)
		descriptor.fields = append(descriptor.fields, field)
	}
	return descriptor, nil
}

// MustNew is New for package-level schema literals; it panics on an invalid definition.
func MustNew(name string, description string, fields ...Field) *Descriptor {
	descriptor, err := New(name, description, fields...)
	if err != nil {
		panic(err)
	}
	return descriptor
}

func checkType(schemaName string, fieldName string, fieldType Type) error {
	switch fieldType.Kind {
	case KindString, KindInteger, KindFloat, KindBoolean:
		return nil
	case KindList:
		if fieldType.Elem == nil {
			return fmt.Errorf(missingElementTypeErrorFormat, schemaName, fieldName, ErrMissingElementType)
		}
		return checkType(schemaName, fieldName, *fieldType.Elem)
	case KindObject:
		if fieldType.Object == nil {
			return fmt.Errorf(missingObjectSchemaErrorFormat, schemaName, fieldName, ErrMissingObjectSchema)
		}
		return nil
	default:
		return fmt.Errorf(unknownKindErrorFormat, schemaName, fieldName, ErrUnknownKind, int(fieldType.Kind))
	}
}

func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Description() string { return d.description }
func (d *Descriptor) Len() int            { return len(d.fields) }

// Describe returns the fields in declaration order. The slice is a copy.
func (d *Descriptor) Describe() []Field {
	return append([]Field(nil), d.fields...)
}

// Field looks a field up by name.
func (d *Descriptor) Field(name string) (Field, bool) {
	position, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.fields[position], true
}
