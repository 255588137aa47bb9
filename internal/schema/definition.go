package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	definitionReadErrorFormat      = "read schema definition %s: %w"
	definitionUnmarshalErrorFormat = "unmarshal schema definition: %w"
	definitionFieldErrorFormat     = "field %s: %w"
	definitionPatternErrorFormat   = "field %s: compile pattern %q: %w"
	definitionNormalizeErrorFormat = "field %s: %w %q"
	definitionTypeErrorFormat      = "field %s: %w %q"
	jsonSchemaPropertiesKey        = "properties"
)

var (
	ErrUnknownType       = errors.New("unknown field type")
	ErrUnknownNormalizer = errors.New("unknown normalizer")
	ErrMissingItems      = errors.New("list field requires items")
	ErrMissingFields     = errors.New("object field requires fields")
)

// Definition is the declarative form of a Descriptor, readable from YAML or JSON:
//
//	name: person
//	fields:
//	  - name: name
//	    type: string
//	    description: Full name
//	    constraints: {non_empty: true}
//	  - name: age
//	    type: integer
//	    constraints: {ge: 0, le: 150}
type Definition struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []FieldDefinition `yaml:"fields" json:"fields"`
}

// FieldDefinition declares one field. Items describes list elements; Fields describes the
// members of a nested object (and of list elements whose type is object).
type FieldDefinition struct {
	Name        string                `yaml:"name" json:"name"`
	Type        string                `yaml:"type" json:"type"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Optional    bool                  `yaml:"optional,omitempty" json:"optional,omitempty"`
	Items       *FieldDefinition      `yaml:"items,omitempty" json:"items,omitempty"`
	Fields      []FieldDefinition     `yaml:"fields,omitempty" json:"fields,omitempty"`
	Constraints ConstraintDefinitions `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Normalize   []string              `yaml:"normalize,omitempty" json:"normalize,omitempty"`
}

// ConstraintDefinitions lists the declarative constraints. They are applied in the order of
// the struct fields below.
type ConstraintDefinitions struct {
	NonEmpty  bool     `yaml:"non_empty,omitempty" json:"non_empty,omitempty"`
	MinLength *int     `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength *int     `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	MinItems  *int     `yaml:"min_items,omitempty" json:"min_items,omitempty"`
	MaxItems  *int     `yaml:"max_items,omitempty" json:"max_items,omitempty"`
	GE        *float64 `yaml:"ge,omitempty" json:"ge,omitempty"`
	GT        *float64 `yaml:"gt,omitempty" json:"gt,omitempty"`
	LE        *float64 `yaml:"le,omitempty" json:"le,omitempty"`
	LT        *float64 `yaml:"lt,omitempty" json:"lt,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Enum      []string `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// Build converts the definition into a Descriptor.
func (definition Definition) Build() (*Descriptor, error) {
	fields, err := buildFields(definition.Fields)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", definition.Name, err)
	}
	return New(definition.Name, definition.Description, fields...)
}

func buildFields(definitions []FieldDefinition) ([]Field, error) {
	fields := make([]Field, 0, len(definitions))
	for _, fieldDefinition := range definitions {
		field, err := fieldDefinition.build()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func (definition FieldDefinition) build() (Field, error) {
	fieldType, err := definition.buildType()
	if err != nil {
		return Field{}, err
	}
	constraints, err := definition.Constraints.build(definition.Name)
	if err != nil {
		return Field{}, err
	}
	normalizers := make([]Normalizer, 0, len(definition.Normalize))
	for _, normalizerName := range definition.Normalize {
		normalizer, ok := NormalizerByName(normalizerName)
		if !ok {
			return Field{}, fmt.Errorf(definitionNormalizeErrorFormat, definition.Name, ErrUnknownNormalizer, normalizerName)
		}
		normalizers = append(normalizers, normalizer)
	}
	return Field{
		Name:        definition.Name,
		Type:        fieldType,
		Description: definition.Description,
		Optional:    definition.Optional,
		Constraints: constraints,
		Normalizers: normalizers,
	}, nil
}

func (definition FieldDefinition) buildType() (Type, error) {
	switch strings.ToLower(strings.TrimSpace(definition.Type)) {
	case "string", "str":
		return String(), nil
	case "integer", "int":
		return Integer(), nil
	case "float", "number":
		return Float(), nil
	case "boolean", "bool":
		return Boolean(), nil
	case "list", "array":
		if definition.Items == nil {
			return Type{}, fmt.Errorf(definitionFieldErrorFormat, definition.Name, ErrMissingItems)
		}
		items := *definition.Items
		if items.Name == "" {
			items.Name = definition.Name
		}
		elementType, err := items.buildType()
		if err != nil {
			return Type{}, err
		}
		return ListOf(elementType), nil
	case "object":
		if len(definition.Fields) == 0 {
			return Type{}, fmt.Errorf(definitionFieldErrorFormat, definition.Name, ErrMissingFields)
		}
		nestedFields, err := buildFields(definition.Fields)
		if err != nil {
			return Type{}, fmt.Errorf(definitionFieldErrorFormat, definition.Name, err)
		}
		nested, err := New(definition.Name, definition.Description, nestedFields...)
		if err != nil {
			return Type{}, err
		}
		return Object(nested), nil
	default:
		return Type{}, fmt.Errorf(definitionTypeErrorFormat, definition.Name, ErrUnknownType, definition.Type)
	}
}

func (definitions ConstraintDefinitions) build(fieldName string) ([]Constraint, error) {
	var constraints []Constraint
	if definitions.NonEmpty {
		constraints = append(constraints, NonEmpty())
	}
	if definitions.MinLength != nil {
		constraints = append(constraints, MinLength(*definitions.MinLength))
	}
	if definitions.MaxLength != nil {
		constraints = append(constraints, MaxLength(*definitions.MaxLength))
	}
	if definitions.MinItems != nil {
		constraints = append(constraints, MinItems(*definitions.MinItems))
	}
	if definitions.MaxItems != nil {
		constraints = append(constraints, MaxItems(*definitions.MaxItems))
	}
	if definitions.GE != nil {
		constraints = append(constraints, Min(*definitions.GE))
	}
	if definitions.GT != nil {
		constraints = append(constraints, GreaterThan(*definitions.GT))
	}
	if definitions.LE != nil {
		constraints = append(constraints, Max(*definitions.LE))
	}
	if definitions.LT != nil {
		constraints = append(constraints, LessThan(*definitions.LT))
	}
	if definitions.Pattern != "" {
		expression, err := regexp.Compile(definitions.Pattern)
		if err != nil {
			return nil, fmt.Errorf(definitionPatternErrorFormat, fieldName, definitions.Pattern, err)
		}
		constraints = append(constraints, Pattern(expression))
	}
	if len(definitions.Enum) > 0 {
		constraints = append(constraints, OneOf(definitions.Enum...))
	}
	return constraints, nil
}

// Parse reads a schema document. Documents with a top-level "properties" key are treated as
// JSON Schema and converted with FromJSONSchema; anything else must be a Definition. YAML is a
// superset of JSON here, so both encodings are accepted.
func Parse(name string, content []byte) (*Descriptor, error) {
	var probe map[string]any
	if err := yaml.Unmarshal(content, &probe); err != nil {
		return nil, fmt.Errorf(definitionUnmarshalErrorFormat, err)
	}
	if _, isJSONSchema := probe[jsonSchemaPropertiesKey]; isJSONSchema {
		return FromJSONSchema(name, content)
	}
	var definition Definition
	if err := yaml.Unmarshal(content, &definition); err != nil {
		return nil, fmt.Errorf(definitionUnmarshalErrorFormat, err)
	}
	if strings.TrimSpace(definition.Name) == "" {
		definition.Name = name
	}
	return definition.Build()
}

// LoadFile reads and parses a schema document from disk. The file's base name, without
// extension, names the schema when the document does not.
func LoadFile(path string) (*Descriptor, error) {
	cleanPath := filepath.Clean(path)
	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf(definitionReadErrorFormat, cleanPath, err)
	}
	baseName := strings.TrimSuffix(filepath.Base(cleanPath), filepath.Ext(cleanPath))
	return Parse(baseName, content)
}
