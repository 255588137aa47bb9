package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

const (
	jsonSchemaDecodeErrorFormat  = "decode json schema %s: %w"
	jsonSchemaPropertyFormat     = "property %s: %w"
	jsonSchemaPatternErrorFormat = "property %s: compile pattern %q: %w"
	jsonSchemaTypeErrorFormat    = "property %s: %w %q"
)

var ErrNotObjectSchema = errors.New("json schema root must be an object with properties")

// FromJSONSchema converts a JSON Schema (or OpenAPI schema object) into a Descriptor. The
// document may be JSON or YAML. Required properties come first in their "required" order,
// the remaining properties follow alphabetically, because JSON object key order is not
// preserved by the decoder.
func FromJSONSchema(name string, content []byte) (*Descriptor, error) {
	var generic any
	if err := yaml.Unmarshal(content, &generic); err != nil {
		return nil, fmt.Errorf(jsonSchemaDecodeErrorFormat, name, err)
	}
	encoded, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf(jsonSchemaDecodeErrorFormat, name, err)
	}
	var document openapi3.Schema
	if err := json.Unmarshal(encoded, &document); err != nil {
		return nil, fmt.Errorf(jsonSchemaDecodeErrorFormat, name, err)
	}
	if len(document.Properties) == 0 {
		return nil, fmt.Errorf("schema %s: %w", name, ErrNotObjectSchema)
	}
	descriptorName := name
	if document.Title != "" {
		descriptorName = document.Title
	}
	return convertObjectSchema(descriptorName, &document)
}

func convertObjectSchema(name string, document *openapi3.Schema) (*Descriptor, error) {
	fields := make([]Field, 0, len(document.Properties))
	for _, propertyName := range orderedPropertyNames(document) {
		reference := document.Properties[propertyName]
		if reference == nil || reference.Value == nil {
			continue
		}
		field, err := convertProperty(propertyName, reference.Value)
		if err != nil {
			return nil, err
		}
		field.Optional = !contains(document.Required, propertyName)
		fields = append(fields, field)
	}
	return New(name, document.Description, fields...)
}

func orderedPropertyNames(document *openapi3.Schema) []string {
	names := make([]string, 0, len(document.Properties))
	seen := make(map[string]struct{}, len(document.Properties))
	for _, requiredName := range document.Required {
		if _, exists := document.Properties[requiredName]; !exists {
			continue
		}
		if _, duplicate := seen[requiredName]; duplicate {
			continue
		}
		seen[requiredName] = struct{}{}
		names = append(names, requiredName)
	}
	remaining := make([]string, 0, len(document.Properties))
	for propertyName := range document.Properties {
		if _, exists := seen[propertyName]; !exists {
			remaining = append(remaining, propertyName)
		}
	}
	sort.Strings(remaining)
	return append(names, remaining...)
}

func convertProperty(name string, property *openapi3.Schema) (Field, error) {
	fieldType, err := convertType(name, property)
	if err != nil {
		return Field{}, err
	}
	constraints, err := convertConstraints(name, property)
	if err != nil {
		return Field{}, err
	}
	return Field{
		Name:        name,
		Type:        fieldType,
		Description: property.Description,
		Constraints: constraints,
	}, nil
}

func convertType(name string, property *openapi3.Schema) (Type, error) {
	switch firstType(property.Type) {
	case openapi3.TypeString:
		return String(), nil
	case openapi3.TypeInteger:
		return Integer(), nil
	case openapi3.TypeNumber:
		return Float(), nil
	case openapi3.TypeBoolean:
		return Boolean(), nil
	case openapi3.TypeArray:
		if property.Items == nil || property.Items.Value == nil {
			return Type{}, fmt.Errorf(jsonSchemaPropertyFormat, name, ErrMissingItems)
		}
		elementType, err := convertType(name, property.Items.Value)
		if err != nil {
			return Type{}, err
		}
		return ListOf(elementType), nil
	case openapi3.TypeObject:
		nested, err := convertObjectSchema(name, property)
		if err != nil {
			return Type{}, fmt.Errorf(jsonSchemaPropertyFormat, name, err)
		}
		return Object(nested), nil
	default:
		return Type{}, fmt.Errorf(jsonSchemaTypeErrorFormat, name, ErrUnknownType, firstType(property.Type))
	}
}

func firstType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	for _, candidate := range types.Slice() {
		if candidate != openapi3.TypeNull {
			return candidate
		}
	}
	return ""
}

func convertConstraints(name string, property *openapi3.Schema) ([]Constraint, error) {
	var constraints []Constraint
	if property.MinLength > 0 {
		constraints = append(constraints, MinLength(int(property.MinLength)))
	}
	if property.MaxLength != nil {
		constraints = append(constraints, MaxLength(int(*property.MaxLength)))
	}
	if property.MinItems > 0 {
		constraints = append(constraints, MinItems(int(property.MinItems)))
	}
	if property.MaxItems != nil {
		constraints = append(constraints, MaxItems(int(*property.MaxItems)))
	}
	if property.Min != nil {
		if property.ExclusiveMin {
			constraints = append(constraints, GreaterThan(*property.Min))
		} else {
			constraints = append(constraints, Min(*property.Min))
		}
	}
	if property.Max != nil {
		if property.ExclusiveMax {
			constraints = append(constraints, LessThan(*property.Max))
		} else {
			constraints = append(constraints, Max(*property.Max))
		}
	}
	if property.Pattern != "" {
		expression, err := regexp.Compile(property.Pattern)
		if err != nil {
			return nil, fmt.Errorf(jsonSchemaPatternErrorFormat, name, property.Pattern, err)
		}
		constraints = append(constraints, Pattern(expression))
	}
	if len(property.Enum) > 0 {
		values := make([]string, 0, len(property.Enum))
		for _, value := range property.Enum {
			values = append(values, fmt.Sprint(value))
		}
		constraints = append(constraints, OneOf(values...))
	}
	return constraints, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
