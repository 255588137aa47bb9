// Package validate checks structurally parsed candidates against a schema.Descriptor.
//
// Validation is pure: the same candidate and descriptor always produce the same Outcome.
// Every violated field is reported (collect-all) in declaration order, while within one field
// evaluation stops at the first failure.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/temirov/structgen/internal/schema"
)

const (
	messageSeparator     = "; "
	messageRequired      = "field required"
	typeMismatchFormat   = "expected %s, got %s"
	notWholeNumberFormat = "expected integer, got non-integer number %s"
	outOfRangeFormat     = "integer %s is out of range"
)

// Violation is one field-scoped failure. Path uses dots for nested objects and brackets for
// list positions, for example "address.city" or "tags[1]".
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// Outcome is the result of one validation. Value is set only when OK is true.
type Outcome struct {
	OK         bool
	Value      map[string]any
	Violations []Violation
}

// Message concatenates the violations in declaration order.
func (o Outcome) Message() string {
	parts := make([]string, 0, len(o.Violations))
	for _, violation := range o.Violations {
		parts = append(parts, violation.String())
	}
	return strings.Join(parts, messageSeparator)
}

// Err returns nil for a successful outcome and an *Error otherwise.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	return &Error{Violations: append([]Violation(nil), o.Violations...)}
}

// Error wraps the violations of a failed outcome.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	return Outcome{Violations: e.Violations}.Message()
}

// Validate checks candidate against descriptor. Missing optional fields are skipped, unknown
// keys are dropped from the returned value and string fields are normalized before their
// constraints run. Numbers are never parsed out of strings.
func Validate(candidate map[string]any, descriptor *schema.Descriptor) Outcome {
	value, violations := validateObject(candidate, descriptor, "")
	if len(violations) > 0 {
		return Outcome{Violations: violations}
	}
	return Outcome{OK: true, Value: value}
}

func validateObject(candidate map[string]any, descriptor *schema.Descriptor, prefix string) (map[string]any, []Violation) {
	normalized := make(map[string]any, descriptor.Len())
	var violations []Violation
	for _, field := range descriptor.Describe() {
		path := joinPath(prefix, field.Name)
		raw, present := candidate[field.Name]
		if !present || raw == nil {
			if !field.Optional {
				violations = append(violations, Violation{Path: path, Message: messageRequired})
			}
			continue
		}
		value, fieldViolations := validateField(raw, field, path)
		if len(fieldViolations) > 0 {
			violations = append(violations, fieldViolations...)
			continue
		}
		normalized[field.Name] = value
	}
	return normalized, violations
}

func validateField(raw any, field schema.Field, path string) (any, []Violation) {
	value, violations := convert(raw, field.Type, path, field.Normalizers)
	if len(violations) > 0 {
		return nil, violations
	}
	for _, constraint := range field.Constraints {
		if err := constraint.Check(value); err != nil {
			return nil, []Violation{{Path: path, Message: err.Error()}}
		}
	}
	return value, nil
}

func convert(raw any, fieldType schema.Type, path string, normalizers []schema.Normalizer) (any, []Violation) {
	switch fieldType.Kind {
	case schema.KindString:
		text, ok := raw.(string)
		if !ok {
			return nil, mismatch(path, fieldType, raw)
		}
		for _, normalizer := range normalizers {
			text = normalizer.Apply(text)
		}
		return text, nil
	case schema.KindInteger:
		return toInteger(raw, path)
	case schema.KindFloat:
		number, ok := toFloat(raw)
		if !ok {
			return nil, mismatch(path, fieldType, raw)
		}
		return number, nil
	case schema.KindBoolean:
		flag, ok := raw.(bool)
		if !ok {
			return nil, mismatch(path, fieldType, raw)
		}
		return flag, nil
	case schema.KindList:
		return convertList(raw, fieldType, path, normalizers)
	case schema.KindObject:
		object, ok := raw.(map[string]any)
		if !ok {
			return nil, mismatch(path, fieldType, raw)
		}
		nested, violations := validateObject(object, fieldType.Object, path)
		if len(violations) > 0 {
			return nil, violations
		}
		return nested, nil
	default:
		return nil, mismatch(path, fieldType, raw)
	}
}

func convertList(raw any, fieldType schema.Type, path string, normalizers []schema.Normalizer) (any, []Violation) {
	items, ok := raw.([]any)
	if !ok {
		return nil, mismatch(path, fieldType, raw)
	}
	converted := make([]any, 0, len(items))
	for position, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, position)
		if item == nil {
			return nil, []Violation{{Path: itemPath, Message: fmt.Sprintf(typeMismatchFormat, fieldType.Elem.String(), "null")}}
		}
		value, violations := convert(item, *fieldType.Elem, itemPath, normalizers)
		if len(violations) > 0 {
			return nil, violations
		}
		converted = append(converted, value)
	}
	return converted, nil
}

func toInteger(raw any, path string) (any, []Violation) {
	switch typed := raw.(type) {
	case json.Number:
		if integer, err := strconv.ParseInt(typed.String(), 10, 64); err == nil {
			return integer, nil
		}
		number, err := typed.Float64()
		if err != nil {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf(outOfRangeFormat, typed.String())}}
		}
		return wholeNumber(number, typed.String(), path)
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case float64:
		return wholeNumber(typed, strconv.FormatFloat(typed, 'g', -1, 64), path)
	default:
		return nil, mismatch(path, schema.Integer(), raw)
	}
}

func wholeNumber(number float64, text string, path string) (any, []Violation) {
	if number != math.Trunc(number) || math.IsInf(number, 0) {
		return nil, []Violation{{Path: path, Message: fmt.Sprintf(notWholeNumberFormat, text)}}
	}
	if number >= math.MaxInt64 || number < math.MinInt64 {
		return nil, []Violation{{Path: path, Message: fmt.Sprintf(outOfRangeFormat, text)}}
	}
	return int64(number), nil
}

func toFloat(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case json.Number:
		number, err := typed.Float64()
		return number, err == nil
	case float64:
		return typed, true
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	default:
		return 0, false
	}
}

func mismatch(path string, expected schema.Type, raw any) []Violation {
	return []Violation{{Path: path, Message: fmt.Sprintf(typeMismatchFormat, expected.String(), describeValue(raw))}}
}

func describeValue(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int64, int:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

func joinPath(prefix string, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
