package validate_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/temirov/structgen/internal/schema"
	"github.com/temirov/structgen/internal/validate"
)

func personSchema() *schema.Descriptor {
	return schema.MustNew("person", "",
		schema.Field{Name: "name", Type: schema.String(), Constraints: []schema.Constraint{schema.NonEmpty()}},
		schema.Field{Name: "age", Type: schema.Integer(), Constraints: []schema.Constraint{schema.Min(0), schema.Max(150)}},
	)
}

func productSchema() *schema.Descriptor {
	supplier := schema.MustNew("supplier", "",
		schema.Field{Name: "city", Type: schema.String(), Constraints: []schema.Constraint{schema.NonEmpty()}},
		schema.Field{Name: "country", Type: schema.String(), Constraints: []schema.Constraint{schema.OneOf("US", "DE")}},
	)
	return schema.MustNew("product", "",
		schema.Field{Name: "name", Type: schema.String(), Normalizers: []schema.Normalizer{schema.TrimSpace(), schema.Title()}, Constraints: []schema.Constraint{schema.NonEmpty()}},
		schema.Field{Name: "price", Type: schema.Float(), Constraints: []schema.Constraint{schema.GreaterThan(0)}},
		schema.Field{Name: "in_stock", Type: schema.Boolean()},
		schema.Field{Name: "tags", Type: schema.ListOf(schema.String()), Normalizers: []schema.Normalizer{schema.TrimSpace(), schema.Lower()}, Constraints: []schema.Constraint{schema.NonEmpty()}},
		schema.Field{Name: "rating", Type: schema.Float(), Optional: true, Constraints: []schema.Constraint{schema.Min(0), schema.Max(5)}},
		schema.Field{Name: "supplier", Type: schema.Object(supplier), Optional: true},
	)
}

func TestValidateReportsEveryViolatedField(t *testing.T) {
	outcome := validate.Validate(map[string]any{"name": "", "age": json.Number("200")}, personSchema())
	require.False(t, outcome.OK)
	assert.Nil(t, outcome.Value)
	assert.Equal(t, []validate.Violation{
		{Path: "name", Message: "must not be empty"},
		{Path: "age", Message: "must be less than or equal to 150"},
	}, outcome.Violations)
	assert.Equal(t, "name: must not be empty; age: must be less than or equal to 150", outcome.Message())

	var validationErr *validate.Error
	require.True(t, errors.As(outcome.Err(), &validationErr))
	assert.Len(t, validationErr.Violations, 2)
}

func TestValidateCollectAllSkipsValidFields(t *testing.T) {
	descriptor := schema.MustNew("abc", "",
		schema.Field{Name: "a", Type: schema.String(), Constraints: []schema.Constraint{schema.NonEmpty()}},
		schema.Field{Name: "b", Type: schema.Integer()},
		schema.Field{Name: "c", Type: schema.Integer(), Constraints: []schema.Constraint{schema.Max(10)}},
	)
	outcome := validate.Validate(map[string]any{"c": json.Number("11"), "b": json.Number("1"), "a": ""}, descriptor)
	require.False(t, outcome.OK)
	paths := make([]string, 0, len(outcome.Violations))
	for _, violation := range outcome.Violations {
		paths = append(paths, violation.Path)
	}
	assert.Equal(t, []string{"a", "c"}, paths)
}

func TestValidateFirstViolationPerField(t *testing.T) {
	descriptor := schema.MustNew("code", "",
		schema.Field{Name: "code", Type: schema.String(), Constraints: []schema.Constraint{schema.MinLength(5), schema.OneOf("ABCDE")}},
	)
	outcome := validate.Validate(map[string]any{"code": "xy"}, descriptor)
	require.Len(t, outcome.Violations, 1)
	assert.Equal(t, "length 2 is less than minimum 5", outcome.Violations[0].Message)
}

func TestValidateSuccessNormalizes(t *testing.T) {
	candidate := map[string]any{
		"name":     "  wireless mouse ",
		"price":    json.Number("19"),
		"in_stock": true,
		"tags":     []any{" Electronics", "USB "},
		"extra":    "dropped",
	}
	outcome := validate.Validate(candidate, productSchema())
	require.True(t, outcome.OK, outcome.Message())
	assert.Empty(t, outcome.Violations)
	assert.Equal(t, map[string]any{
		"name":     "Wireless Mouse",
		"price":    float64(19),
		"in_stock": true,
		"tags":     []any{"electronics", "usb"},
	}, outcome.Value)
	assert.Equal(t, " Electronics", candidate["tags"].([]any)[0])
}

func TestValidateTypeAndStructure(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(candidate map[string]any)
		expected []validate.Violation
	}{
		{
			name:     "missing required",
			mutate:   func(candidate map[string]any) { delete(candidate, "price") },
			expected: []validate.Violation{{Path: "price", Message: "field required"}},
		},
		{
			name:     "null required",
			mutate:   func(candidate map[string]any) { candidate["in_stock"] = nil },
			expected: []validate.Violation{{Path: "in_stock", Message: "field required"}},
		},
		{
			name:     "string is not coerced to number",
			mutate:   func(candidate map[string]any) { candidate["price"] = "19.99" },
			expected: []validate.Violation{{Path: "price", Message: "expected float, got string"}},
		},
		{
			name:     "string is not coerced to boolean",
			mutate:   func(candidate map[string]any) { candidate["in_stock"] = "yes" },
			expected: []validate.Violation{{Path: "in_stock", Message: "expected boolean, got string"}},
		},
		{
			name:     "list element type",
			mutate:   func(candidate map[string]any) { candidate["tags"] = []any{"a", json.Number("2")} },
			expected: []validate.Violation{{Path: "tags[1]", Message: "expected string, got number"}},
		},
		{
			name:     "empty list",
			mutate:   func(candidate map[string]any) { candidate["tags"] = []any{} },
			expected: []validate.Violation{{Path: "tags", Message: "must not be empty"}},
		},
		{
			name:     "optional out of range",
			mutate:   func(candidate map[string]any) { candidate["rating"] = json.Number("7.5") },
			expected: []validate.Violation{{Path: "rating", Message: "must be less than or equal to 5"}},
		},
		{
			name: "nested object collects all",
			mutate: func(candidate map[string]any) {
				candidate["supplier"] = map[string]any{"city": " ", "country": "FR"}
			},
			expected: []validate.Violation{
				{Path: "supplier.city", Message: "must not be empty"},
				{Path: "supplier.country", Message: "must be one of: US, DE"},
			},
		},
		{
			name:     "nested object type",
			mutate:   func(candidate map[string]any) { candidate["supplier"] = []any{} },
			expected: []validate.Violation{{Path: "supplier", Message: "expected object(supplier), got list"}},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			candidate := map[string]any{
				"name":     "mouse",
				"price":    json.Number("9.5"),
				"in_stock": false,
				"tags":     []any{"usb"},
			}
			testCase.mutate(candidate)
			outcome := validate.Validate(candidate, productSchema())
			require.False(t, outcome.OK)
			assert.Equal(t, testCase.expected, outcome.Violations)
		})
	}
}

func TestValidateIntegers(t *testing.T) {
	descriptor := schema.MustNew("count", "", schema.Field{Name: "n", Type: schema.Integer()})
	testCases := []struct {
		name      string
		raw       any
		expected  any
		violation string
	}{
		{name: "json integer", raw: json.Number("42"), expected: int64(42)},
		{name: "exponent whole", raw: json.Number("1e2"), expected: int64(100)},
		{name: "whole float", raw: float64(3), expected: int64(3)},
		{name: "fraction", raw: json.Number("4.5"), violation: "expected integer, got non-integer number 4.5"},
		{name: "string", raw: "4", violation: "expected integer, got string"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			outcome := validate.Validate(map[string]any{"n": testCase.raw}, descriptor)
			if testCase.violation != "" {
				require.False(t, outcome.OK)
				assert.Equal(t, "n: "+testCase.violation, outcome.Message())
				return
			}
			require.True(t, outcome.OK, outcome.Message())
			assert.Equal(t, testCase.expected, outcome.Value["n"])
		})
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	descriptor := personSchema()
	rapid.Check(t, func(rt *rapid.T) {
		candidate := map[string]any{}
		if rapid.Bool().Draw(rt, "hasName") {
			candidate["name"] = rapid.StringN(0, 8, -1).Draw(rt, "name")
		}
		if rapid.Bool().Draw(rt, "hasAge") {
			candidate["age"] = json.Number(rapid.SampledFrom([]string{"-1", "0", "65", "150", "151", "2.5"}).Draw(rt, "age"))
		}
		first := validate.Validate(candidate, descriptor)
		second := validate.Validate(candidate, descriptor)
		if first.OK != second.OK || first.Message() != second.Message() {
			rt.Fatalf("outcomes differ: %q vs %q", first.Message(), second.Message())
		}
	})
}

func TestValidateViolationsFollowDeclarationOrder(t *testing.T) {
	descriptor := schema.MustNew("flags", "",
		schema.Field{Name: "a", Type: schema.Boolean()},
		schema.Field{Name: "b", Type: schema.Boolean()},
		schema.Field{Name: "c", Type: schema.Boolean()},
		schema.Field{Name: "d", Type: schema.Boolean()},
	)
	names := []string{"a", "b", "c", "d"}
	rapid.Check(t, func(rt *rapid.T) {
		candidate := map[string]any{}
		var expected []string
		for _, name := range names {
			if rapid.Bool().Draw(rt, "valid_"+name) {
				candidate[name] = true
				continue
			}
			candidate[name] = "not a boolean"
			expected = append(expected, name)
		}
		outcome := validate.Validate(candidate, descriptor)
		var actual []string
		for _, violation := range outcome.Violations {
			actual = append(actual, violation.Path)
		}
		if len(expected) != len(actual) {
			rt.Fatalf("expected violations %v, got %v", expected, actual)
		}
		for index := range expected {
			if expected[index] != actual[index] {
				rt.Fatalf("expected violations %v, got %v", expected, actual)
			}
		}
		if outcome.OK != (len(expected) == 0) {
			rt.Fatalf("unexpected ok=%v for violations %v", outcome.OK, expected)
		}
	})
}
