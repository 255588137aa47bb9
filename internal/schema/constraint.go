package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Constraint is a named predicate evaluated against an already type-checked value.
// Values reach Check as string, int64, float64, bool, []any or map[string]any.
type Constraint interface {
	Name() string
	Describe() string
	Check(value any) error
}

// jsonSchemaContributor is implemented by constraints that map onto JSON Schema keywords.
type jsonSchemaContributor interface {
	contribute(kind Kind, document map[string]any)
}

const (
	constraintMinLength = "min_length"
	constraintMaxLength = "max_length"
	constraintNonEmpty  = "non_empty"
	constraintGE        = "ge"
	constraintLE        = "le"
	constraintGT        = "gt"
	constraintLT        = "lt"
	constraintPattern   = "pattern"
	constraintEnum      = "enum"
	constraintMinItems  = "min_items"
	constraintMaxItems  = "max_items"
)

var errNotMeasurable = errors.New("value has no length")

type lengthConstraint struct {
	name  string
	bound int
	isMax bool
}

// MinLength requires at least n characters (strings) or n elements (lists).
func MinLength(n int) Constraint { return lengthConstraint{name: constraintMinLength, bound: n} }

// MaxLength allows at most n characters (strings) or n elements (lists).
func MaxLength(n int) Constraint {
	return lengthConstraint{name: constraintMaxLength, bound: n, isMax: true}
}

func (c lengthConstraint) Name() string { return c.name }

func (c lengthConstraint) Describe() string {
	if c.isMax {
		return fmt.Sprintf("at most %d characters or items", c.bound)
	}
	return fmt.Sprintf("at least %d characters or items", c.bound)
}

func (c lengthConstraint) Check(value any) error {
	length, err := measure(value)
	if err != nil {
		return err
	}
	if c.isMax && length > c.bound {
		return fmt.Errorf("length %d exceeds maximum %d", length, c.bound)
	}
	if !c.isMax && length < c.bound {
		return fmt.Errorf("length %d is less than minimum %d", length, c.bound)
	}
	return nil
}

func (c lengthConstraint) contribute(kind Kind, document map[string]any) {
	switch {
	case kind == KindList && c.isMax:
		document["maxItems"] = c.bound
	case kind == KindList:
		document["minItems"] = c.bound
	case c.isMax:
		document["maxLength"] = c.bound
	default:
		document["minLength"] = c.bound
	}
}

type nonEmptyConstraint struct{}

// NonEmpty rejects blank strings and empty lists.
func NonEmpty() Constraint { return nonEmptyConstraint{} }

func (nonEmptyConstraint) Name() string     { return constraintNonEmpty }
func (nonEmptyConstraint) Describe() string { return "must not be empty" }

func (nonEmptyConstraint) Check(value any) error {
	if text, ok := value.(string); ok {
		if strings.TrimSpace(text) == "" {
			return errors.New("must not be empty")
		}
		return nil
	}
	length, err := measure(value)
	if err != nil {
		return err
	}
	if length == 0 {
		return errors.New("must not be empty")
	}
	return nil
}

func (nonEmptyConstraint) contribute(kind Kind, document map[string]any) {
	if kind == KindList {
		document["minItems"] = 1
		return
	}
	document["minLength"] = 1
}

type itemsConstraint struct {
	name  string
	bound int
	isMax bool
}

// MinItems requires a list to hold at least n elements.
func MinItems(n int) Constraint { return itemsConstraint{name: constraintMinItems, bound: n} }

// MaxItems allows a list to hold at most n elements.
func MaxItems(n int) Constraint {
	return itemsConstraint{name: constraintMaxItems, bound: n, isMax: true}
}

func (c itemsConstraint) Name() string { return c.name }

func (c itemsConstraint) Describe() string {
	if c.isMax {
		return fmt.Sprintf("at most %d items", c.bound)
	}
	return fmt.Sprintf("at least %d items", c.bound)
}

func (c itemsConstraint) Check(value any) error {
	items, ok := value.([]any)
	if !ok {
		return fmt.Errorf("expected list, got %T", value)
	}
	if c.isMax && len(items) > c.bound {
		return fmt.Errorf("has %d items, maximum is %d", len(items), c.bound)
	}
	if !c.isMax && len(items) < c.bound {
		return fmt.Errorf("has %d items, minimum is %d", len(items), c.bound)
	}
	return nil
}

func (c itemsConstraint) contribute(_ Kind, document map[string]any) {
	if c.isMax {
		document["maxItems"] = c.bound
		return
	}
	document["minItems"] = c.bound
}

type boundConstraint struct {
	name  string
	bound float64
}

// Min requires value >= bound.
func Min(bound float64) Constraint { return boundConstraint{name: constraintGE, bound: bound} }

// Max requires value <= bound.
func Max(bound float64) Constraint { return boundConstraint{name: constraintLE, bound: bound} }

// GreaterThan requires value > bound.
func GreaterThan(bound float64) Constraint { return boundConstraint{name: constraintGT, bound: bound} }

// LessThan requires value < bound.
func LessThan(bound float64) Constraint { return boundConstraint{name: constraintLT, bound: bound} }

func (c boundConstraint) Name() string { return c.name }

func (c boundConstraint) Describe() string {
	return c.relation() + " " + formatNumber(c.bound)
}

func (c boundConstraint) relation() string {
	switch c.name {
	case constraintGE:
		return "must be greater than or equal to"
	case constraintLE:
		return "must be less than or equal to"
	case constraintGT:
		return "must be greater than"
	default:
		return "must be less than"
	}
}

func (c boundConstraint) Check(value any) error {
	number, ok := numeric(value)
	if !ok {
		return fmt.Errorf("expected number, got %T", value)
	}
	var satisfied bool
	switch c.name {
	case constraintGE:
		satisfied = number >= c.bound
	case constraintLE:
		satisfied = number <= c.bound
	case constraintGT:
		satisfied = number > c.bound
	default:
		satisfied = number < c.bound
	}
	if !satisfied {
		return errors.New(c.Describe())
	}
	return nil
}

func (c boundConstraint) contribute(_ Kind, document map[string]any) {
	switch c.name {
	case constraintGE:
		document["minimum"] = c.bound
	case constraintLE:
		document["maximum"] = c.bound
	case constraintGT:
		document["exclusiveMinimum"] = c.bound
	default:
		document["exclusiveMaximum"] = c.bound
	}
}

var errNilPattern = errors.New("pattern constraint has no expression")

type patternConstraint struct {
	expression *regexp.Regexp
}

// Pattern requires strings to match expression. A nil expression rejects every value.
func Pattern(expression *regexp.Regexp) Constraint {
	return patternConstraint{expression: expression}
}

func (c patternConstraint) Name() string { return constraintPattern }

func (c patternConstraint) Describe() string {
	if c.expression == nil {
		return "must match a pattern (none set)"
	}
	return fmt.Sprintf("must match %s", c.expression.String())
}

func (c patternConstraint) Check(value any) error {
	if c.expression == nil {
		return errNilPattern
	}
	text, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if !c.expression.MatchString(text) {
		return fmt.Errorf("does not match pattern %s", c.expression.String())
	}
	return nil
}

func (c patternConstraint) contribute(_ Kind, document map[string]any) {
	if c.expression == nil {
		return
	}
	document["pattern"] = c.expression.String()
}

type enumConstraint struct {
	values []string
}

// OneOf restricts strings to the listed values.
func OneOf(values ...string) Constraint {
	return enumConstraint{values: append([]string(nil), values...)}
}

func (c enumConstraint) Name() string { return constraintEnum }

func (c enumConstraint) Describe() string {
	return "one of " + strings.Join(c.values, ", ")
}

func (c enumConstraint) Check(value any) error {
	text, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	for _, allowed := range c.values {
		if text == allowed {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(c.values, ", "))
}

func (c enumConstraint) contribute(_ Kind, document map[string]any) {
	enumValues := make([]any, 0, len(c.values))
	for _, value := range c.values {
		enumValues = append(enumValues, value)
	}
	document["enum"] = enumValues
}

type customConstraint struct {
	name        string
	description string
	predicate   func(any) error
}

// Custom wraps an arbitrary predicate. The predicate's error text becomes the violation message.
func Custom(name string, description string, predicate func(any) error) Constraint {
	return customConstraint{name: name, description: description, predicate: predicate}
}

func (c customConstraint) Name() string     { return c.name }
func (c customConstraint) Describe() string { return c.description }

func (c customConstraint) Check(value any) error {
	if c.predicate == nil {
		return nil
	}
	return c.predicate(value)
}

func measure(value any) (int, error) {
	switch typed := value.(type) {
	case string:
		return utf8.RuneCountInString(typed), nil
	case []any:
		return len(typed), nil
	default:
		return 0, fmt.Errorf("%w: %T", errNotMeasurable, value)
	}
}

func numeric(value any) (float64, bool) {
	switch typed := value.(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	default:
		return 0, false
	}
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
