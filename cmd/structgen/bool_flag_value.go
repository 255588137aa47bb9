package structgen

import (
	"fmt"
	"strconv"
	"strings"
)

// boolChoiceValue is a pflag.Value for boolean flags that also accept yes/no and on/off, so
// `--repair=no` reads naturally next to a bare `--repair`.
type boolChoiceValue struct {
	target *bool
}

func newBoolChoiceValue(target *bool) *boolChoiceValue {
	return &boolChoiceValue{target: target}
}

func (value *boolChoiceValue) String() string {
	if value == nil || value.target == nil {
		return ""
	}
	return strconv.FormatBool(*value.target)
}

func (value *boolChoiceValue) Set(input string) error {
	parsed, ok := parseBoolChoice(input)
	if !ok {
		return fmt.Errorf("invalid boolean value %q (use true/false, yes/no or on/off)", input)
	}
	*value.target = parsed
	return nil
}

func (value *boolChoiceValue) Type() string { return "bool" }

// parseBoolChoice treats an empty input as true.
func parseBoolChoice(input string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "true", "t", "1", "yes", "y", "on":
		return true, true
	case "false", "f", "0", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
