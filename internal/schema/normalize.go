package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	normalizerTrim  = "trim"
	normalizerLower = "lower"
	normalizerUpper = "upper"
	normalizerTitle = "title"
)

// Normalizer rewrites a string value before constraints are evaluated. For list fields it is
// applied to every string element.
type Normalizer struct {
	name  string
	apply func(string) string
}

func (n Normalizer) Name() string { return n.name }

// Apply returns the normalized text.
func (n Normalizer) Apply(text string) string {
	if n.apply == nil {
		return text
	}
	return n.apply(text)
}

func TrimSpace() Normalizer { return Normalizer{name: normalizerTrim, apply: strings.TrimSpace} }
func Lower() Normalizer     { return Normalizer{name: normalizerLower, apply: strings.ToLower} }
func Upper() Normalizer     { return Normalizer{name: normalizerUpper, apply: strings.ToUpper} }

// Title title-cases each word. A Caser is stateful, so one is built per call.
func Title() Normalizer {
	return Normalizer{name: normalizerTitle, apply: func(text string) string {
		return cases.Title(language.Und).String(text)
	}}
}

// NormalizerByName resolves the declarative normalizer names.
func NormalizerByName(name string) (Normalizer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case normalizerTrim, "strip":
		return TrimSpace(), true
	case normalizerLower:
		return Lower(), true
	case normalizerUpper:
		return Upper(), true
	case normalizerTitle:
		return Title(), true
	default:
		return Normalizer{}, false
	}
}
