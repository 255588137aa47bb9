// Package parse turns raw generation output into a JSON object. It is the structural step that
// runs before semantic validation.
package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	excerptLimit        = 160
	errorMessageFormat  = "parse output: %s"
	errorWithCause      = "parse output: %s: %v"
	reasonEmpty         = "empty output"
	reasonNoObject      = "no JSON object found"
	reasonInvalidJSON   = "invalid JSON"
	reasonNotObject     = "top-level value is not an object"
	reasonTrailingData  = "unexpected data after JSON object"
	reasonUnencodable   = "structured output is not JSON encodable"
	reasonUnsupportedIn = "unsupported structured output"
)

var (
	ErrEmptyOutput = errors.New(reasonEmpty)
	ErrNoObject    = errors.New(reasonNoObject)

	codeFencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")
)

// Error reports why raw output could not be decoded into an object.
type Error struct {
	Reason  string
	Excerpt string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrEmptyOutput) && !errors.Is(e.Err, ErrNoObject) {
		return fmt.Sprintf(errorWithCause, e.Reason, e.Err)
	}
	return fmt.Sprintf(errorMessageFormat, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Object extracts the JSON object carried by text. Markdown code fences and prose around the
// object are tolerated; anything else (single quotes, trailing commas, bare keys) is left to
// repair. Numbers are decoded as json.Number so integers keep their precision.
func Object(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &Error{Reason: reasonEmpty, Err: ErrEmptyOutput}
	}
	candidate := extractObject(trimmed)
	if candidate == "" {
		return nil, &Error{Reason: reasonNoObject, Excerpt: excerpt(trimmed), Err: ErrNoObject}
	}
	return decodeObject(candidate)
}

// FromValue accepts output a generation service already structured. Values are re-encoded so
// that they reach the validator in the same shape Object produces.
func FromValue(value any) (map[string]any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, &Error{Reason: reasonEmpty, Err: ErrEmptyOutput}
	case string:
		return Object(typed)
	case []byte:
		return Object(string(typed))
	case map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, &Error{Reason: reasonUnencodable, Err: err}
		}
		return decodeObject(string(encoded))
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, &Error{Reason: reasonUnsupportedIn, Err: err}
		}
		return decodeObject(string(encoded))
	}
}

func extractObject(text string) string {
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text
	}
	if matches := codeFencePattern.FindStringSubmatch(text); len(matches) == 2 {
		fenced := strings.TrimSpace(matches[1])
		if strings.HasPrefix(fenced, "{") {
			return fenced
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func decodeObject(candidate string) (map[string]any, error) {
	decoder := json.NewDecoder(strings.NewReader(candidate))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, &Error{Reason: reasonInvalidJSON, Excerpt: excerpt(candidate), Err: err}
	}
	object, ok := decoded.(map[string]any)
	if !ok {
		return nil, &Error{Reason: reasonNotObject, Excerpt: excerpt(candidate), Err: fmt.Errorf("got %T", decoded)}
	}
	var trailing json.RawMessage
	if err := decoder.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, &Error{Reason: reasonTrailingData, Excerpt: excerpt(candidate), Err: errTrailing(trailing, err)}
	}
	return object, nil
}

func errTrailing(trailing json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("found %s", excerpt(string(bytes.TrimSpace(trailing))))
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "…"
}
