package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/structgen/internal/schema"
)

var (
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
	ErrMissingSchema      = errors.New("schema is required")
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrMissingGenerator   = errors.New("generator is required")
)

// Generator is the generation service. Implementations return raw text, a structured object
// or both; transport failures, timeouts and cancellation are returned as errors.
type Generator interface {
	Generate(ctx context.Context, request LLMRequest) (LLMResponse, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, request LLMRequest) (LLMResponse, error)

func (f GeneratorFunc) Generate(ctx context.Context, request LLMRequest) (LLMResponse, error) {
	return f(ctx, request)
}

// Stage distinguishes ordinary attempts from the repair call.
type Stage string

const (
	StageAttempt Stage = "attempt"
	StageRepair  Stage = "repair"
)

type LLMRequest struct {
	Prompt  Prompt
	Schema  *schema.Descriptor
	Stage   Stage
	Attempt int
}

type LLMResponse struct {
	RawText    string
	Structured map[string]any
}

// ErrorKind classifies an ErrorRecord.
type ErrorKind string

const (
	SchemaValidationError ErrorKind = "SchemaValidationError"
	ParseError            ErrorKind = "ParseError"
	ServiceError          ErrorKind = "ServiceError"
	RepairFailure         ErrorKind = "RepairFailure"
)

// ErrorRecord is one failed attempt or a failed repair. Attempt is 1-based; a repair record
// carries the number of generation attempts plus one.
type ErrorRecord struct {
	Attempt int       `json:"attempt"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("attempt %d (%s): %s", r.Attempt, r.Kind, r.Message)
}

// Result is the final outcome of one execution. Value is present only on success; Errors is
// never nil and keeps every failure in the order it happened, including those that preceded a
// successful attempt or repair.
type Result struct {
	Success  bool           `json:"success"`
	Value    map[string]any `json:"value,omitempty"`
	Errors   []ErrorRecord  `json:"errors"`
	RunID    string         `json:"run_id"`
	Attempts int            `json:"attempts"`
	Repaired bool           `json:"repaired"`
	Duration time.Duration  `json:"duration_ns"`
}

// Request is an immutable validation request.
type Request struct {
	prompt        Prompt
	schema        *schema.Descriptor
	maxAttempts   int
	repairEnabled bool
}

// NewRequest validates and builds a Request. The prompt is copied.
func NewRequest(prompt Prompt, descriptor *schema.Descriptor, maxAttempts int, repairEnabled bool) (Request, error) {
	if maxAttempts < 1 {
		return Request{}, fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, maxAttempts)
	}
	if descriptor == nil {
		return Request{}, ErrMissingSchema
	}
	if prompt.IsEmpty() {
		return Request{}, ErrEmptyPrompt
	}
	return Request{
		prompt:        prompt.clone(),
		schema:        descriptor,
		maxAttempts:   maxAttempts,
		repairEnabled: repairEnabled,
	}, nil
}

// Prompt returns a copy of the original prompt.
func (r Request) Prompt() Prompt { return r.prompt.clone() }

func (r Request) Schema() *schema.Descriptor { return r.schema }
func (r Request) MaxAttempts() int           { return r.maxAttempts }
func (r Request) RepairEnabled() bool        { return r.repairEnabled }

func (r Request) valid() bool { return r.schema != nil && r.maxAttempts >= 1 }

func (r Request) schemaName() string {
	if r.schema == nil {
		return ""
	}
	return strings.TrimSpace(r.schema.Name())
}
