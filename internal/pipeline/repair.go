package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/temirov/structgen/internal/schema"
	"github.com/temirov/structgen/internal/validate"
)

const repairInstructions = `You reformat malformed output into valid JSON. Do not invent, remove or change content; only fix the structure.
Rules:
- Emit exactly one JSON object and nothing else: no prose, no markdown fences.
- Use double quotes for every key and every string value; never single quotes.
- Quote all object keys.
- Remove trailing commas.
- Write booleans as true or false (not yes/no, True/False, "true").
- Write numbers without quotes, units or currency symbols.
- Use the field names and types listed in the schema.`

const repairFailurePreamble = "The output above did not satisfy the constraints. Error:"

// Repair failure stages.
const (
	RepairStageService    = "service"
	RepairStageParse      = "parse"
	RepairStageValidation = "validation"
)

// RepairError describes why the repair call did not produce a valid value.
type RepairError struct {
	Stage string
	Err   error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("repair %s failed: %v", e.Stage, e.Err)
}

func (e *RepairError) Unwrap() error { return e.Err }

// RepairParser reformats the last raw output with one extra generation call and validates
// the result. It is never retried.
type RepairParser struct {
	Generator Generator
	Timeout   time.Duration
	Tracer    trace.Tracer
}

// Repair returns a successful outcome, or a *RepairError. A failed validation also returns
// the outcome carrying the violations. failure is the error the raw output was rejected
// with; an empty failure omits that section from the prompt.
func (p RepairParser) Repair(ctx context.Context, rawText string, failure string, descriptor *schema.Descriptor, attempt int) (validate.Outcome, error) {
	spanCtx, span := p.tracer().Start(ctx, "pipeline.repair", trace.WithAttributes(
		attribute.String("schema", descriptor.Name()),
		attribute.Int("raw_length", len(rawText)),
	))
	defer span.End()

	outcome, err := p.repair(spanCtx, rawText, failure, descriptor, attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetStatus(codes.Ok, "")
	return outcome, nil
}

func (p RepairParser) repair(ctx context.Context, rawText string, failure string, descriptor *schema.Descriptor, attempt int) (validate.Outcome, error) {
	prompt, promptErr := repairPrompt(rawText, failure, descriptor)
	if promptErr != nil {
		return validate.Outcome{}, &RepairError{Stage: RepairStageService, Err: promptErr}
	}
	repairCtx, cancel := withOptionalTimeout(ctx, p.Timeout)
	defer cancel()
	response, generateErr := p.Generator.Generate(repairCtx, LLMRequest{
		Prompt:  prompt,
		Schema:  descriptor,
		Stage:   StageRepair,
		Attempt: attempt,
	})
	if generateErr != nil {
		return validate.Outcome{}, &RepairError{Stage: RepairStageService, Err: generateErr}
	}
	candidate, parseErr := structure(response)
	if parseErr != nil {
		return validate.Outcome{}, &RepairError{Stage: RepairStageParse, Err: parseErr}
	}
	outcome := validate.Validate(candidate, descriptor)
	if !outcome.OK {
		return outcome, &RepairError{Stage: RepairStageValidation, Err: outcome.Err()}
	}
	return outcome, nil
}

func (p RepairParser) tracer() trace.Tracer {
	if p.Tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.Tracer
}

func repairPrompt(rawText string, failure string, descriptor *schema.Descriptor) (Prompt, error) {
	schemaBytes, err := descriptor.JSONSchemaBytes()
	if err != nil {
		return Prompt{}, fmt.Errorf("encode schema %s: %w", descriptor.Name(), err)
	}
	var user strings.Builder
	user.WriteString("Schema fields:\n")
	user.WriteString(descriptor.Guidance())
	user.WriteString("\n\nJSON Schema:\n")
	user.Write(schemaBytes)
	user.WriteString("\n\nOutput to reformat:\n")
	user.WriteString(rawText)
	if failure = strings.TrimSpace(failure); failure != "" {
		user.WriteString("\n\n")
		user.WriteString(repairFailurePreamble)
		user.WriteString("\n")
		user.WriteString(failure)
	}
	return MessagesPrompt(
		Message{Role: RoleSystem, Content: repairInstructions},
		Message{Role: RoleUser, Content: user.String()},
	), nil
}
