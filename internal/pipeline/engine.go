package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/temirov/structgen/internal/parse"
	"github.com/temirov/structgen/internal/validate"
)

const (
	cancelledMessageFormat      = "generation cancelled: %v"
	deadlineMessageFormat       = "generation deadline exceeded: %v"
	attemptTimeoutMessageFormat = "generation timed out after %s: %v"
	serviceMessageFormat        = "generation service error: %v"
)

// State is a RetryController state.
type State string

const (
	StateInit      State = "INIT"
	StateAttempt   State = "ATTEMPT"
	StateValidate  State = "VALIDATE"
	StateSuccess   State = "SUCCESS"
	StateRetry     State = "RETRY"
	StateExhausted State = "EXHAUSTED"
	// StateAborted ends the loop after a ServiceError.
	StateAborted State = "ABORTED"
)

// RetryOutcome is what the retry phase hands to the orchestrator.
type RetryOutcome struct {
	State       State
	Value       map[string]any
	History     []ErrorRecord
	LastRaw     string
	Attempts    int
	Transitions []State
	attempts    []attemptRecord
}

func (o *RetryOutcome) transition(next State) {
	o.State = next
	o.Transitions = append(o.Transitions, next)
}

// RetryController runs generate-then-validate attempts until one passes or the request's
// attempt budget is spent. Feedback from every failed attempt is carried into the next prompt.
type RetryController struct {
	Generator      Generator
	AttemptTimeout time.Duration
	Logger         *zap.Logger
	Tracer         trace.Tracer
	Recorder       Recorder
}

// Run executes the retry phase. It never returns an error: validation and parse failures
// drive retries, service failures stop the loop, and all of them end up in History.
func (c RetryController) Run(ctx context.Context, request Request) RetryOutcome {
	logger := c.logger().With(zap.String("schema", request.schemaName()))
	outcome := RetryOutcome{State: StateInit, Transitions: []State{StateInit}}
	descriptor := request.Schema()
	original := request.Prompt()

	for attempt := 1; attempt <= request.MaxAttempts(); attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.abort(&outcome, attempt, describeContextError(ctxErr))
			logger.Warn("retry loop cancelled before attempt", zap.Int("attempt", attempt), zap.Error(ctxErr))
			return outcome
		}
		outcome.transition(StateAttempt)
		prompt := original
		if len(outcome.History) > 0 {
			prompt = original.WithFeedback(formatRefine(outcome.History, descriptor))
		}
		llmRequest := LLMRequest{Prompt: prompt, Schema: descriptor, Stage: StageAttempt, Attempt: attempt}

		started := time.Now()
		response, generateErr := c.generate(ctx, llmRequest)
		outcome.Attempts = attempt
		record := attemptRecord{Request: llmRequest, Response: response}
		if generateErr != nil {
			message := c.describeServiceError(ctx, generateErr)
			record.Failure = message
			outcome.attempts = append(outcome.attempts, record)
			c.recorder().ObserveAttempt(request.schemaName(), OutcomeServiceError, time.Since(started))
			c.abort(&outcome, attempt, message)
			logger.Warn("generation service failed", zap.Int("attempt", attempt), zap.Error(generateErr))
			return outcome
		}
		outcome.LastRaw = rawOutput(response)

		outcome.transition(StateValidate)
		candidate, parseErr := structure(response)
		if parseErr != nil {
			record.Failure = parseErr.Error()
			outcome.attempts = append(outcome.attempts, record)
			outcome.History = append(outcome.History, ErrorRecord{Attempt: attempt, Kind: ParseError, Message: parseErr.Error()})
			c.recorder().ObserveAttempt(request.schemaName(), OutcomeParseError, time.Since(started))
			logger.Debug("attempt output could not be parsed", zap.Int("attempt", attempt), zap.Error(parseErr))
			if attempt < request.MaxAttempts() {
				outcome.transition(StateRetry)
			}
			continue
		}

		validated := validate.Validate(candidate, descriptor)
		if validated.OK {
			record.Accepted = true
			outcome.attempts = append(outcome.attempts, record)
			outcome.Value = validated.Value
			outcome.transition(StateSuccess)
			c.recorder().ObserveAttempt(request.schemaName(), OutcomeSuccess, time.Since(started))
			logger.Debug("attempt accepted", zap.Int("attempt", attempt))
			return outcome
		}
		record.Failure = validated.Message()
		outcome.attempts = append(outcome.attempts, record)
		outcome.History = append(outcome.History, ErrorRecord{Attempt: attempt, Kind: SchemaValidationError, Message: validated.Message()})
		c.recorder().ObserveAttempt(request.schemaName(), OutcomeValidationError, time.Since(started))
		logger.Debug("attempt rejected by validator", zap.Int("attempt", attempt), zap.String("violations", validated.Message()))
		if attempt < request.MaxAttempts() {
			outcome.transition(StateRetry)
		}
	}

	outcome.transition(StateExhausted)
	logger.Debug("retry attempts exhausted", zap.String("attempts", renderAttemptDebug(outcome.attempts)))
	return outcome
}

func (c RetryController) generate(ctx context.Context, request LLMRequest) (LLMResponse, error) {
	spanCtx, span := c.tracer().Start(ctx, "pipeline.attempt", trace.WithAttributes(
		attribute.Int("attempt", request.Attempt),
		attribute.String("stage", string(request.Stage)),
	))
	defer span.End()

	attemptCtx, cancel := withOptionalTimeout(spanCtx, c.AttemptTimeout)
	defer cancel()
	response, err := c.Generator.Generate(attemptCtx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return LLMResponse{}, err
	}
	span.SetStatus(codes.Ok, "")
	return response, nil
}

func (c RetryController) abort(outcome *RetryOutcome, attempt int, message string) {
	outcome.History = append(outcome.History, ErrorRecord{Attempt: attempt, Kind: ServiceError, Message: message})
	outcome.transition(StateAborted)
}

// describeServiceError distinguishes caller cancellation, the caller's deadline and the
// per-attempt timeout.
func (c RetryController) describeServiceError(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return describeContextError(ctxErr)
	}
	if c.AttemptTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf(attemptTimeoutMessageFormat, c.AttemptTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf(cancelledMessageFormat, err)
	}
	return fmt.Sprintf(serviceMessageFormat, err)
}

func (c RetryController) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c RetryController) tracer() trace.Tracer {
	if c.Tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return c.Tracer
}

func (c RetryController) recorder() Recorder {
	if c.Recorder == nil {
		return noopRecorder{}
	}
	return c.Recorder
}

func describeContextError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf(deadlineMessageFormat, err)
	}
	return fmt.Sprintf(cancelledMessageFormat, err)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// structure turns a response into a candidate object. Structured output wins over text.
func structure(response LLMResponse) (map[string]any, error) {
	if response.Structured != nil {
		return parse.FromValue(response.Structured)
	}
	return parse.Object(response.RawText)
}

// rawOutput is the text handed to repair: the raw text, or the structured output encoded as
// JSON when the service returned no text.
func rawOutput(response LLMResponse) string {
	if strings.TrimSpace(response.RawText) != "" || response.Structured == nil {
		return response.RawText
	}
	encoded, err := json.Marshal(response.Structured)
	if err != nil {
		return fmt.Sprint(response.Structured)
	}
	return string(encoded)
}

type attemptRecord struct {
	Request  LLMRequest
	Response LLMResponse
	Failure  string
	Accepted bool
}

func renderAttemptDebug(attempts []attemptRecord) string {
	if len(attempts) == 0 {
		return "no attempts"
	}
	var sb strings.Builder
	for _, attempt := range attempts {
		sb.WriteString(fmt.Sprintf("Attempt %d (%s):\n", attempt.Request.Attempt, attempt.Request.Stage))
		sb.WriteString("  Prompt:\n")
		sb.WriteString(indentBlock(truncate(attempt.Request.Prompt.Render(), 1200)))
		sb.WriteString("\n  Response:\n")
		sb.WriteString(indentBlock(truncate(rawOutput(attempt.Response), 1200)))
		sb.WriteString("\n")
		if attempt.Failure != "" {
			sb.WriteString("  Failure: ")
			sb.WriteString(truncate(attempt.Failure, 600))
			sb.WriteString("\n")
		}
		if attempt.Accepted {
			sb.WriteString("  Status: accepted\n")
		} else {
			sb.WriteString("  Status: rejected\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func indentBlock(block string) string {
	if block == "" {
		return "    <empty>"
	}
	lines := strings.Split(block, "\n")
	for idx, line := range lines {
		lines[idx] = "    " + line
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
