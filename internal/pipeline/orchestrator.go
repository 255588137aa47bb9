package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/structgen/internal/schema"
)

const (
	// invalidRequestMessage reports a Request that did not come from NewRequest. It is a
	// caller bug and no generation call is made for it.
	invalidRequestMessage = "invalid request: build requests with NewRequest"
	noRepairInputMessage  = "no output to repair"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithAttemptTimeout bounds every generation call, the repair call included.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) { o.attemptTimeout = timeout }
}

// Orchestrator is the pipeline entry point. It holds configuration only, so one instance can
// serve concurrent executions.
type Orchestrator struct {
	generator      Generator
	attemptTimeout time.Duration
	logger         *zap.Logger
	tracer         trace.Tracer
	recorder       Recorder
}

func NewOrchestrator(generator Generator, options ...Option) (*Orchestrator, error) {
	if generator == nil {
		return nil, ErrMissingGenerator
	}
	orchestrator := &Orchestrator{
		generator: generator,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		recorder:  noopRecorder{},
	}
	for _, option := range options {
		option(orchestrator)
	}
	orchestrator.logger = orchestrator.logger.With(zap.String("component", "pipeline"))
	return orchestrator, nil
}

// ExecuteWith builds the request and executes it. The error is returned only for an invalid
// request; generation outcomes are always reported in the Result.
func (o *Orchestrator) ExecuteWith(ctx context.Context, prompt Prompt, descriptor *schema.Descriptor, maxAttempts int, repairEnabled bool) (Result, error) {
	request, err := NewRequest(prompt, descriptor, maxAttempts, repairEnabled)
	if err != nil {
		return Result{}, err
	}
	return o.Execute(ctx, request), nil
}

// Execute runs the retry phase and, when it exhausts with repair enabled, one repair pass.
func (o *Orchestrator) Execute(ctx context.Context, request Request) Result {
	started := time.Now()
	runID := uuid.New().String()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("schema", request.schemaName()))

	if !request.valid() {
		logger.Error(invalidRequestMessage)
		return Result{
			Errors:   []ErrorRecord{{Attempt: 0, Kind: ServiceError, Message: invalidRequestMessage}},
			RunID:    runID,
			Duration: time.Since(started),
		}
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("schema", request.schemaName()),
		attribute.Int("max_attempts", request.MaxAttempts()),
		attribute.Bool("repair_enabled", request.RepairEnabled()),
	))
	defer span.End()

	controller := RetryController{
		Generator:      o.generator,
		AttemptTimeout: o.attemptTimeout,
		Logger:         logger,
		Tracer:         o.tracer,
		Recorder:       o.recorder,
	}
	retried := controller.Run(ctx, request)
	result := Result{
		Errors:   append(make([]ErrorRecord, 0, len(retried.History)+1), retried.History...),
		RunID:    runID,
		Attempts: retried.Attempts,
	}

	switch {
	case retried.State == StateSuccess:
		result.Success = true
		result.Value = retried.Value
	case retried.State == StateExhausted && request.RepairEnabled():
		o.repair(ctx, logger, request, retried, &result)
	}

	result.Duration = time.Since(started)
	o.recorder.ObserveResult(request.schemaName(), result.Success, result.Attempts, result.Duration)
	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Int("attempts", result.Attempts),
		attribute.Int("errors", len(result.Errors)),
	)
	if result.Success {
		span.SetStatus(codes.Ok, "")
		logger.Info("pipeline succeeded",
			zap.Int("attempts", result.Attempts),
			zap.Bool("repaired", result.Repaired),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("pipeline failed after %d attempts", result.Attempts))
		logger.Warn("pipeline failed",
			zap.String("state", string(retried.State)),
			zap.Int("attempts", result.Attempts),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
	}
	return result
}

// repair runs the single repair pass. A cancelled context stops the pipeline before the
// repair call is made.
func (o *Orchestrator) repair(ctx context.Context, logger *zap.Logger, request Request, retried RetryOutcome, result *Result) {
	repairAttempt := retried.Attempts + 1
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Errors = append(result.Errors, ErrorRecord{Attempt: repairAttempt, Kind: ServiceError, Message: describeContextError(ctxErr)})
		logger.Warn("repair skipped, context done", zap.Error(ctxErr))
		return
	}
	if strings.TrimSpace(retried.LastRaw) == "" {
		result.Errors = append(result.Errors, ErrorRecord{Attempt: repairAttempt, Kind: RepairFailure, Message: noRepairInputMessage})
		o.recorder.ObserveRepair(request.schemaName(), false)
		logger.Info("repair skipped, no raw output to reformat")
		return
	}

	parser := RepairParser{Generator: o.generator, Timeout: o.attemptTimeout, Tracer: o.tracer}
	outcome, err := parser.Repair(ctx, retried.LastRaw, lastFailure(retried.History), request.Schema(), repairAttempt)
	o.recorder.ObserveRepair(request.schemaName(), err == nil)
	if err != nil {
		result.Errors = append(result.Errors, repairRecord(ctx, repairAttempt, err))
		logger.Warn("repair failed", zap.Error(err))
		return
	}
	result.Success = true
	result.Repaired = true
	result.Value = outcome.Value
	logger.Info("repair produced a valid value")
}

// repairRecord classifies a repair error. A repair call cut short by cancellation or a
// deadline is a ServiceError like any other generation call.
func repairRecord(ctx context.Context, attempt int, err error) ErrorRecord {
	var repairErr *RepairError
	if errors.As(err, &repairErr) && repairErr.Stage == RepairStageService {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ErrorRecord{Attempt: attempt, Kind: ServiceError, Message: describeContextError(ctxErr)}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrorRecord{Attempt: attempt, Kind: ServiceError, Message: err.Error()}
		}
	}
	return ErrorRecord{Attempt: attempt, Kind: RepairFailure, Message: err.Error()}
}

func lastFailure(history []ErrorRecord) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Message
}

// ExecuteBatch runs independent requests concurrently, at most concurrency at a time (one
// when concurrency < 1). Each request keeps its own sequential pipeline; results follow the
// order of requests.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, requests []Request, concurrency int) []Result {
	results := make([]Result, len(requests))
	if concurrency < 1 {
		concurrency = 1
	}
	var group errgroup.Group
	group.SetLimit(concurrency)
	for index := range requests {
		group.Go(func() error {
			results[index] = o.Execute(ctx, requests[index])
			return nil
		})
	}
	_ = group.Wait()
	return results
}
