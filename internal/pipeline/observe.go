package pipeline

import "time"

const instrumentationName = "github.com/temirov/structgen/internal/pipeline"

// Attempt outcome labels passed to Recorder.ObserveAttempt.
const (
	OutcomeSuccess         = "success"
	OutcomeParseError      = "parse_error"
	OutcomeValidationError = "validation_error"
	OutcomeServiceError    = "service_error"
)

// Recorder receives pipeline measurements. internal/metrics provides a prometheus-backed one.
type Recorder interface {
	ObserveAttempt(schemaName string, outcome string, elapsed time.Duration)
	ObserveRepair(schemaName string, success bool)
	ObserveResult(schemaName string, success bool, attempts int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAttempt(string, string, time.Duration)   {}
func (noopRecorder) ObserveRepair(string, bool)                     {}
func (noopRecorder) ObserveResult(string, bool, int, time.Duration) {}
