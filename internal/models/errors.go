package models

import "errors"

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Configuration validation
	ErrConfigInvalid  ErrorType = "config_invalid"
	ErrDatasetInvalid ErrorType = "dataset_invalid"

	// Runtime provisioning
	ErrRuntimePrepareFailed  ErrorType = "runtime_prepare_failed"
	ErrRuntimeStartFailed    ErrorType = "runtime_start_failed"
	ErrRuntimeTeardownFailed ErrorType = "runtime_teardown_failed"
	ErrBackendUnavailable    ErrorType = "backend_unavailable"

	// Model phases
	ErrModelBuildFailed ErrorType = "model_build_failed"
	ErrModelTrainFailed ErrorType = "model_train_failed"
	ErrModelTestFailed  ErrorType = "model_test_failed"

	// Metrics collection
	ErrMetricsMissing ErrorType = "metrics_missing"
	ErrMetricsInvalid ErrorType = "metrics_invalid"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// BenchError is a classified failure. It is returned from operations and
// serialized into result files; only Type and Message are marshaled.
type BenchError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	cause   error
}

// NewBenchError creates a classified error without an underlying cause.
func NewBenchError(t ErrorType, msg string) *BenchError {
	return &BenchError{Type: t, Message: msg}
}

// WrapBenchError classifies an underlying error, preserving it for
// errors.Is and errors.As.
func WrapBenchError(t ErrorType, err error) *BenchError {
	return &BenchError{Type: t, Message: err.Error(), cause: err}
}

func (e *BenchError) Error() string {
	return string(e.Type) + ": " + e.Message
}

func (e *BenchError) Unwrap() error {
	return e.cause
}

// AsBenchError extracts the classified error from err's chain. The second
// return is false when the chain carries no BenchError; callers treat such
// failures as internal errors.
func AsBenchError(err error) (*BenchError, bool) {
	var be *BenchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsConfigError reports whether err is a configuration failure: the run
// was rejected before any trial started.
func IsConfigError(err error) bool {
	be, ok := AsBenchError(err)
	if !ok {
		return false
	}
	switch be.Type {
	case ErrConfigInvalid, ErrDatasetInvalid:
		return true
	}
	return false
}

// IsTrialError reports whether err came from inside a trial's
// build, train, test, or metrics collection.
func IsTrialError(err error) bool {
	be, ok := AsBenchError(err)
	if !ok {
		return false
	}
	switch be.Type {
	case ErrModelBuildFailed, ErrModelTrainFailed, ErrModelTestFailed,
		ErrMetricsMissing, ErrMetricsInvalid:
		return true
	}
	return false
}

// IsDependencyError reports whether err came from the runtime or backend
// the harness depends on rather than from the trial itself.
func IsDependencyError(err error) bool {
	be, ok := AsBenchError(err)
	if !ok {
		return false
	}
	switch be.Type {
	case ErrRuntimePrepareFailed, ErrRuntimeStartFailed,
		ErrRuntimeTeardownFailed, ErrBackendUnavailable:
		return true
	}
	return false
}
