// Package engine implements workflow scheduling and orchestration.
package engine

import (
	"errors"
	"fmt"
)

// CycleError reports that a workflow graph cannot be ordered because it
// contains a cycle. It is terminal and non-retriable for the run.
type CycleError struct {
	WorkflowID string
}

func (e *CycleError) Error() string {
	return "workflow contains a cycle"
}

// classifiedError tags an error as retriable or not. The orchestrator only
// retries the whole run for tagged-retriable errors.
type classifiedError struct {
	err       error
	retriable bool
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// NonRetriable marks err as a failure that retrying cannot change
// (configuration and structural errors).
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}

	return &classifiedError{err: err, retriable: false}
}

// NonRetriablef is NonRetriable over a formatted error.
func NonRetriablef(format string, args ...any) error {
	return NonRetriable(fmt.Errorf(format, args...))
}

// Retriable marks err as a transient failure worth retrying at the run level.
func Retriable(err error) error {
	if err == nil {
		return nil
	}

	return &classifiedError{err: err, retriable: true}
}

// IsRetriable reports whether err carries a retriable classification.
// Unclassified errors default to non-retriable: an executor that wants a
// run-level retry must say so explicitly.
func IsRetriable(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retriable
	}

	return false
}

// ErrRecordAlreadyTerminal signals an engine invariant violation: a terminal
// status write hit a record that already reached SUCCESS or FAILED.
var ErrRecordAlreadyTerminal = errors.New("execution record already terminal")

// RecordedFailure wraps a run failure whose FAILED terminal record was
// durably written. Event consumers can acknowledge the triggering event:
// redelivering it would only replay an already-recorded failure. Run errors
// not carrying this wrapper left no terminal record behind and need
// redelivery.
type RecordedFailure struct {
	Err error
}

func (e *RecordedFailure) Error() string {
	return e.Err.Error()
}

func (e *RecordedFailure) Unwrap() error {
	return e.Err
}

// IsRecordedFailure reports whether err is a run failure with a durable
// FAILED record behind it.
func IsRecordedFailure(err error) bool {
	var recorded *RecordedFailure

	return errors.As(err, &recorded)
}
