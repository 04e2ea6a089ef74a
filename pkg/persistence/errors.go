package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no workflow graph exists for the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates no execution record exists for the given
	// id or event id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates an execution record with the same
	// id was already created.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrCredentialNotFound indicates no credential exists for the given id.
	ErrCredentialNotFound = errors.New("credential not found")
)
