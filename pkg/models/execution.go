package models

import "time"

// Context is the accumulating key-value mapping threaded node to node within
// a run. Keys are namespaced by the node's configured variable name; the
// engine never mutates a key written by an earlier node.
type Context map[string]any

// With returns a copy of the context with one additional entry. The receiver
// is left untouched so earlier nodes' context values stay stable.
func (c Context) With(key string, value any) Context {
	next := make(Context, len(c)+1)
	for k, v := range c {
		next[k] = v
	}

	next[key] = value

	return next
}

// Merge returns a copy of the context with all entries of other added.
func (c Context) Merge(other map[string]any) Context {
	next := make(Context, len(c)+len(other))
	for k, v := range c {
		next[k] = v
	}

	for k, v := range other {
		next[k] = v
	}

	return next
}

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// ExecutionRecord is the persisted record of one workflow run. It is created
// at run start with status RUNNING and terminally updated exactly once to
// SUCCESS or FAILED. The engine owns it exclusively after creation.
type ExecutionRecord struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	EventID     string          `json:"event_id"` // correlation id of the inbound trigger event
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	ErrorStack  *string         `json:"error_stack,omitempty"`
	Output      Context         `json:"output,omitempty"`
}

// Credential is a stored secret scoped to its owning user. Value is decrypted;
// persistence layers keep it encrypted at rest and only the credential store
// hands out plaintext.
type Credential struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Value       string    `json:"value"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
