// Package events defines the event types flowing between the API, the engine,
// and status observers.
package events

import (
	"time"

	"github.com/loomhq/loom/pkg/models"
)

type EventType string

// Topics.
const Topic = "loom.events"                 // trigger and run lifecycle events
const StatusTopicPrefix = "loom.status."    // per-node-kind status channels, one topic per kind
const StatusChannelTopic = "status"         // logical topic name observers subscribe to inside a kind channel

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound trigger events.
	ExecutionRequestedEvent EventType = "execution.requested"

	// Run lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	// Ephemeral node status frames.
	NodeStatusChangedEvent EventType = "node.status.changed"
)

// StatusTopic returns the broadcast topic for one node kind.
func StatusTopic(kind models.NodeKind) string {
	return StatusTopicPrefix + string(kind)
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested is the inbound trigger event: a request to run one
// workflow, optionally seeding the initial context. Its ID doubles as the
// correlation id recorded on the execution record.
type ExecutionRequested struct {
	BaseEvent

	InitialData map[string]any `json:"initial_data,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Output      map[string]any `json:"output,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// NodeStatusChanged is a fire-and-forget status frame for UI observers. The
// engine never reads these back; consumers tolerate missed frames by polling
// last-known status on (re)subscribe.
type NodeStatusChanged struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	NodeKind    models.NodeKind   `json:"node_kind"`
	Status      models.NodeStatus `json:"status"`
}

func (e NodeStatusChanged) GetType() EventType {
	return NodeStatusChangedEvent
}
