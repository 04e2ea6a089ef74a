// Package protocol defines the contracts between the orchestrator, node
// executors, and the engine's external collaborators.
package protocol

import (
	"context"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
)

// Executor runs one node kind. Implementations publish node status in the
// order loading → (success | error), validate their own config eagerly and
// classify config failures as non-retriable, and return the context to hand
// to the next node.
type Executor interface {
	// Kind returns the node kind this executor handles.
	Kind() models.NodeKind

	// Execute performs the node's side effects and returns the next context.
	Execute(ctx context.Context, input ExecutorInput) (models.Context, error)

	// Schema returns the JSON schema for the node kind's config payload.
	Schema() map[string]any
}

// ExecutorInput carries everything a node executor may use during one
// invocation.
type ExecutorInput struct {
	Node        *models.Node
	Context     models.Context
	Steps       StepRunner
	Status      StatusPublisher
	OwnerUserID string
	Logger      *slog.Logger
}

// StepRunner memoizes named, side-effecting steps within a run. A step's
// function runs at most once per unique step name across retries of the
// enclosing run; replays return the stored result without re-invoking fn.
// Failures inside fn propagate as the step's failure and are never stored.
type StepRunner interface {
	Run(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error)
}

// StatusPublisher broadcasts per-node status to observers. Publishing is
// best-effort from the engine's perspective: a failed publish must never fail
// the node execution, so Publish returns nothing and implementations log
// delivery problems themselves.
type StatusPublisher interface {
	Publish(ctx context.Context, kind models.NodeKind, nodeID string, status models.NodeStatus)
}
