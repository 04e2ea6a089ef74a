// Package formtrigger implements the form trigger node. The inbound form
// submission is delivered by the webhook adapter before the run starts; at
// node-execution time the payload is already seeded into the context, so the
// node only passes it through.
package formtrigger

import (
	"context"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindFormTrigger
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	result, err := input.Steps.Run(ctx, "form-trigger", func(ctx context.Context) (any, error) {
		return input.Context, nil
	})
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	next, err := protocol.StepContext(result)
	if err != nil {
		input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusError)

		return nil, err
	}

	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusSuccess)

	return next, nil
}
