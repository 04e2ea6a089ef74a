// Package paymenttrigger implements the payment trigger node. Payment
// provider events arrive through the webhook adapter, which seeds the run's
// initial context under a provider key (e.g. "stripe"); the node passes that
// seed through.
package paymenttrigger

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
	return models.NodeKindPaymentTrigger
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (e *Executor) Execute(ctx context.Context, input protocol.ExecutorInput) (models.Context, error) {
	input.Status.Publish(ctx, e.Kind(), input.Node.ID, models.NodeStatusLoading)

	result, err := input.Steps.Run(ctx, "payment-trigger", func(ctx context.Context) (any, error) {
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
