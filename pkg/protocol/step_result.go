package protocol

import (
	"errors"

	"github.com/loomhq/loom/pkg/models"
)

// ErrUnexpectedStepResult signals that a memoized step replayed a value of an
// unexpected shape. This points at a step-name collision or a ledger defect.
var ErrUnexpectedStepResult = errors.New("unexpected step result shape")

// StepContext coerces a step result back into an execution context. The step
// runner hands results back JSON-typed, so a stored models.Context comes back
// as a plain map.
func StepContext(result any) (models.Context, error) {
	switch typed := result.(type) {
	case models.Context:
		return typed, nil
	case map[string]any:
		return models.Context(typed), nil
	case nil:
		return models.Context{}, nil
	default:
		return nil, ErrUnexpectedStepResult
	}
}
