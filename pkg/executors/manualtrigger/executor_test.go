package manualtrigger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/steps"
)

type statusRecorder struct {
	statuses []models.NodeStatus
}

func (r *statusRecorder) Publish(_ context.Context, _ models.NodeKind, _ string, status models.NodeStatus) {
	r.statuses = append(r.statuses, status)
}

func TestManualTriggerPassesContextThrough(t *testing.T) {
	executor := NewExecutor()
	recorder := &statusRecorder{}

	input := protocol.ExecutorInput{
		Node:    &models.Node{ID: "trigger-1", Kind: models.NodeKindManualTrigger},
		Context: models.Context{"initial": "data"},
		Steps:   steps.NewRunner(steps.NewMemoryLedger(), "run-1", slog.Default()),
		Status:  recorder,
		Logger:  slog.Default(),
	}

	result, err := executor.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, models.Context{"initial": "data"}, result)
	assert.Equal(t, []models.NodeStatus{models.NodeStatusLoading, models.NodeStatusSuccess}, recorder.statuses)
}

func TestManualTriggerReplaysMemoizedResult(t *testing.T) {
	executor := NewExecutor()
	ledger := steps.NewMemoryLedger()

	first := protocol.ExecutorInput{
		Node:    &models.Node{ID: "trigger-1", Kind: models.NodeKindManualTrigger},
		Context: models.Context{"payload": "original"},
		Steps:   steps.NewRunner(ledger, "run-1", slog.Default()),
		Status:  &statusRecorder{},
		Logger:  slog.Default(),
	}

	_, err := executor.Execute(context.Background(), first)
	require.NoError(t, err)

	// A retry of the same run replays the recorded context even when the
	// live input differs.
	second := first
	second.Context = models.Context{"payload": "changed"}
	second.Steps = steps.NewRunner(ledger, "run-1", slog.Default())

	result, err := executor.Execute(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, models.Context{"payload": "original"}, result)
}
