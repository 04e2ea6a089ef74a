package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
)

type capturingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *capturingBus) Publish(_ context.Context, _ string, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{ID: "nightly", WorkflowID: "wf-1", CronExpr: "0 3 * * *"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, Entry{WorkflowID: "wf-1", CronExpr: "* * * * *"}.Validate())
	assert.Error(t, Entry{ID: "x", CronExpr: "* * * * *"}.Validate())
	assert.Error(t, Entry{ID: "x", WorkflowID: "wf-1"}.Validate())
	assert.Error(t, Entry{ID: "x", WorkflowID: "wf-1", CronExpr: "not a cron"}.Validate())
}

func TestSourceRejectsInvalidEntry(t *testing.T) {
	source := NewSource(&capturingBus{}, testLogger())

	assert.Error(t, source.Add(Entry{ID: "bad", WorkflowID: "wf-1", CronExpr: "61 * * * *"}))
}

func TestFirePublishesExecutionRequested(t *testing.T) {
	bus := &capturingBus{}
	source := NewSource(bus, testLogger())

	entry := Entry{
		ID:          "nightly",
		WorkflowID:  "wf-1",
		CronExpr:    "0 3 * * *",
		InitialData: map[string]any{"report": "daily"},
	}

	source.fire(context.Background(), entry)

	bus.mu.Lock()
	defer bus.mu.Unlock()

	require.Len(t, bus.events, 1)

	requested, ok := bus.events[0].(events.ExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, "wf-1", requested.WorkflowID)
	assert.NotEmpty(t, requested.ID)
	assert.Equal(t, map[string]any{"report": "daily"}, requested.InitialData)
	assert.Equal(t, "schedule", requested.Metadata["source"])
}

func TestStartAndStop(t *testing.T) {
	source := NewSource(&capturingBus{}, testLogger())
	require.NoError(t, source.Add(Entry{ID: "nightly", WorkflowID: "wf-1", CronExpr: "0 3 * * *"}))

	ctx := context.Background()
	require.NoError(t, source.Start(ctx))
	assert.Error(t, source.Start(ctx))

	require.NoError(t, source.Stop(ctx))
	assert.NoError(t, source.Stop(ctx))
}
