package status_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingBus struct {
	topics    []string
	published []eventbus.Event
	fail      bool
}

func (b *capturingBus) Publish(_ context.Context, topic, _ string, event eventbus.Event) error {
	if b.fail {
		return errors.New("broker unavailable")
	}

	b.topics = append(b.topics, topic)
	b.published = append(b.published, event)

	return nil
}

type memLastKnown struct {
	statuses map[string]models.NodeStatus
}

func (s *memLastKnown) SetNodeStatus(_ context.Context, executionID, nodeID string, nodeStatus models.NodeStatus) error {
	s.statuses[executionID+"/"+nodeID] = nodeStatus

	return nil
}

func (s *memLastKnown) GetNodeStatus(_ context.Context, executionID, nodeID string) (models.NodeStatus, error) {
	return s.statuses[executionID+"/"+nodeID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestPublisherBroadcastsPerKindTopic(t *testing.T) {
	bus := &capturingBus{}
	lastKnown := &memLastKnown{statuses: make(map[string]models.NodeStatus)}
	publisher := status.NewPublisher(bus, lastKnown, "wf-1", "exec-1", testLogger())

	publisher.Publish(context.Background(), models.NodeKindHTTPRequest, "fetch", models.NodeStatusLoading)
	publisher.Publish(context.Background(), models.NodeKindHTTPRequest, "fetch", models.NodeStatusSuccess)

	require.Len(t, bus.published, 2)
	assert.Equal(t, events.StatusTopic(models.NodeKindHTTPRequest), bus.topics[0])

	frame, ok := bus.published[0].(events.NodeStatusChanged)
	require.True(t, ok)
	assert.Equal(t, "exec-1", frame.ExecutionID)
	assert.Equal(t, "fetch", frame.NodeID)
	assert.Equal(t, models.NodeStatusLoading, frame.Status)

	current, err := lastKnown.GetNodeStatus(context.Background(), "exec-1", "fetch")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, current)
}

func TestPublisherSwallowsDeliveryFailures(t *testing.T) {
	bus := &capturingBus{fail: true}
	publisher := status.NewPublisher(bus, nil, "wf-1", "exec-1", testLogger())

	// Must not panic or surface the broker error.
	publisher.Publish(context.Background(), models.NodeKindAIGenerate, "generate", models.NodeStatusError)

	assert.Empty(t, bus.published)
}
