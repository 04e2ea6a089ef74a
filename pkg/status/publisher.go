// Package status broadcasts per-node execution status to UI observers.
package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

// LastKnownStore keeps the most recent status per (execution, node) so
// observers can poll current state on (re)subscribe after missing frames.
type LastKnownStore interface {
	SetNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error
	GetNodeStatus(ctx context.Context, executionID, nodeID string) (models.NodeStatus, error)
}

// Publisher emits status frames for one run. Publishing is fire-and-forget:
// delivery failures are logged and never surface to the caller, so a missed
// frame cannot fail the node execution it describes.
type Publisher struct {
	bus         eventbus.EventPublisher
	lastKnown   LastKnownStore
	workflowID  string
	executionID string
	logger      *slog.Logger
}

func NewPublisher(bus eventbus.EventPublisher, lastKnown LastKnownStore, workflowID, executionID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:         bus,
		lastKnown:   lastKnown,
		workflowID:  workflowID,
		executionID: executionID,
		logger:      logger,
	}
}

var _ protocol.StatusPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, kind models.NodeKind, nodeID string, nodeStatus models.NodeStatus) {
	event := events.NodeStatusChanged{
		BaseEvent: events.BaseEvent{
			ID:         p.executionID + "-" + nodeID + "-" + string(nodeStatus),
			Type:       events.NodeStatusChangedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: p.workflowID,
		},
		ExecutionID: p.executionID,
		NodeID:      nodeID,
		NodeKind:    kind,
		Status:      nodeStatus,
	}

	err := p.bus.Publish(ctx, events.StatusTopic(kind), p.executionID, event)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish node status",
			"node_id", nodeID, "status", nodeStatus, "error", err)
	}

	if p.lastKnown == nil {
		return
	}

	err = p.lastKnown.SetNodeStatus(ctx, p.executionID, nodeID, nodeStatus)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to store last-known node status",
			"node_id", nodeID, "status", nodeStatus, "error", err)
	}
}
