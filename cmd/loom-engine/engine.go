package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomhq/loom/pkg/engine"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/registry"
	"github.com/loomhq/loom/pkg/sources/schedule"
	"github.com/loomhq/loom/pkg/status"
	"go.opentelemetry.io/otel/trace"
)

// EngineManager consumes trigger events and drives one orchestrator run per
// event. Runs are memoized through the step ledger, so a redelivered event
// replays completed work instead of repeating it.
type EngineManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	ledger      protocol.StepLedger
	lastKnown   status.LastKnownStore
	tracer      trace.Tracer
	maxRetries  int
	retryDelay  time.Duration
	scheduler   *schedule.Source
}

func NewEngineManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
	ledger protocol.StepLedger,
	lastKnown status.LastKnownStore,
	tracer trace.Tracer,
	maxRetries int,
	retryDelay time.Duration,
) *EngineManager {
	return &EngineManager{
		id:          id,
		logger:      logger.With("module", "loom-engine", "engine_id", id),
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		ledger:      ledger,
		lastKnown:   lastKnown,
		tracer:      tracer,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
	}
}

func (m *EngineManager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting engine manager", "engine_id", m.id)

	m.eventBus.Handle(events.ExecutionRequestedEvent, m.handleExecutionRequested)

	err := m.eventBus.Subscribe(ctx, events.Topic)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	err = m.startScheduler(ctx)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Engine started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down engine...")

	if m.scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.scheduler.Stop(stopCtx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop schedule source", "error", err)
		}
	}

	return nil
}

func (m *EngineManager) handleExecutionRequested(ctx context.Context, event any) error {
	trigger, ok := event.(*events.ExecutionRequested)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	if trigger.WorkflowID == "" {
		// Nothing to attach a record to and redelivery cannot change that.
		m.logger.ErrorContext(ctx, "Dropping trigger event without workflow id", "event_id", trigger.ID)

		return nil
	}

	logger := m.logger.With(
		"workflow_id", trigger.WorkflowID,
		"event_id", trigger.ID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	orchestrator := engine.NewOrchestrator(engine.Config{
		Graphs:     m.persistence.WorkflowRepository(),
		Records:    m.persistence.ExecutionRepository(),
		Ledger:     m.ledger,
		Registry:   m.registry,
		Bus:        m.eventBus,
		LastKnown:  m.lastKnown,
		Tracer:     m.tracer,
		Logger:     logger,
		MaxRetries: m.maxRetries,
		RetryDelay: m.retryDelay,
	})

	err := orchestrator.Run(ctx, trigger)
	if err != nil {
		if engine.IsRecordedFailure(err) {
			// The failure reached a durable FAILED record and the lifecycle
			// event is out. Ack: redelivery would only replay it.
			logger.ErrorContext(ctx, "Workflow run failed", "error", err)

			return nil
		}

		// No terminal record was written. Nack so the bus redelivers the
		// event; completed steps short-circuit on the replay.
		logger.ErrorContext(ctx, "Workflow run aborted before a terminal record was written", "error", err)

		return err
	}

	return nil
}

// startScheduler registers a cron entry for every workflow carrying a
// schedule expression in its metadata and starts firing trigger events.
func (m *EngineManager) startScheduler(ctx context.Context) error {
	graphs, err := m.persistence.WorkflowRepository().Workflows(ctx)
	if err != nil {
		return err
	}

	source := schedule.NewSource(m.eventBus, m.logger)
	entries := 0

	for _, graph := range graphs {
		expr, ok := graph.Metadata["schedule"].(string)
		if !ok || expr == "" {
			continue
		}

		err := source.Add(schedule.Entry{
			ID:         graph.WorkflowID,
			CronExpr:   expr,
			WorkflowID: graph.WorkflowID,
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "Skipping invalid schedule",
				"workflow_id", graph.WorkflowID, "error", err)

			continue
		}

		entries++
	}

	if entries == 0 {
		return nil
	}

	err = source.Start(ctx)
	if err != nil {
		return err
	}

	m.scheduler = source
	m.logger.InfoContext(ctx, "Schedule source started", "entries", entries)

	return nil
}
