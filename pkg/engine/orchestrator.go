package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/registry"
	"github.com/loomhq/loom/pkg/status"
	"github.com/loomhq/loom/pkg/steps"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultRetryDelay = 500 * time.Millisecond

// Config carries the orchestrator's collaborators. Everything is injected:
// the orchestrator owns no global client state.
type Config struct {
	Graphs    protocol.GraphLoader
	Records   protocol.ExecutionRecordStore
	Ledger    protocol.StepLedger
	Registry  *registry.Registry
	Bus       eventbus.EventPublisher
	LastKnown status.LastKnownStore // optional
	Tracer    trace.Tracer          // optional
	Logger    *slog.Logger

	// MaxRetries bounds whole-run retries for retriable failures. 0 means a
	// single attempt.
	MaxRetries int

	// RetryDelay is the base pause between attempts, scaled linearly by
	// attempt number.
	RetryDelay time.Duration
}

// Orchestrator drives one workflow run through its state machine:
// CREATED → RUNNING → {SUCCESS, FAILED}. Nodes execute strictly sequentially
// in topological order; the whole run (never an individual node) is retried
// for retriable failures, and completed steps short-circuit on replay.
type Orchestrator struct {
	cfg Config
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Orchestrator{cfg: cfg}
}

// preparedRun is the memoized result of the prepare step: the graph snapshot
// and its execution order, frozen at first attempt so later replays run the
// exact same sequence.
type preparedRun struct {
	Graph *models.WorkflowGraph `json:"graph"`
	Order []string              `json:"order"`
}

// Run executes one inbound trigger event end to end. The event's ID is the
// run id: it keys the step ledger and correlates the execution record.
func (o *Orchestrator) Run(ctx context.Context, trigger *events.ExecutionRequested) error {
	if trigger.WorkflowID == "" {
		// No record is created for an unidentifiable run.
		return NonRetriablef("workflow id is required")
	}

	logger := o.cfg.Logger.With("workflow_id", trigger.WorkflowID, "run_id", trigger.ID)
	runner := steps.NewRunner(o.cfg.Ledger, trigger.ID, logger)

	recordID, err := o.ensureRecord(ctx, runner, trigger)
	if err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}

	logger = logger.With("execution_id", recordID)
	startedAt := time.Now().UTC()

	var runErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.InfoContext(ctx, "Retrying workflow run", "attempt", attempt)

			select {
			case <-ctx.Done():
				runErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * o.cfg.RetryDelay):
			}

			if runErr != nil {
				break
			}
		}

		runErr = o.attempt(ctx, trigger, runner, recordID, startedAt, logger)
		if runErr == nil || !IsRetriable(runErr) {
			break
		}

		logger.WarnContext(ctx, "Workflow run attempt failed with retriable error",
			"attempt", attempt, "error", runErr)
	}

	if runErr != nil {
		if err := o.finalizeFailure(ctx, trigger, recordID, runErr, startedAt, logger); err != nil {
			// No durable FAILED record exists; surface the write failure so
			// the caller redelivers instead of losing the run.
			return err
		}

		return &RecordedFailure{Err: runErr}
	}

	return nil
}

// ensureRecord creates the execution record exactly once per run id. The
// creation is itself a durable step, so a crash-and-retry of the whole run
// reuses the original record instead of opening a second one.
func (o *Orchestrator) ensureRecord(ctx context.Context, runner *steps.Runner, trigger *events.ExecutionRequested) (string, error) {
	result, err := runner.Run(ctx, "create-execution", func(ctx context.Context) (any, error) {
		record := &models.ExecutionRecord{
			ID:         uuid.New().String(),
			WorkflowID: trigger.WorkflowID,
			EventID:    trigger.ID,
			Status:     models.ExecutionStatusRunning,
			StartedAt:  time.Now().UTC(),
		}

		if err := o.cfg.Records.Create(ctx, record); err != nil {
			return nil, err
		}

		return record.ID, nil
	})
	if err != nil {
		return "", err
	}

	recordID, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected create-execution step result %T", result)
	}

	return recordID, nil
}

func (o *Orchestrator) attempt(ctx context.Context, trigger *events.ExecutionRequested, runner *steps.Runner, recordID string, startedAt time.Time, logger *slog.Logger) error {
	ctx, span := o.startSpan(ctx, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, trigger.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, recordID),
	)
	defer span.End()

	prepared, err := o.prepare(ctx, trigger, runner)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	o.publishLifecycle(ctx, trigger, events.ExecutionStarted{
		BaseEvent:   o.baseEvent(events.ExecutionStartedEvent, trigger.WorkflowID),
		ExecutionID: recordID,
	}, logger)

	execution := models.Context{}
	if trigger.InitialData != nil {
		execution = models.Context(trigger.InitialData)
	}

	publisher := status.NewPublisher(o.cfg.Bus, o.cfg.LastKnown, trigger.WorkflowID, recordID, logger)

	for _, nodeID := range prepared.Order {
		node := prepared.Graph.NodeByID(nodeID)
		if node == nil {
			err := NonRetriablef("ordered node %s missing from graph snapshot", nodeID)
			otelhelper.SetError(span, err)

			return err
		}

		execution, err = o.executeNode(ctx, node, prepared.Graph, execution, runner, publisher, logger)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))

			return err
		}
	}

	return o.finalizeSuccess(ctx, trigger, recordID, execution, startedAt, logger)
}

// prepare loads the graph and computes its topological order as one durable
// step: the snapshot taken on the first attempt is authoritative for every
// replay, so concurrent edits to the authored graph cannot affect the run.
func (o *Orchestrator) prepare(ctx context.Context, trigger *events.ExecutionRequested, runner *steps.Runner) (*preparedRun, error) {
	result, err := runner.Run(ctx, "prepare-workflow", func(ctx context.Context) (any, error) {
		graph, err := o.cfg.Graphs.LoadGraph(ctx, trigger.WorkflowID)
		if err != nil {
			return nil, NonRetriable(fmt.Errorf("failed to load workflow %s: %w", trigger.WorkflowID, err))
		}

		ordered, err := Order(graph.Nodes, graph.Connections)
		if err != nil {
			return nil, NonRetriable(err)
		}

		order := make([]string, 0, len(ordered))
		for _, node := range ordered {
			order = append(order, node.ID)
		}

		return preparedRun{Graph: graph, Order: order}, nil
	})
	if err != nil {
		return nil, err
	}

	prepared := &preparedRun{}
	if err := decodeStepResult(result, prepared); err != nil {
		return nil, fmt.Errorf("failed to decode prepared workflow: %w", err)
	}

	return prepared, nil
}

func (o *Orchestrator) executeNode(ctx context.Context, node *models.Node, graph *models.WorkflowGraph, execution models.Context, runner *steps.Runner, publisher *status.Publisher, logger *slog.Logger) (models.Context, error) {
	executor, err := o.cfg.Registry.Resolve(node.Kind)
	if err != nil {
		// A graph referencing an unregistered kind is a data-integrity bug;
		// abort instead of silently skipping the node.
		return nil, NonRetriable(err)
	}

	ctx, span := o.startSpan(ctx, "node.execute",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
	)
	defer span.End()

	logger.InfoContext(ctx, "Executing node", "node_id", node.ID, "node_kind", node.Kind)

	next, err := executor.Execute(ctx, protocol.ExecutorInput{
		Node:        node,
		Context:     execution,
		Steps:       runner.Scoped(node.ID),
		Status:      publisher,
		OwnerUserID: graph.OwnerUserID,
		Logger:      logger.With("node_id", node.ID),
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("node %s failed: %w", node.ID, err)
	}

	return next, nil
}

func (o *Orchestrator) finalizeSuccess(ctx context.Context, trigger *events.ExecutionRequested, recordID string, output models.Context, startedAt time.Time, logger *slog.Logger) error {
	completedAt := time.Now().UTC()

	err := o.cfg.Records.UpdateTerminal(ctx, recordID, protocol.ExecutionRecordPatch{
		Status:      models.ExecutionStatusSuccess,
		CompletedAt: &completedAt,
		Output:      output,
	})
	if errors.Is(err, ErrRecordAlreadyTerminal) {
		// The record reached a terminal state on an earlier delivery of this
		// run. Do not touch it again; report the defect loudly.
		logger.ErrorContext(ctx, "Terminal status double-write prevented", "execution_id", recordID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to finalize execution %s: %w", recordID, err)
	}

	o.publishLifecycle(ctx, trigger, events.ExecutionCompleted{
		BaseEvent:   o.baseEvent(events.ExecutionCompletedEvent, trigger.WorkflowID),
		ExecutionID: recordID,
		Output:      output,
		Duration:    completedAt.Sub(startedAt),
	}, logger)

	logger.InfoContext(ctx, "Workflow run succeeded")

	return nil
}

func (o *Orchestrator) finalizeFailure(ctx context.Context, trigger *events.ExecutionRequested, recordID string, runErr error, startedAt time.Time, logger *slog.Logger) error {
	completedAt := time.Now().UTC()
	message := runErr.Error()
	stack := string(debug.Stack())

	err := o.cfg.Records.UpdateTerminal(ctx, recordID, protocol.ExecutionRecordPatch{
		Status:      models.ExecutionStatusFailed,
		CompletedAt: &completedAt,
		Error:       &message,
		ErrorStack:  &stack,
	})
	if errors.Is(err, ErrRecordAlreadyTerminal) {
		logger.ErrorContext(ctx, "Terminal status double-write prevented", "execution_id", recordID)

		return nil
	}

	if err != nil {
		logger.ErrorContext(ctx, "Failed to finalize failed execution", "execution_id", recordID, "error", err)

		return fmt.Errorf("failed to finalize failed execution %s: %w", recordID, err)
	}

	o.publishLifecycle(ctx, trigger, events.ExecutionFailed{
		BaseEvent:   o.baseEvent(events.ExecutionFailedEvent, trigger.WorkflowID),
		ExecutionID: recordID,
		Error:       message,
		Duration:    completedAt.Sub(startedAt),
	}, logger)

	logger.ErrorContext(ctx, "Workflow run failed", "error", runErr)

	return nil
}

func (o *Orchestrator) publishLifecycle(ctx context.Context, trigger *events.ExecutionRequested, event eventbus.Event, logger *slog.Logger) {
	err := o.cfg.Bus.Publish(ctx, events.Topic, trigger.WorkflowID, event)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish lifecycle event", "event_type", event.GetType(), "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	id := uuid.New().String()
	if generator, ok := o.cfg.Bus.(interface{ GenerateID() string }); ok {
		id = generator.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o.cfg.Tracer == nil {
		return noop.NewTracerProvider().Tracer("loom").Start(ctx, name)
	}

	return o.cfg.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// decodeStepResult converts a JSON-typed step result into target.
func decodeStepResult(result any, target any) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return json.Unmarshal(encoded, target)
}
