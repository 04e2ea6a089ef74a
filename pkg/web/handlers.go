// Package web provides the HTTP handlers of the workflow API: graph
// management, run triggering, execution reads, credentials, and inbound
// webhook adapters.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomhq/loom/pkg/credentials"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/registry"
)

type APIHandlers struct {
	store       persistence.Persistence
	credentials *credentials.Store
	registry    *registry.Registry
	bus         eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	credentialStore *credentials.Store,
	reg *registry.Registry,
	bus eventbus.EventPublisher,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		store:       store,
		credentials: credentialStore,
		registry:    reg,
		bus:         bus,
		validator:   validate,
		logger:      logger,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	graphs, err := h.store.WorkflowRepository().Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": graphs})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	graph, err := h.store.WorkflowRepository().LoadGraph(c.Context(), c.Params("id"))
	if errors.Is(err, persistence.ErrWorkflowNotFound) {
		return notFound(c, "Workflow not found")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(graph)
}

// SaveWorkflow creates or replaces the graph of a workflow. Node kinds and
// configs are validated against the executor registry before the graph is
// accepted.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	for _, node := range req.Nodes {
		if err := h.registry.ValidateConfig(models.NodeKind(node.Kind), node.Config); err != nil {
			return badRequest(c, "Node "+node.ID+": "+err.Error())
		}
	}

	graph := req.ToGraph(c.Params("id"))

	if err := h.store.WorkflowRepository().SaveGraph(c.Context(), graph); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(graph)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.store.WorkflowRepository().DeleteGraph(c.Context(), c.Params("id"))
	if errors.Is(err, persistence.ErrWorkflowNotFound) {
		return notFound(c, "Workflow not found")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerWorkflow accepts a manual run request. The run itself happens
// asynchronously on the engine; the response carries the event id that the
// execution record will be correlated with.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.store.WorkflowRepository().LoadGraph(c.Context(), workflowID); err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	req := TriggerExecutionRequest{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	return h.publishTrigger(c, workflowID, req.InitialData, "api")
}

func (h *APIHandlers) publishTrigger(c fiber.Ctx, workflowID string, initialData map[string]any, source string) error {
	event := events.ExecutionRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.ExecutionRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflowID,
			Metadata:   map[string]any{"source": source},
		},
		InitialData: initialData,
	}

	if err := h.bus.Publish(c.Context(), events.Topic, workflowID, event); err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Accepted execution request",
		"workflow_id", workflowID, "event_id", event.ID, "source", source)

	return c.Status(fiber.StatusAccepted).JSON(TriggerExecutionResponse{
		EventID:    event.ID,
		WorkflowID: workflowID,
		Status:     "accepted",
	})
}

// GetExecution reads one execution record, by record id or, as a fallback,
// by the trigger event id returned from TriggerWorkflow.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")

	record, err := h.store.ExecutionRepository().GetByID(c.Context(), id)
	if errors.Is(err, persistence.ErrExecutionNotFound) {
		record, err = h.store.ExecutionRepository().FindByEventID(c.Context(), id)
	}

	if errors.Is(err, persistence.ErrExecutionNotFound) {
		return notFound(c, "Execution not found")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	limit := 20
	offset := 0

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			return badRequest(c, "limit must be an integer between 1 and 100")
		}

		limit = parsed
	}

	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}

		offset = parsed
	}

	records, err := h.store.ExecutionRepository().ListExecutions(c.Context(), c.Query("workflow_id"), limit, offset)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"pagination": fiber.Map{"limit": limit, "offset": offset},
	})
}

func (h *APIHandlers) CreateCredential(c fiber.Ctx) error {
	var req CreateCredentialRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.credentials.CreateCredential(c.Context(), &models.Credential{
		Name:        req.Name,
		Type:        req.Type,
		Value:       req.Value,
		OwnerUserID: req.OwnerUserID,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformCredentialResponse(created))
}

func (h *APIHandlers) DeleteCredential(c fiber.Ctx) error {
	err := h.credentials.DeleteCredential(c.Context(), c.Params("id"), c.Query("owner_user_id"))
	if errors.Is(err, persistence.ErrCredentialNotFound) {
		return notFound(c, "Credential not found")
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// StripeWebhook adapts an inbound payment event into a run of the workflow
// named by the workflowId query parameter. The raw event becomes the run's
// initial context under the "stripeEvent" key.
func (h *APIHandlers) StripeWebhook(c fiber.Ctx) error {
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflowId query parameter is required")
	}

	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return badRequest(c, "Invalid event payload: "+err.Error())
	}

	return h.publishTrigger(c, workflowID, map[string]any{"stripeEvent": payload}, "stripe")
}

// FormsWebhook adapts an inbound form submission into a run. The submission
// fields become the run's initial context under the "formSubmission" key.
func (h *APIHandlers) FormsWebhook(c fiber.Ctx) error {
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflowId query parameter is required")
	}

	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return badRequest(c, "Invalid submission payload: "+err.Error())
	}

	return h.publishTrigger(c, workflowID, map[string]any{"formSubmission": payload}, "forms")
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": "persistence unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status": "healthy",
		"kinds":  h.registry.Kinds(),
	})
}
