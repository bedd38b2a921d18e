package web

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/graph"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
)

// APIHandlers serves workflow management, execution control and webhook
// intake.
type APIHandlers struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
}

// NewAPIHandlers wires the handler dependencies.
func NewAPIHandlers(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		persistence: store,
		registry:    reg,
		publisher:   publisher,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list workflows", "error", err)

		return internalError(c)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	return h.saveWorkflow(c, "")
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	_, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return h.saveWorkflow(c, id)
}

// saveWorkflow validates the graph nodes' configuration against registered
// executor schemas before persisting, so stored workflows never reference
// unknown node types.
func (h *APIHandlers) saveWorkflow(c fiber.Ctx, id string) error {
	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	status := req.Status
	if status == "" {
		status = models.WorkflowStatusDraft
	}

	workflow := &models.Workflow{
		ID:          id,
		Name:        req.Name,
		Owner:       req.Owner,
		Status:      status,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}

	if err := h.registry.ValidateWorkflowConfigs(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveWorkflow(c.Context(), workflow); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to save workflow", "error", err)

		return internalError(c)
	}

	statusCode := fiber.StatusOK
	if id == "" {
		statusCode = fiber.StatusCreated
	}

	return c.Status(statusCode).JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	_, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	if err := h.persistence.DeleteWorkflow(c.Context(), id); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to delete workflow", "error", err)

		return internalError(c)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateWorkflow runs graph validation and returns the resolved execution
// order without running anything.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	order, err := graph.ResolveExecutionOrder(workflow.Nodes, workflow.Connections)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true, "order": order})
}

// ExecuteWorkflow validates the graph and enqueues a run. Validation errors
// surface directly to the caller; nothing is enqueued and no execution is
// recorded.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	if _, err := graph.ResolveExecutionOrder(workflow.Nodes, workflow.Connections); err != nil {
		return handlePersistenceError(c, err)
	}

	correlationID := uuid.New().String()

	event := events.ExecutionRequested{
		BaseEvent:     events.NewBaseEvent(events.ExecutionRequestedEvent, workflow.ID),
		CorrelationID: correlationID,
	}

	if err := h.publisher.Publish(c.Context(), workflow.ID, event); err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to enqueue execution request", "error", err)

		return internalError(c)
	}

	return c.JSON(ExecuteResponse{Success: true, Message: "execution enqueued"})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	_, err := h.persistence.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	steps, err := h.persistence.ExecutionSteps(c.Context(), c.Params("id"))
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to load execution steps", "error", err)

		return internalError(c)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

// CancelExecution flips the cooperative cancellation flag; only valid while
// the execution is RUNNING.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	err := h.persistence.RequestCancel(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}
