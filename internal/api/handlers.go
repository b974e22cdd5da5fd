package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/engine"
	"github.com/mivius/automaton/internal/model"
	"github.com/mivius/automaton/internal/ratelimit"
	"github.com/mivius/automaton/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Handlers bundles the REST handlers with their dependencies
type Handlers struct {
	logger      *zap.Logger
	automations storage.AutomationStore
	logs        storage.ExecutionLogStore
	invoker     *engine.Invoker
	limiter     *ratelimit.Limiter
	validator   *validator.Validate
}

// NewHandlers creates the handler set
func NewHandlers(
	automations storage.AutomationStore,
	logs storage.ExecutionLogStore,
	invoker *engine.Invoker,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		logger:      logger.Named("api"),
		automations: automations,
		logs:        logs,
		invoker:     invoker,
		limiter:     limiter,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// clientIdentifier derives the rate limit identifier for a request. The
// first X-Forwarded-For element wins, then X-Real-IP, then "unknown".
func clientIdentifier(c fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return real
	}
	return "unknown"
}

// validateScheduleFields enforces the calendar field each schedule kind
// needs. It runs after merges too, so a PATCH cannot leave a weekly
// automation without a weekday.
func validateScheduleFields(schedule model.ScheduleKind, dayOfWeek, dayOfMonth *int) error {
	switch schedule {
	case model.ScheduleWeekly:
		if dayOfWeek == nil {
			return errors.New("day_of_week is required for weekly schedules")
		}
	case model.ScheduleMonthly:
		if dayOfMonth == nil {
			return errors.New("day_of_month is required for monthly schedules")
		}
	}
	return nil
}

// parsePagination reads the limit and offset query parameters. A missing
// or non-positive limit falls back to the default page size; the limit is
// capped at maxListLimit.
func parsePagination(c fiber.Ctx) (int, int, error) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
		limit = parsed
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("offset must be an integer")
		}
		offset = parsed
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}

// CreateAutomation handles POST /api/automations
func (h *Handlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule := model.ScheduleKind(req.Schedule)
	if err := validateScheduleFields(schedule, req.DayOfWeek, req.DayOfMonth); err != nil {
		return badRequest(c, err.Error())
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	automation := &model.Automation{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Prompt:     req.Prompt,
		Rules:      req.Rules,
		Schedule:   schedule,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		Enabled:    enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.automations.Create(c.Context(), automation); err != nil {
		h.logger.Error("Failed to create automation", zap.Error(err))
		return internalError(c, err)
	}

	h.logger.Info("Automation created",
		zap.String("automation_id", automation.ID),
		zap.String("name", automation.Name))

	return c.Status(fiber.StatusCreated).JSON(automation)
}

// ListAutomations handles GET /api/automations
func (h *Handlers) ListAutomations(c fiber.Ctx) error {
	automations, err := h.automations.List(c.Context())
	if err != nil {
		h.logger.Error("Failed to list automations", zap.Error(err))
		return internalError(c, err)
	}

	if automations == nil {
		automations = []*model.Automation{}
	}

	return c.JSON(fiber.Map{
		"automations": automations,
		"total":       len(automations),
	})
}

// GetAutomation handles GET /api/automations/:id
func (h *Handlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automations.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Automation not found")
		}
		return internalError(c, err)
	}

	return c.JSON(automation)
}

// UpdateAutomation handles PATCH /api/automations/:id
func (h *Handlers) UpdateAutomation(c fiber.Ctx) error {
	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	automation, err := h.automations.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Automation not found")
		}
		return internalError(c, err)
	}

	if req.Name != nil {
		automation.Name = *req.Name
	}
	if req.Prompt != nil {
		automation.Prompt = *req.Prompt
	}
	if req.Rules != nil {
		automation.Rules = *req.Rules
	}
	if req.Schedule != nil {
		automation.Schedule = model.ScheduleKind(*req.Schedule)
	}
	if req.DayOfWeek != nil {
		automation.DayOfWeek = req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		automation.DayOfMonth = req.DayOfMonth
	}
	if req.Enabled != nil {
		automation.Enabled = *req.Enabled
	}

	if err := validateScheduleFields(automation.Schedule, automation.DayOfWeek, automation.DayOfMonth); err != nil {
		return badRequest(c, err.Error())
	}

	automation.UpdatedAt = time.Now()

	if err := h.automations.Update(c.Context(), automation); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Automation not found")
		}
		h.logger.Error("Failed to update automation", zap.Error(err))
		return internalError(c, err)
	}

	return c.JSON(automation)
}

// DeleteAutomation handles DELETE /api/automations/:id. The automation's
// execution log entries survive the delete.
func (h *Handlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if err := h.automations.Delete(c.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Automation not found")
		}
		h.logger.Error("Failed to delete automation", zap.Error(err))
		return internalError(c, err)
	}

	h.logger.Info("Automation deleted", zap.String("automation_id", id))

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteAutomation handles POST /api/automations/:id/execute. The rate
// limit is checked before anything else happens; a rejected request has no
// side effects and consumes no quota.
func (h *Handlers) ExecuteAutomation(c fiber.Ctx) error {
	identifier := clientIdentifier(c)
	decision := h.limiter.Check(identifier)
	if !decision.Allowed {
		h.logger.Warn("Execution rate limited",
			zap.String("identifier", identifier),
			zap.String("automation_id", c.Params("id")))
		return rateLimited(c, decision, h.limiter.Max())
	}

	result, err := h.invoker.Invoke(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, engine.ErrAutomationNotFound) {
			return notFound(c, "Automation not found")
		}
		h.logger.Error("Execution failed", zap.Error(err))
		return internalError(c, err)
	}

	// A soft failure is still a completed invocation; Success carries
	// the outcome.
	return c.JSON(result)
}

// ListExecutions handles GET /api/executions
func (h *Handlers) ListExecutions(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	entries, err := h.logs.List(c.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list executions", zap.Error(err))
		return internalError(c, err)
	}

	total, err := h.logs.Count(c.Context())
	if err != nil {
		h.logger.Error("Failed to count executions", zap.Error(err))
		return internalError(c, err)
	}

	if entries == nil {
		entries = []*model.ExecutionLogEntry{}
	}

	return c.JSON(ExecutionsResponse{
		Executions: entries,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// ListAutomationExecutions handles GET /api/automations/:id/executions
func (h *Handlers) ListAutomationExecutions(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	automationID := c.Params("id")
	if _, err := h.automations.Get(c.Context(), automationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Automation not found")
		}
		return internalError(c, err)
	}

	entries, err := h.logs.ListByAutomation(c.Context(), automationID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list executions", zap.Error(err))
		return internalError(c, err)
	}

	total, err := h.logs.CountByAutomation(c.Context(), automationID)
	if err != nil {
		h.logger.Error("Failed to count executions", zap.Error(err))
		return internalError(c, err)
	}

	if entries == nil {
		entries = []*model.ExecutionLogEntry{}
	}

	return c.JSON(ExecutionsResponse{
		Executions: entries,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// GetExecution handles GET /api/executions/:id
func (h *Handlers) GetExecution(c fiber.Ctx) error {
	entry, err := h.logs.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c, "Execution not found")
		}
		return internalError(c, err)
	}

	return c.JSON(entry)
}

// GetLimitStatus handles GET /api/limits. It reports the caller's window
// without consuming quota.
func (h *Handlers) GetLimitStatus(c fiber.Ctx) error {
	identifier := clientIdentifier(c)
	decision := h.limiter.Status(identifier)

	resp := LimitStatusResponse{
		Identifier: identifier,
		Allowed:    decision.Allowed,
		Remaining:  decision.Remaining,
	}
	if !decision.ResetAt.IsZero() {
		resp.ResetAt = &decision.ResetAt
	}

	return c.JSON(resp)
}

// ResetLimit handles DELETE /api/limits/:identifier
func (h *Handlers) ResetLimit(c fiber.Ctx) error {
	identifier := c.Params("identifier")
	h.limiter.Reset(identifier)

	h.logger.Info("Rate limit reset", zap.String("identifier", identifier))

	return c.SendStatus(fiber.StatusNoContent)
}
