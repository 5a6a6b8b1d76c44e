package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/services"
)

type APIHandlers struct {
	templateService *services.Template
	instanceService *services.Instance
	validator       *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	instanceService *services.Instance,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		instanceService: instanceService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvalflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approvalflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	if batchType := c.Query("batch_type"); batchType != "" {
		templates, err := h.templateService.ListByBatchType(c.Context(), models.BatchType(batchType))
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(templates)
	}

	templates, err := h.templateService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var template models.WorkflowTemplate
	if err := c.Bind().JSON(&template); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.templateService.Create(c.Context(), &template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var template models.WorkflowTemplate
	if err := c.Bind().JSON(&template); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.templateService.Update(c.Context(), id, &template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DuplicateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	copied, err := h.templateService.Duplicate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(copied)
}

func (h *APIHandlers) SetDefaultTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.SetDefault(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ImportTemplate(c fiber.Ctx) error {
	imported, err := h.templateService.ImportJSON(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(imported)
}

func (h *APIHandlers) SubmitInstance(c fiber.Ctx) error {
	var req SubmitInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.Submit(c.Context(), services.SubmitRequest{
		BatchType:  models.BatchType(req.BatchType),
		EntityID:   req.EntityID,
		TemplateID: req.TemplateID,
		Entity:     req.Entity,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.instanceService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	status := c.Query("status")
	if status == "" {
		return badRequest(c, "Query parameter 'status' is required")
	}

	instances, err := h.instanceService.ListByStatus(c.Context(), models.InstanceStatus(status))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) AdvanceInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req AdvanceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.instanceService.Advance(c.Context(), id, req.Entity)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) ApproveStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Instance ID and step ID are required")
	}

	var req VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.Approve(c.Context(), id, stepID, req.ApproverID, req.Comments, req.Entity)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) RejectStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Instance ID and step ID are required")
	}

	var req VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.Reject(c.Context(), id, stepID, req.ApproverID, req.Comments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}
