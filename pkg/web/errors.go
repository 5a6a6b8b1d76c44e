package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/staffly/approvalflow/pkg/engine"
	"github.com/staffly/approvalflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, errType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(errType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service and engine
// layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsNotFoundError(err) || engine.IsInstanceNotFound(err):
		return notFound(c, err.Error())

	case engine.IsTerminalInstance(err):
		return conflict(c, "terminal_instance", err.Error())

	case engine.IsStepNotCurrent(err):
		return conflict(c, "step_not_current", err.Error())

	case engine.IsDuplicateVote(err):
		return conflict(c, "duplicate_vote", err.Error())

	case engine.IsUnknownApprover(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("unknown_approver").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case engine.IsMissingComments(err) || engine.IsInvalidTemplate(err):
		return badRequest(c, err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, "conflict", err.Error())

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
