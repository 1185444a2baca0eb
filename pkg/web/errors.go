package web

import (
	"context"
	"errors"

	"github.com/dukex/flowmirror/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p, problems.ProblemMediaType)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", detail)
}

func forbidden(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, "forbidden", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p, problems.ProblemMediaType)
}

// handleServiceError maps the service error taxonomy onto problem responses.
// 4xx means the caller must change something, 503 means try again later.
func handleServiceError(c fiber.Ctx, err error) error {
	var serviceErr *services.ServiceError

	detail := err.Error()
	if errors.As(err, &serviceErr) && serviceErr.Message != "" {
		detail = serviceErr.Message
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return problem(c, fiber.StatusRequestTimeout, "request_cancelled", "request was cancelled before the engine answered")

	case errors.Is(err, services.ErrUnauthorized):
		return unauthorized(c, "authentication required")

	case errors.Is(err, services.ErrForbidden):
		return forbidden(c, "not allowed")

	case errors.Is(err, services.ErrSyncInProgress):
		return problem(c, fiber.StatusConflict, "sync_in_progress", "a sync run is already in progress")

	case errors.Is(err, services.ErrNoTriggerConfigured):
		return problem(c, fiber.StatusBadRequest, "no_trigger_configured", detail)

	case services.IsValidationError(err):
		return badRequest(c, detail)

	case services.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "not_found", "workflow not found")

	case services.IsUpstreamRejected(err):
		return problem(c, fiber.StatusUnprocessableEntity, "upstream_rejected", detail)

	case services.IsUpstreamUnavailable(err):
		return problem(c, fiber.StatusServiceUnavailable, "upstream_unavailable", detail)

	default:
		return internalError(c, err)
	}
}
