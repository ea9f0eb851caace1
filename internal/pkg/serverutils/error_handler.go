package serverutils

import (
	"errors"

	"cluster-intelligence-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error from the service layer to an HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErr *ValidationError
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperror.ErrInsufficientData), errors.Is(err, apperror.ErrIncompatibleMerge):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperror.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, apperror.ErrExternalCollaborator):
		return fiber.StatusBadGateway
	case errors.Is(err, apperror.ErrLocked):
		return fiber.StatusLocked
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by handlers into error
// envelopes. Persistence and unknown failures are not echoed to clients.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
