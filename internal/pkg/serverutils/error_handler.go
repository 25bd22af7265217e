package serverutils

import (
	"errors"

	"docchat-be/pkg/store"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error returned by a handler to its HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var reqErr *ValidationError
	var storeValidation *store.ValidationError
	var busy *store.TurnInProgressError
	var ingestErr *store.IngestionError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &reqErr), errors.As(err, &storeValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrFileNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrNoActiveSession),
		errors.Is(err, store.ErrNoRegeneratableTurn),
		errors.As(err, &busy):
		return fiber.StatusConflict
	case errors.As(err, &ingestErr):
		if len(ingestErr.Succeeded) > 0 {
			return fiber.StatusMultiStatus
		}
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns handler errors into the JSON error envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}

		resp := ErrorResponse(code, message)
		var reqErr *ValidationError
		if errors.As(err, &reqErr) {
			resp.Data = reqErr.Fields
		}
		return c.Status(code).JSON(resp)
	}
}
