package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, no_geometries, etc.
	Message   string `json:"message"` // Human-readable message, shown to the map user as-is
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errUnavailable returns a 503 error for features whose backing service is
// not configured.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "unavailable", msg)
}

// domainError maps a service error onto a status code and error code.
// Unknown errors become 500s.
func domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNothingToExport):
		return newError(c, 422, "no_geometries", domain.ErrNothingToExport.Error())
	case errors.Is(err, domain.ErrNotZipArchive):
		return newError(c, 400, "invalid_archive", domain.ErrNotZipArchive.Error())
	case errors.Is(err, domain.ErrUnreadableFile):
		return newError(c, 422, "unreadable_file", domain.ErrUnreadableFile.Error())
	case errors.Is(err, domain.ErrArchiveTooLarge):
		return newError(c, 413, "payload_too_large", domain.ErrArchiveTooLarge.Error())
	case errors.Is(err, domain.ErrToolDisabled):
		return newError(c, 403, "tool_disabled", err.Error())
	case errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrInvalidGeometry),
		errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrInvalidTile):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrTooManyShapes):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrWorkspaceNotFound),
		errors.Is(err, domain.ErrShapeNotFound),
		errors.Is(err, domain.ErrOverlayNotFound),
		errors.Is(err, domain.ErrSceneNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrTileUnavailable):
		return newError(c, 502, "bad_gateway", err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, err.Error())
}
