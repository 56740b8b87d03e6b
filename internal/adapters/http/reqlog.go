package http

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type ctxKey int

const loggerKey ctxKey = iota

// RequestIDLogMiddleware stores a request-scoped *slog.Logger in the user
// context. It carries the request ID and, on workspace and scene routes,
// the workspace_id or scene_id the path addresses.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		attrs := resourceAttrs(c.Path())
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			attrs = append([]any{"request_id", rid}, attrs...)
		}
		if len(attrs) == 0 {
			return c.Next()
		}

		ctx := context.WithValue(c.UserContext(), loggerKey, slog.Default().With(attrs...))
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// resourceAttrs picks the addressed id out of /v1/workspaces/{id}/...,
// /v1/scenes/{id}/... and the /meta/{id} page.
func resourceAttrs(path string) []any {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i+1] == "" {
			continue
		}
		switch parts[i] {
		case "workspaces":
			return []any{"workspace_id", parts[i+1]}
		case "scenes", "meta":
			return []any{"scene_id", parts[i+1]}
		}
	}
	return nil
}

// LoggerFromCtx extracts the per-request slog.Logger from a context.
// Falls back to the default logger if none is set.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
