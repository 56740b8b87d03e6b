package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// proxiedTileURL is the template the page uses when tiles are proxied.
const proxiedTileURL = "/tiles/{z}/{x}/{y}"

// mapView returns the page's map configuration, pointing the tile layer at
// the local proxy when one is running.
func mapView(c *fiber.Ctx, deps *Dependencies) *domain.MapView {
	v := deps.Maps.View(c.UserContext())
	if deps.Tiles != nil {
		v.TileLayer.URLTemplate = proxiedTileURL
		v.TileLayer.Subdomains = nil
	}
	return v
}

// MapConfigHandler returns center, zoom, tile layer and draw options.
func MapConfigHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(mapView(c, deps))
	}
}

// TileHandler serves a background tile through the caching proxy.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Tiles == nil {
			return errNotFound(c, "tile proxy disabled")
		}
		z, errZ := c.ParamsInt("z")
		x, errX := c.ParamsInt("x")
		y, errY := c.ParamsInt("y")
		if errZ != nil || errX != nil || errY != nil {
			return errBadRequest(c, "z, x and y must be integers")
		}

		data, contentType, err := deps.Tiles.Tile(c.UserContext(), z, x, y)
		if err != nil {
			return domainError(c, err)
		}
		c.Set(fiber.HeaderContentType, contentType)
		c.Set("Cache-Control", "public, max-age=86400")
		return c.Send(data)
	}
}

// sceneID parses the :id route parameter of scene routes.
func sceneID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

// ListScenesHandler returns a page of the scene catalog.
func ListScenesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Scenes == nil {
			return errUnavailable(c, "scene catalog not available")
		}

		pg := scenePageFromQuery(c)
		scenes, total, err := deps.Scenes.List(c.UserContext(), pg.Offset, pg.Limit)
		if err != nil {
			return domainError(c, err)
		}
		if scenes == nil {
			scenes = []domain.Scene{}
		}

		pg.Total = total
		SetLinkHeaders(c, pg)
		return c.JSON(ScenePage{Data: scenes, Pagination: pg})
	}
}

// GetSceneHandler returns one scene with metadata and geometry.
func GetSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Scenes == nil {
			return errUnavailable(c, "scene catalog not available")
		}
		id, ok := sceneID(c)
		if !ok {
			return errBadRequest(c, "scene id must be a positive integer")
		}

		scene, err := deps.Scenes.Get(c.UserContext(), id)
		if err != nil {
			return domainError(c, err)
		}
		return c.JSON(scene)
	}
}

// SceneMetaHandler returns the attribute table of a scene.
func SceneMetaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Scenes == nil {
			return errUnavailable(c, "scene catalog not available")
		}
		id, ok := sceneID(c)
		if !ok {
			return errBadRequest(c, "scene id must be a positive integer")
		}

		rows, err := deps.Scenes.Meta(c.UserContext(), id)
		if err != nil {
			return domainError(c, err)
		}
		return c.JSON(rows)
	}
}

// SceneOutputsHandler lists processed rasters derived from a scene.
func SceneOutputsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Scenes == nil {
			return errUnavailable(c, "scene catalog not available")
		}
		id, ok := sceneID(c)
		if !ok {
			return errBadRequest(c, "scene id must be a positive integer")
		}

		outputs, err := deps.Scenes.Outputs(c.UserContext(), id)
		if err != nil {
			return domainError(c, err)
		}
		if outputs == nil {
			outputs = []domain.SceneOutput{}
		}
		return c.JSON(outputs)
	}
}

// AddSceneOutputHandler records a processed raster for a scene.
func AddSceneOutputHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Scenes == nil {
			return errUnavailable(c, "scene catalog not available")
		}
		id, ok := sceneID(c)
		if !ok {
			return errBadRequest(c, "scene id must be a positive integer")
		}

		var req struct {
			Description string `json:"description"`
			FilePath    string `json:"filepath"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid output body: "+err.Error())
		}
		if req.Description == "" || req.FilePath == "" {
			return errBadRequest(c, "description and filepath are required")
		}

		out, err := deps.Scenes.AddOutput(c.UserContext(), id, req.Description, req.FilePath)
		if err != nil {
			return domainError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(out)
	}
}
