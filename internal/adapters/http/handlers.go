package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// shapeRequest is the body of a draw or edit call. The geometry is a plain
// GeoJSON geometry object as produced by Leaflet's toGeoJSON().geometry.
type shapeRequest struct {
	Kind       string            `json:"kind"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

func (r shapeRequest) geometry() orb.Geometry {
	if r.Geometry == nil {
		return nil
	}
	return r.Geometry.Geometry()
}

// CreateWorkspaceHandler starts an empty workspace for a new map page.
func CreateWorkspaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		w, err := deps.Workspaces.Create(c.UserContext())
		if err != nil {
			return domainError(c, err)
		}
		c.Location("/v1/workspaces/" + w.ID)
		return c.Status(fiber.StatusCreated).JSON(w)
	}
}

// GetWorkspaceHandler returns a workspace with its shapes, layers and overlays.
func GetWorkspaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		w, err := deps.Workspaces.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return domainError(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(w)
	}
}

// DeleteWorkspaceHandler discards a workspace when its page unloads.
func DeleteWorkspaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Workspaces.Close(c.UserContext(), c.Params("id")); err != nil {
			return domainError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListShapesHandler returns the editable collection.
func ListShapesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shapes, err := deps.Workspaces.Shapes(c.UserContext(), c.Params("id"))
		if err != nil {
			return domainError(c, err)
		}
		if shapes == nil {
			shapes = []domain.Shape{}
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(shapes)
	}
}

// DrawShapeHandler adds a shape drawn with one of the toolbar tools.
func DrawShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req shapeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid shape body: "+err.Error())
		}
		if req.Kind == "" {
			return errBadRequest(c, "kind is required")
		}

		shape, err := deps.Workspaces.Draw(c.UserContext(), c.Params("id"), req.Kind, req.geometry(), req.Properties)
		if err != nil {
			return domainError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(shape)
	}
}

// EditShapeHandler replaces a shape's geometry and merges its properties.
func EditShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req shapeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid shape body: "+err.Error())
		}
		if req.Geometry == nil && len(req.Properties) == 0 {
			return errBadRequest(c, "geometry or properties required")
		}

		shape, err := deps.Workspaces.Edit(c.UserContext(), c.Params("id"), c.Params("sid"), req.geometry(), req.Properties)
		if err != nil {
			return domainError(c, err)
		}
		return c.JSON(shape)
	}
}

// DeleteShapeHandler removes one shape.
func DeleteShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Workspaces.Remove(c.UserContext(), c.Params("id"), c.Params("sid")); err != nil {
			return domainError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ClearShapesHandler removes every shape and imported layer.
func ClearShapesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := deps.Workspaces.Clear(c.UserContext(), c.Params("id"))
		if err != nil {
			return domainError(c, err)
		}
		return c.JSON(fiber.Map{"removed": n})
	}
}

// ExportHandler serves the collection as drawnItems.geojson. With
// ?format=datauri it returns the href/download pair the page turns into a
// synthetic anchor click instead.
func ExportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		exp, err := deps.Workspaces.Export(c.UserContext(), c.Params("id"))
		if err != nil {
			return domainError(c, err)
		}

		c.Set("Cache-Control", "no-store")
		switch c.Query("format", "file") {
		case "datauri":
			return c.JSON(exp)
		case "file":
			c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, exp.FileName))
			c.Set(fiber.HeaderContentType, "application/geo+json")
			return c.Send(exp.Document)
		}
		return errBadRequest(c, "format must be file or datauri")
	}
}

// ImportHandler adds the features of an uploaded zipped shapefile.
func ImportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest(c, "file is required")
		}
		if !domain.IsZipName(fh.Filename) {
			return domainError(c, domain.ErrNotZipArchive)
		}
		if deps.MaxImportBytes > 0 && fh.Size > deps.MaxImportBytes {
			return domainError(c, domain.ErrArchiveTooLarge)
		}

		f, err := fh.Open()
		if err != nil {
			return domainError(c, fmt.Errorf("%w: %v", domain.ErrUnreadableFile, err))
		}
		defer f.Close()

		res, err := deps.Workspaces.Import(c.UserContext(), c.Params("id"), fh.Filename, f, fh.Size)
		if err != nil {
			return domainError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListOverlaysHandler returns the raster overlays of a workspace.
func ListOverlaysHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		overlays, err := deps.Overlays.List(c.UserContext(), c.Params("id"))
		if err != nil {
			return domainError(c, err)
		}
		if overlays == nil {
			overlays = []domain.RasterOverlay{}
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(overlays)
	}
}

// AddOverlayHandler attaches a raster overlay.
func AddOverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.RasterOverlay
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid overlay body: "+err.Error())
		}
		if req.Source == "" {
			return errBadRequest(c, "source is required")
		}

		o, err := deps.Overlays.Add(c.UserContext(), c.Params("id"), req)
		if err != nil {
			return domainError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(o)
	}
}

// DeleteOverlayHandler detaches a raster overlay.
func DeleteOverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Overlays.Remove(c.UserContext(), c.Params("id"), c.Params("oid")); err != nil {
			return domainError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// OverlayDataHandler streams the raw raster bytes; the page decodes them.
// The stream outlives the handler, so it runs on a context that is not
// cancelled when the handler returns.
func OverlayDataHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.WithoutCancel(c.UserContext())
		rc, err := deps.Overlays.Open(ctx, c.Params("id"), c.Params("oid"))
		if err != nil {
			return domainError(c, err)
		}
		c.Set(fiber.HeaderContentType, "image/tiff")
		c.Set("Cache-Control", "private, max-age=300")
		return c.SendStream(rc)
	}
}
