package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

var pages = map[string]*template.Template{
	"home":  parsePage("home.html"),
	"about": parsePage("about.html"),
	"table": parsePage("table.html"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(webFS, "web/templates/base.html", "web/templates/"+name))
}

// tablePage feeds table.html, shared by the overview and metadata pages.
type tablePage struct {
	Title   string
	Message string
	Headers []string
	Rows    [][]tableCell
}

type tableCell struct {
	Text string
	Link string
}

// render executes a page template into the response.
func render(c *fiber.Ctx, status int, page string, data any) error {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "base", data); err != nil {
		return errInternal(c, err.Error())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

// HomePageHandler serves the map page. The page loads its configuration
// from /v1/map and keeps its shapes in a server-side workspace.
func HomePageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return render(c, fiber.StatusOK, "home", nil)
	}
}

// AboutPageHandler serves the about page.
func AboutPageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return render(c, fiber.StatusOK, "about", nil)
	}
}

// OverviewPageHandler lists the scenes currently in the catalog.
func OverviewPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := tablePage{
			Title:   "Scenes currently stored in the database:",
			Headers: []string{"ID", "Filename"},
		}
		if deps.Scenes == nil {
			page.Message = "The scene catalog is not available."
			return render(c, fiber.StatusServiceUnavailable, "table", page)
		}

		scenes, _, err := deps.Scenes.List(c.UserContext(), c.QueryInt("offset", 0), 100)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list scenes", "error", err)
			page.Message = "The scene catalog could not be read."
			return render(c, fiber.StatusInternalServerError, "table", page)
		}
		for _, s := range scenes {
			id := strconv.FormatInt(s.ID, 10)
			page.Rows = append(page.Rows, []tableCell{
				{Text: id, Link: "/meta/" + id},
				{Text: s.FileName()},
			})
		}
		return render(c, fiber.StatusOK, "table", page)
	}
}

// MetaPageHandler shows the metadata table of one scene.
func MetaPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := tablePage{
			Title:   "Metadata for scene #" + c.Params("id"),
			Headers: []string{"Attribute", "Value"},
		}
		if deps.Scenes == nil {
			page.Message = "The scene catalog is not available."
			return render(c, fiber.StatusServiceUnavailable, "table", page)
		}
		id, ok := sceneID(c)
		if !ok {
			page.Message = domain.ErrSceneNotFound.Error()
			return render(c, fiber.StatusNotFound, "table", page)
		}

		rows, err := deps.Scenes.Meta(c.UserContext(), id)
		switch {
		case errors.Is(err, domain.ErrSceneNotFound):
			page.Message = domain.ErrSceneNotFound.Error()
			return render(c, fiber.StatusNotFound, "table", page)
		case err != nil:
			LoggerFromCtx(c.UserContext()).Error("scene metadata", "scene_id", id, "error", err)
			page.Message = "The scene catalog could not be read."
			return render(c, fiber.StatusInternalServerError, "table", page)
		}
		for _, r := range rows {
			page.Rows = append(page.Rows, []tableCell{{Text: r.Attr}, {Text: r.Val}})
		}
		return render(c, fiber.StatusOK, "table", page)
	}
}

// SetupPages registers the HTML pages and their static assets.
func SetupPages(app *fiber.App, deps *Dependencies) {
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	app.Use("/static", filesystem.New(filesystem.Config{
		Root:   http.FS(static),
		MaxAge: 3600,
	}))

	app.Get("/", HomePageHandler())
	app.Get("/home", HomePageHandler())
	app.Get("/about", AboutPageHandler())
	app.Get("/overview", OverviewPageHandler(deps))
	app.Get("/meta/:id", MetaPageHandler(deps))
}
