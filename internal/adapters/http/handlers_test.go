package http_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonas-p/go-shp"

	handler "github.com/samirrijal/s1webapp/internal/adapters/http"
	"github.com/samirrijal/s1webapp/internal/adapters/memory"
	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
	"github.com/samirrijal/s1webapp/internal/pkg/shapefile"
)

// ---- Mock repositories ----

type mockSceneRepo struct {
	listFn    func(ctx context.Context, offset, limit int) ([]domain.Scene, int, error)
	getByIDFn func(ctx context.Context, id int64) (*domain.Scene, error)
	outputsFn func(ctx context.Context, sceneID int64) ([]domain.SceneOutput, error)
}

func (m *mockSceneRepo) Insert(ctx context.Context, s *domain.Scene) error { return nil }
func (m *mockSceneRepo) GetByID(ctx context.Context, id int64) (*domain.Scene, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrSceneNotFound
}
func (m *mockSceneRepo) List(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}
func (m *mockSceneRepo) First(ctx context.Context) (*domain.Scene, error) {
	return nil, domain.ErrSceneNotFound
}
func (m *mockSceneRepo) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (m *mockSceneRepo) Outputs(ctx context.Context, sceneID int64) ([]domain.SceneOutput, error) {
	if m.outputsFn != nil {
		return m.outputsFn(ctx, sceneID)
	}
	return nil, nil
}
func (m *mockSceneRepo) AddOutput(ctx context.Context, out *domain.SceneOutput) error {
	out.ID = 1
	return nil
}

// ---- Test helpers ----

var testView = domain.MapView{
	Center: domain.GeoPoint{Lat: 50.926453, Lon: 11.587832},
	Zoom:   11,
	TileLayer: domain.TileLayer{
		URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "OpenStreetMap contributors",
		MaxZoom:     18,
		Subdomains:  []string{"a", "b", "c"},
	},
	Draw: domain.DrawOptions{Polygon: true, Rectangle: true, Circle: true, Remove: true},
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	store := memory.NewWorkspaceStore()
	d := &handler.Dependencies{
		Workspaces: usecases.NewWorkspaceService(store, shapefile.Decoder{}, nil, usecases.WorkspaceOptions{
			Draw:           testView.Draw,
			MaxShapes:      100,
			MaxImportBytes: 1 << 20,
		}),
		Overlays:       usecases.NewOverlayService(store, "", nil, nil),
		Maps:           usecases.NewMapService(testView, false, nil),
		MaxImportBytes: 1 << 20,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func withScenes(repo *mockSceneRepo) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		d.Scenes = usecases.NewSceneService(repo, nil)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeAPIError(t *testing.T, resp *http.Response) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(readBody(t, resp.Body), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func createWorkspace(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := doJSON(t, app, "POST", "/v1/workspaces", nil)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var w domain.Workspace
	if err := json.Unmarshal(readBody(t, resp.Body), &w); err != nil {
		t.Fatal(err)
	}
	return w.ID
}

var squareGeometry = map[string]any{
	"type": "Polygon",
	"coordinates": [][][]float64{{
		{11.5, 50.9}, {11.7, 50.9}, {11.7, 51.0}, {11.5, 51.0}, {11.5, 50.9},
	}},
}

// uploadRequest builds a multipart request with the archive in field "file".
func uploadRequest(t *testing.T, path, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parcelsZip returns a zipped shapefile holding one square around Jena.
func parcelsZip(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	w, err := shp.Create(filepath.Join(dir, "parcels.shp"), shp.POLYGON)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	square := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: 11.5, Y: 50.9},
		{X: 11.5, Y: 51.0},
		{X: 11.7, Y: 51.0},
		{X: 11.7, Y: 50.9},
		{X: 11.5, Y: 50.9},
	}}))
	w.Write(&square)
	if err := w.SetFields([]shp.Field{shp.StringField("NAME", 20)}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteAttribute(0, 0, "Jena"); err != nil {
		t.Fatal(err)
	}
	w.Close()
	// go-shp v0.1.1 names the table "<base>dbf"
	if err := os.Rename(filepath.Join(dir, "parcelsdbf"), filepath.Join(dir, "parcels.dbf")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range []string{"parcels.shp", "parcels.shx", "parcels.dbf"} {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			t.Fatal(err)
		}
		f, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/health", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.Unmarshal(readBody(t, resp.Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", body["status"])
	}
}

func TestReady_NoBackends(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/ready", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 without configured backends, got %d", resp.StatusCode)
	}
}

// ---- Workspaces and shapes ----

func TestWorkspace_Lifecycle(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp := doJSON(t, app, "GET", "/v1/workspaces/"+id, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "DELETE", "/v1/workspaces/"+id, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/workspaces/"+id, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	if apiErr := decodeAPIError(t, resp); apiErr.Code != "not_found" {
		t.Errorf("expected code not_found, got %s", apiErr.Code)
	}
}

func TestDrawShape_Success(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp := doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
		"kind":       "polygon",
		"geometry":   squareGeometry,
		"properties": map[string]any{"name": "field"},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var shape domain.Shape
	if err := json.Unmarshal(readBody(t, resp.Body), &shape); err != nil {
		t.Fatal(err)
	}
	if shape.ID == "" || shape.Kind != domain.KindPolygon {
		t.Errorf("unexpected shape %+v", shape)
	}
	if shape.Geometry == nil || shape.Geometry.GeoJSONType() != "Polygon" {
		t.Errorf("expected polygon geometry, got %v", shape.Geometry)
	}

	resp = doJSON(t, app, "GET", "/v1/workspaces/"+id+"/shapes", nil)
	var shapes []domain.Shape
	if err := json.Unmarshal(readBody(t, resp.Body), &shapes); err != nil {
		t.Fatal(err)
	}
	if len(shapes) != 1 {
		t.Errorf("expected 1 shape, got %d", len(shapes))
	}
}

func TestDrawShape_Errors(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{"disabled tool", map[string]any{
			"kind":     "polyline",
			"geometry": map[string]any{"type": "LineString", "coordinates": [][]float64{{11.5, 50.9}, {11.6, 50.95}}},
		}, 403, "tool_disabled"},
		{"unknown kind", map[string]any{"kind": "hexagon", "geometry": squareGeometry}, 400, "bad_request"},
		{"missing kind", map[string]any{"geometry": squareGeometry}, 400, "bad_request"},
		{"missing geometry", map[string]any{"kind": "polygon"}, 400, "bad_request"},
		{"circle without radius", map[string]any{
			"kind":     "circle",
			"geometry": map[string]any{"type": "Point", "coordinates": []float64{11.5, 50.9}},
		}, 400, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if apiErr := decodeAPIError(t, resp); apiErr.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, apiErr.Code)
			}
		})
	}
}

func TestEditAndDeleteShape(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp := doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
		"kind":       "circle",
		"geometry":   map[string]any{"type": "Point", "coordinates": []float64{11.5, 50.9}},
		"properties": map[string]any{"radius": 250},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var shape domain.Shape
	if err := json.Unmarshal(readBody(t, resp.Body), &shape); err != nil {
		t.Fatal(err)
	}

	resp = doJSON(t, app, "PATCH", "/v1/workspaces/"+id+"/shapes/"+shape.ID, map[string]any{
		"geometry":   map[string]any{"type": "Point", "coordinates": []float64{11.6, 50.95}},
		"properties": map[string]any{"radius": 500},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var edited domain.Shape
	if err := json.Unmarshal(readBody(t, resp.Body), &edited); err != nil {
		t.Fatal(err)
	}
	if edited.Properties["radius"] != 500.0 {
		t.Errorf("expected radius 500, got %v", edited.Properties["radius"])
	}

	resp = doJSON(t, app, "DELETE", "/v1/workspaces/"+id+"/shapes/"+shape.ID, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, app, "DELETE", "/v1/workspaces/"+id+"/shapes/"+shape.ID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for removed shape, got %d", resp.StatusCode)
	}
}

func TestClearShapes(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
			"kind": "polygon", "geometry": squareGeometry,
		})
		if resp.StatusCode != 201 {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
	}

	resp := doJSON(t, app, "DELETE", "/v1/workspaces/"+id+"/shapes", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]int
	if err := json.Unmarshal(readBody(t, resp.Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["removed"] != 3 {
		t.Errorf("expected 3 removed, got %d", body["removed"])
	}
}

// ---- Export ----

func TestExport_Empty(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp := doJSON(t, app, "GET", "/v1/workspaces/"+id+"/export", nil)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != "no_geometries" || apiErr.Message != "no geometries found" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if resp.Header.Get("Content-Disposition") != "" {
		t.Error("expected no download for an empty collection")
	}
}

func TestExport_Attachment(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)
	for i := 0; i < 2; i++ {
		doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
			"kind": "rectangle", "geometry": squareGeometry,
		})
	}

	resp := doJSON(t, app, "GET", "/v1/workspaces/"+id+"/export", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="drawnItems.geojson"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Errorf("expected FeatureCollection with 2 features, got %s with %d", fc.Type, len(fc.Features))
	}
}

func TestExport_DataURI(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)
	doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
		"kind": "polygon", "geometry": squareGeometry,
	})

	resp := doJSON(t, app, "GET", "/v1/workspaces/"+id+"/export?format=datauri", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var exp struct {
		Href     string `json:"href"`
		Download string `json:"download"`
		Shapes   int    `json:"shapes"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &exp); err != nil {
		t.Fatal(err)
	}
	const prefix = "data:text/json;charset=utf-8,"
	if !strings.HasPrefix(exp.Href, prefix) {
		t.Fatalf("unexpected href %.60s", exp.Href)
	}
	payload, err := url.PathUnescape(strings.TrimPrefix(exp.Href, prefix))
	if err != nil {
		t.Fatalf("unescape href: %v", err)
	}
	var doc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		t.Fatalf("href payload is not JSON: %v", err)
	}
	if doc.Type != "FeatureCollection" || len(doc.Features) != 1 {
		t.Errorf("expected a FeatureCollection of 1, got %s with %d features", doc.Type, len(doc.Features))
	}
	if exp.Download != "drawnItems.geojson" || exp.Shapes != 1 {
		t.Errorf("unexpected export %+v", exp)
	}
}

// ---- Import ----

func TestImport_NotZip(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp, err := app.Test(uploadRequest(t, "/v1/workspaces/"+id+"/import", "shapes.rar", []byte("rar!")), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != "invalid_archive" || apiErr.Message != "Please provide a zip file!" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestImport_NotZipCheckedBeforeSize(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.MaxImportBytes = 8 }))
	id := createWorkspace(t, app)

	resp, err := app.Test(uploadRequest(t, "/v1/workspaces/"+id+"/import", "shapes.rar", bytes.Repeat([]byte("r"), 64)), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for a large non-zip upload, got %d", resp.StatusCode)
	}
	if apiErr := decodeAPIError(t, resp); apiErr.Message != "Please provide a zip file!" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestImport_TooLarge(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.MaxImportBytes = 8 }))
	id := createWorkspace(t, app)

	resp, err := app.Test(uploadRequest(t, "/v1/workspaces/"+id+"/import", "parcels.zip", bytes.Repeat([]byte("z"), 64)), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 413 {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestImport_MissingFile(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	req := httptest.NewRequest("POST", "/v1/workspaces/"+id+"/import", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestImport_Unreadable(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp, err := app.Test(uploadRequest(t, "/v1/workspaces/"+id+"/import", "broken.zip", []byte("not a zip")), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if apiErr := decodeAPIError(t, resp); apiErr.Message != "cannot read file" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}

	resp = doJSON(t, app, "GET", "/v1/workspaces/"+id+"/shapes", nil)
	if body := readBody(t, resp.Body); string(body) != "[]" {
		t.Errorf("expected workspace unchanged, got %s", body)
	}
}

func TestImport_Shapefile(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)

	resp, err := app.Test(uploadRequest(t, "/v1/workspaces/"+id+"/import", "parcels.zip", parcelsZip(t)), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var res domain.ImportResult
	if err := json.Unmarshal(readBody(t, resp.Body), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Layers) != 1 || res.Layers[0].Name != "parcels" {
		t.Fatalf("unexpected layers %+v", res.Layers)
	}
	if len(res.Shapes) != 1 || res.Shapes[0].Properties["NAME"] != "Jena" {
		t.Fatalf("unexpected shapes %+v", res.Shapes)
	}
	want := domain.Bounds{MinLat: 50.9, MinLon: 11.5, MaxLat: 51.0, MaxLon: 11.7}
	if res.Bounds != want {
		t.Errorf("expected bounds %+v, got %+v", want, res.Bounds)
	}

	// imported features are part of the export
	resp = doJSON(t, app, "GET", "/v1/workspaces/"+id+"/export?format=datauri", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// ---- Overlays ----

func TestOverlays(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "ndvi.tif"), []byte("II*\x00raster"), 0o644); err != nil {
		t.Fatal(err)
	}
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Overlays = usecases.NewOverlayService(memoryStoreOf(t, d), dataDir, nil, nil)
	}))
	id := createWorkspace(t, app)

	resp := doJSON(t, app, "POST", "/v1/workspaces/"+id+"/overlays", map[string]any{"source": "../etc/passwd"})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for traversal, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "POST", "/v1/workspaces/"+id+"/overlays", map[string]any{"source": "ndvi.tif"})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var o domain.RasterOverlay
	if err := json.Unmarshal(readBody(t, resp.Body), &o); err != nil {
		t.Fatal(err)
	}
	if o.Opacity != domain.DefaultOverlayOpacity || o.Resolution != domain.DefaultOverlayResolution {
		t.Errorf("expected defaults, got %+v", o)
	}

	resp = doJSON(t, app, "GET", "/v1/workspaces/"+id+"/overlays/"+o.ID+"/data", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); string(body) != "II*\x00raster" {
		t.Errorf("unexpected raster bytes %q", body)
	}

	resp = doJSON(t, app, "DELETE", "/v1/workspaces/"+id+"/overlays/"+o.ID, nil)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

// memoryStoreOf rebuilds the workspace service on a fresh store shared with
// the overlay service.
func memoryStoreOf(t *testing.T, d *handler.Dependencies) *memory.WorkspaceStore {
	t.Helper()
	store := memory.NewWorkspaceStore()
	d.Workspaces = usecases.NewWorkspaceService(store, shapefile.Decoder{}, nil, usecases.WorkspaceOptions{
		Draw:      testView.Draw,
		MaxShapes: 100,
	})
	return store
}

// ---- Map and tiles ----

func TestMapConfig(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/map", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var v domain.MapView
	if err := json.Unmarshal(readBody(t, resp.Body), &v); err != nil {
		t.Fatal(err)
	}
	if v.Zoom != 11 || v.Center.Lat != 50.926453 {
		t.Errorf("unexpected view %+v", v)
	}
	if v.TileLayer.URLTemplate != testView.TileLayer.URLTemplate {
		t.Errorf("expected upstream tile template, got %s", v.TileLayer.URLTemplate)
	}
	if !v.Draw.Polygon || v.Draw.Polyline {
		t.Errorf("unexpected draw options %+v", v.Draw)
	}
}

func TestTiles(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\ntile")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer upstream.Close()

	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Tiles = usecases.NewTileService(domain.TileLayer{
			URLTemplate: upstream.URL + "/{z}/{x}/{y}.png",
			MaxZoom:     18,
		}, nil, upstream.Client(), time.Hour, "s1webapp-test")
	}))

	resp := doJSON(t, app, "GET", "/tiles/1/1/0", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if body := readBody(t, resp.Body); !bytes.Equal(body, png) {
		t.Errorf("unexpected tile bytes %q", body)
	}

	resp = doJSON(t, app, "GET", "/tiles/1/2/0", nil)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for tile out of range, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/map", nil)
	var v domain.MapView
	if err := json.Unmarshal(readBody(t, resp.Body), &v); err != nil {
		t.Fatal(err)
	}
	if v.TileLayer.URLTemplate != "/tiles/{z}/{x}/{y}" || len(v.TileLayer.Subdomains) != 0 {
		t.Errorf("expected proxied tile layer, got %+v", v.TileLayer)
	}
}

func TestTiles_ProxyDisabled(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/tiles/1/1/0", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Scenes ----

func jenaScene(id int64) *domain.Scene {
	res := 20
	return &domain.Scene{
		ID:       id,
		Sensor:   "S1A",
		Orbit:    "ascending",
		Date:     time.Date(2015, 3, 20, 18, 26, 11, 0, time.UTC),
		FilePath: "/data/input/S1A__IW___A_20150320T182611_147_VV_grd_mli_norm_geo_db.tif",
		Meta:     &domain.SceneMetadata{AcqMode: "IW", Polarisation: "VV", Resolution: &res},
	}
}

func TestScenes_Unavailable(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/scenes", nil)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestListScenes_Pagination(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		listFn: func(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
			if offset != 2 || limit != 2 {
				t.Errorf("expected offset 2 limit 2, got %d %d", offset, limit)
			}
			return []domain.Scene{*jenaScene(3), *jenaScene(4)}, 7, nil
		},
	})))

	resp := doJSON(t, app, "GET", "/v1/scenes?offset=2&limit=2", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `</v1/scenes?offset=4&limit=2>; rel="next"`) {
		t.Errorf("missing next link in %q", link)
	}

	var result struct {
		Data       []domain.Scene     `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Data) != 2 || result.Pagination.Total != 7 {
		t.Errorf("unexpected page %+v", result.Pagination)
	}
}

func TestListScenes_LinksKeepQueryAndAlignLastPage(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		listFn: func(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
			return []domain.Scene{*jenaScene(1), *jenaScene(2)}, 7, nil
		},
	})))

	resp := doJSON(t, app, "GET", "/v1/scenes?limit=2&view=compact", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	link := resp.Header.Get("Link")
	for _, want := range []string{
		`</v1/scenes?offset=0&limit=2&view=compact>; rel="first"`,
		`</v1/scenes?offset=2&limit=2&view=compact>; rel="next"`,
		`</v1/scenes?offset=6&limit=2&view=compact>; rel="last"`,
	} {
		if !strings.Contains(link, want) {
			t.Errorf("missing %s in %q", want, link)
		}
	}
	if strings.Contains(link, `rel="prev"`) {
		t.Errorf("first page should have no prev link: %q", link)
	}
}

func TestListScenes_LimitOutOfRange(t *testing.T) {
	tests := []struct {
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"", 0, 50},
		{"?limit=0", 0, 50},
		{"?limit=500", 0, 50},
		{"?offset=-3&limit=10", 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := setupApp(makeDeps(withScenes(&mockSceneRepo{
				listFn: func(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
					if offset != tt.wantOffset || limit != tt.wantLimit {
						t.Errorf("expected offset %d limit %d, got %d %d", tt.wantOffset, tt.wantLimit, offset, limit)
					}
					return nil, 0, nil
				},
			})))
			resp := doJSON(t, app, "GET", "/v1/scenes"+tt.query, nil)
			if resp.StatusCode != 200 {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
		})
	}
}

func TestGetScene(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Scene, error) {
			if id == 1 {
				return jenaScene(1), nil
			}
			return nil, domain.ErrSceneNotFound
		},
	})))

	resp := doJSON(t, app, "GET", "/v1/scenes/1", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/scenes/2", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/scenes/abc", nil)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSceneMeta(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Scene, error) {
			return jenaScene(id), nil
		},
	})))

	resp := doJSON(t, app, "GET", "/v1/scenes/5/meta", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rows []domain.MetaRow
	if err := json.Unmarshal(readBody(t, resp.Body), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 9 || rows[0].Val != "5" || rows[6].Val != "20" {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestAddSceneOutput(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.Scene, error) {
			return jenaScene(id), nil
		},
	})))

	resp := doJSON(t, app, "POST", "/v1/scenes/1/outputs", map[string]string{"description": "ndvi"})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 without filepath, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "POST", "/v1/scenes/1/outputs", map[string]string{
		"description": "ndvi", "filepath": "output/ndvi.tif",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out domain.SceneOutput
	if err := json.Unmarshal(readBody(t, resp.Body), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != 1 || out.SceneID != 1 {
		t.Errorf("unexpected output %+v", out)
	}
}

// ---- Pages ----

func TestHomePage(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	for _, id := range []string{`id="map"`, `id="export"`, `id="import"`, `id="file-select"`, `id="warning"`} {
		if !strings.Contains(body, id) {
			t.Errorf("home page misses %s", id)
		}
	}
}

func TestLegacyMapRoute(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/map", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if link := resp.Header.Get("Link"); link != `</home>; rel="successor-version"` {
		t.Errorf("unexpected Link %q", link)
	}
}

func TestMetaPage_NotFound(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{})))

	resp := doJSON(t, app, "GET", "/meta/42", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	if !strings.Contains(body, "A scene with this ID is currently not stored in the database.") {
		t.Error("expected not-stored message")
	}
}

func TestOverviewPage(t *testing.T) {
	app := setupApp(makeDeps(withScenes(&mockSceneRepo{
		listFn: func(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
			return []domain.Scene{*jenaScene(1)}, 1, nil
		},
	})))

	resp := doJSON(t, app, "GET", "/overview", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	if !strings.Contains(body, `<a href="/meta/1">1</a>`) {
		t.Error("expected link to the scene metadata page")
	}
	if !strings.Contains(body, "S1A__IW___A_20150320T182611_147_VV_grd_mli_norm_geo_db.tif") {
		t.Error("expected scene file name")
	}
}

// ---- GraphQL ----

func TestGraphQL_MapConfig(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "POST", "/graphql", map[string]string{
		"query": "{ mapConfig { zoom center { lat lon } draw { polygon polyline } } }",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Data struct {
			MapConfig struct {
				Zoom int `json:"zoom"`
				Draw struct {
					Polygon  bool `json:"polygon"`
					Polyline bool `json:"polyline"`
				} `json:"draw"`
			} `json:"mapConfig"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if result.Data.MapConfig.Zoom != 11 || !result.Data.MapConfig.Draw.Polygon || result.Data.MapConfig.Draw.Polyline {
		t.Errorf("unexpected mapConfig %+v", result.Data.MapConfig)
	}
}

func TestGraphQL_Workspace(t *testing.T) {
	app := setupApp(makeDeps())
	id := createWorkspace(t, app)
	doJSON(t, app, "POST", "/v1/workspaces/"+id+"/shapes", map[string]any{
		"kind": "polygon", "geometry": squareGeometry,
	})

	resp := doJSON(t, app, "POST", "/graphql", map[string]any{
		"query":     "query($id: String!) { workspace(id: $id) { id shapes { kind geometry } } }",
		"variables": map[string]any{"id": id},
	})
	var result struct {
		Data struct {
			Workspace struct {
				ID     string `json:"id"`
				Shapes []struct {
					Kind     string `json:"kind"`
					Geometry string `json:"geometry"`
				} `json:"shapes"`
			} `json:"workspace"`
		} `json:"data"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatal(err)
	}
	ws := result.Data.Workspace
	if ws.ID != id || len(ws.Shapes) != 1 {
		t.Fatalf("unexpected workspace %+v", ws)
	}
	if ws.Shapes[0].Kind != "polygon" || !strings.Contains(ws.Shapes[0].Geometry, `"type":"Polygon"`) {
		t.Errorf("unexpected shape %+v", ws.Shapes[0])
	}
}
