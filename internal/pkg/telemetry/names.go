package telemetry

// Span names used for instrumentation.
const (
	SpanWorkspaceExport = "workspace.export"
	SpanWorkspaceImport = "workspace.import"
	SpanArchiveDecode   = "shapefile.decode"
	SpanSceneRegister   = "scenes.register"
	SpanSceneScan       = "scenes.scan"
	SpanTileFetch       = "tiles.fetch"
)

// Span attribute keys.
const (
	AttrWorkspaceID = "workspace.id"
	AttrShapeCount  = "workspace.shape_count"
	AttrFileName    = "upload.file_name"
	AttrFileSize    = "upload.size_bytes"
	AttrLayerCount  = "import.layer_count"
	AttrScenePath   = "scene.path"
	AttrTile        = "tile.zxy"
)
