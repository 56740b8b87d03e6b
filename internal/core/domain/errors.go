package domain

import "errors"

// User-visible failures. The messages are shown to the map user as-is.
var (
	ErrNothingToExport = errors.New("no geometries found")
	ErrNotZipArchive   = errors.New("Please provide a zip file!")
	ErrUnreadableFile  = errors.New("cannot read file")
	ErrArchiveTooLarge = errors.New("archive exceeds the upload size limit")
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrShapeNotFound     = errors.New("shape not found")
	ErrOverlayNotFound   = errors.New("overlay not found")
	ErrSceneNotFound     = errors.New("A scene with this ID is currently not stored in the database.")

	ErrToolDisabled    = errors.New("draw tool disabled")
	ErrUnknownKind     = errors.New("unknown shape kind")
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrTooManyShapes   = errors.New("workspace shape limit reached")
	ErrInvalidSource   = errors.New("invalid overlay source")
	ErrInvalidFilename = errors.New("filename does not follow the pyroSAR naming scheme")
	ErrInvalidTile     = errors.New("tile coordinates out of range")
	ErrTileUnavailable = errors.New("tile unavailable upstream")
)
