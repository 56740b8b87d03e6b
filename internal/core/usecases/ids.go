package usecases

import (
	"fmt"

	"github.com/teris-io/shortid"
)

// newID returns a short URL-safe id for shapes, layers and overlays.
func newID() (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}
