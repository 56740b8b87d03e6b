package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
)

// errTypeInvalidFilename marks registrations that must not be retried.
const errTypeInvalidFilename = "InvalidFilename"

// ScanActivities holds the activity implementations for the scan workflow.
type ScanActivities struct {
	Scanner *usecases.ScanService
}

// ScanDirectory returns the scene files in dir that are not yet registered.
func (a *ScanActivities) ScanDirectory(ctx context.Context, dir string) ([]string, error) {
	paths, err := a.Scanner.Scan(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	activity.GetLogger(ctx).Info("scan finished", "dir", dir, "new", len(paths))
	return paths, nil
}

// RegisterScene stores one scene file and returns its catalog id.
func (a *ScanActivities) RegisterScene(ctx context.Context, path string) (int64, error) {
	scene, err := a.Scanner.Register(ctx, path)
	if errors.Is(err, domain.ErrInvalidFilename) {
		return 0, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidFilename, err)
	}
	if err != nil {
		return 0, err
	}
	return scene.ID, nil
}
