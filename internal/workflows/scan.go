package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ScanInput is the input for the scene scan workflow.
type ScanInput struct {
	Dir string
}

// ScanResult summarises one scan run.
type ScanResult struct {
	Found      int
	Registered []int64
	Skipped    []string // names outside the pyroSAR scheme
	Failed     []string // registrations that failed after all retries
}

// SceneScanWorkflow lists new scene files in the input directory and
// registers them one by one. A file that cannot be registered never stops
// the run; it is reported as skipped or failed.
func SceneScanWorkflow(ctx workflow.Context, input ScanInput) (*ScanResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting scene scan", "dir", input.Dir)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var paths []string
	if err := workflow.ExecuteActivity(ctx, "ScanDirectory", input.Dir).Get(ctx, &paths); err != nil {
		return nil, err
	}

	res := &ScanResult{Found: len(paths), Registered: []int64{}}
	for _, p := range paths {
		var id int64
		err := workflow.ExecuteActivity(ctx, "RegisterScene", p).Get(ctx, &id)
		if err != nil {
			var appErr *temporal.ApplicationError
			if errors.As(err, &appErr) && appErr.Type() == errTypeInvalidFilename {
				res.Skipped = append(res.Skipped, p)
				continue
			}
			logger.Warn("scene registration failed", "path", p, "error", err)
			res.Failed = append(res.Failed, p)
			continue
		}
		res.Registered = append(res.Registered, id)
	}

	logger.Info("Scene scan finished",
		"found", res.Found, "registered", len(res.Registered), "skipped", len(res.Skipped), "failed", len(res.Failed))
	return res, nil
}
