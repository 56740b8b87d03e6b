package workflows_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
	"github.com/samirrijal/s1webapp/internal/workflows"
)

// catalogRepo is an in-memory scene catalog. Inserts of paths containing
// failOn are rejected.
type catalogRepo struct {
	mu     sync.Mutex
	scenes []domain.Scene
	known  map[string]bool
	failOn string
}

func (r *catalogRepo) Insert(ctx context.Context, s *domain.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && strings.Contains(s.FilePath, r.failOn) {
		return errors.New("connection reset")
	}
	s.ID = int64(len(r.scenes) + 1)
	r.scenes = append(r.scenes, *s)
	return nil
}
func (r *catalogRepo) GetByID(ctx context.Context, id int64) (*domain.Scene, error) {
	return nil, domain.ErrSceneNotFound
}
func (r *catalogRepo) List(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
	return nil, 0, nil
}
func (r *catalogRepo) First(ctx context.Context) (*domain.Scene, error) {
	return nil, domain.ErrSceneNotFound
}
func (r *catalogRepo) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, p := range paths {
		if r.known[filepath.Base(p)] {
			out[p] = true
		}
	}
	return out, nil
}
func (r *catalogRepo) Outputs(ctx context.Context, sceneID int64) ([]domain.SceneOutput, error) {
	return nil, nil
}
func (r *catalogRepo) AddOutput(ctx context.Context, out *domain.SceneOutput) error { return nil }

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("tif"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func runScan(t *testing.T, repo *catalogRepo, dir string) (*workflows.ScanResult, error) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.SceneScanWorkflow)
	env.RegisterActivity(&workflows.ScanActivities{
		Scanner: usecases.NewScanService(repo, nil, nil),
	})

	env.ExecuteWorkflow(workflows.SceneScanWorkflow, workflows.ScanInput{Dir: dir})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		return nil, err
	}
	var res workflows.ScanResult
	if err := env.GetWorkflowResult(&res); err != nil {
		t.Fatalf("workflow result: %v", err)
	}
	return &res, nil
}

func TestSceneScanWorkflow_RegistersNewScenes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"S1A__IW___A_20150320T182611_147_VV_grd_mli_norm_geo_db.tif",
		"S1B__IW___D_20160101T060000_147_VH_grd_mli_norm_geo_db.tif",
		"S1A__IW___A_20140101T000000_147_VV_grd_mli_norm_geo_db.tif",
		"notes.txt",
	)
	repo := &catalogRepo{known: map[string]bool{
		"S1A__IW___A_20140101T000000_147_VV_grd_mli_norm_geo_db.tif": true,
	}}

	res, err := runScan(t, repo, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 2 {
		t.Errorf("expected 2 new files, got %d", res.Found)
	}
	if len(res.Registered) != 2 || res.Registered[0] != 1 || res.Registered[1] != 2 {
		t.Errorf("unexpected registered ids %v", res.Registered)
	}
	if len(repo.scenes) != 2 {
		t.Fatalf("expected 2 stored scenes, got %d", len(repo.scenes))
	}
	if repo.scenes[1].Orbit != "descending" || repo.scenes[1].Sensor != "S1B" {
		t.Errorf("unexpected scene %+v", repo.scenes[1])
	}
}

func TestSceneScanWorkflow_SkipsAndFailures(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"S1A__IW___A_20150320T182611_147_VV_grd_mli_norm_geo_db.tif",
		"S1A__IW___D_20160101T060000_147_VH_grd_mli_norm_geo_db.tif",
		"S1B_short.tif",
	)
	repo := &catalogRepo{failOn: "20160101"}

	res, err := runScan(t, repo, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 3 {
		t.Errorf("expected 3 files, got %d", res.Found)
	}
	if len(res.Registered) != 1 {
		t.Errorf("expected 1 registered scene, got %v", res.Registered)
	}
	if len(res.Skipped) != 1 || filepath.Base(res.Skipped[0]) != "S1B_short.tif" {
		t.Errorf("expected the short name to be skipped, got %v", res.Skipped)
	}
	if len(res.Failed) != 1 || !strings.Contains(res.Failed[0], "20160101") {
		t.Errorf("expected the failing insert to be reported, got %v", res.Failed)
	}
}

func TestSceneScanWorkflow_MissingDirectory(t *testing.T) {
	_, err := runScan(t, &catalogRepo{}, filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for a missing scan directory")
	}
}
