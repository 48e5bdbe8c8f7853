package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/workspace"
)

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	buf := workspace.NewBuffer(6, 6, 1)
	ws, err := workspace.New(buf, t.TempDir(), "fish1", "v1")
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return ws
}

func seededStore() *annotation.Store {
	store := annotation.NewStore()
	store.Apply(&annotation.Annotation{
		Type: annotation.Mask, ID: "a", Edit: annotation.EditLocked,
		Payload: &annotation.MaskPayload{
			Label: "roi", Include: true,
			Polygons: [][]annotation.Point{{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}}},
		},
	})
	return store
}

func TestPersistWritesArtifacts(t *testing.T) {
	ws := testWorkspace(t)
	ws.Canvas = ws.Working.Multi()

	e := &FileExporter{}
	if err := e.Persist(seededStore(), ws, []string{"segmentation", "visualization"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	for _, name := range []string{"fish1_canvas_v1.png", "fish1_annotations_v1.json"} {
		if _, err := os.Stat(filepath.Join(ws.DirPath, name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
}

func TestPersistSkipsCanvasWithoutVisualization(t *testing.T) {
	ws := testWorkspace(t)
	ws.Canvas = ws.Working.Multi()

	e := &FileExporter{}
	if err := e.Persist(seededStore(), ws, []string{"segmentation"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.DirPath, "fish1_canvas_v1.png")); err == nil {
		t.Error("canvas written without a resolved visualization step")
	}
}

func TestPersistIntoResultsStore(t *testing.T) {
	ws := testWorkspace(t)
	results, err := OpenResults(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("OpenResults: %v", err)
	}
	defer results.Close()

	e := &FileExporter{Results: results}
	if err := e.Persist(seededStore(), ws, []string{"preprocessing"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	sessions, err := results.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Image != "fish1" {
		t.Fatalf("sessions = %+v", sessions)
	}
	anns, err := results.ListAnnotations(sessions[0].ID)
	if err != nil {
		t.Fatalf("ListAnnotations: %v", err)
	}
	if len(anns) != 1 {
		t.Errorf("annotations = %d, want 1", len(anns))
	}
}

func TestLoadAnnotationsRoundTrip(t *testing.T) {
	ws := testWorkspace(t)
	store := seededStore()

	e := &FileExporter{}
	if err := e.Persist(store, ws, nil); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := annotation.NewStore()
	if err := LoadAnnotations(restored, ws); err != nil {
		t.Fatalf("LoadAnnotations: %v", err)
	}
	got := restored.Get(annotation.Mask, "a")
	if got == nil {
		t.Fatal("mask not restored")
	}
	payload := got.Payload.(*annotation.MaskPayload)
	if payload.Label != "roi" || len(payload.Polygons) != 1 {
		t.Errorf("restored payload = %+v", payload)
	}
}

func TestLoadAnnotationsMissingFile(t *testing.T) {
	ws := testWorkspace(t)
	if err := LoadAnnotations(annotation.NewStore(), ws); err != nil {
		t.Errorf("missing annotation file treated as error: %v", err)
	}
}

func TestCollect(t *testing.T) {
	dataDir := t.TempDir()
	for _, f := range []struct{ dir, name string }{
		{"fish1", "fish1_canvas_v1.png"},
		{"fish1", "fish1_annotations_v1.json"},
		{"fish2", "fish2_canvas_v1.png"},
		{"fish2", "fish2_canvas_v2.png"},
	} {
		dir := filepath.Join(dataDir, f.dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	resultsDir := filepath.Join(t.TempDir(), "results")
	n, err := Collect(dataDir, resultsDir, "v1", []string{"canvas"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n != 2 {
		t.Fatalf("copied = %d, want 2", n)
	}
	for _, name := range []string{"fish1_fish1_canvas_v1.png", "fish2_fish2_canvas_v1.png"} {
		if _, err := os.Stat(filepath.Join(resultsDir, name)); err != nil {
			t.Errorf("collected file %s missing: %v", name, err)
		}
	}
}
