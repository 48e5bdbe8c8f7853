package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/ops"
	"github.com/Imageomics/phenopype/internal/workspace"
)

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	buf := workspace.NewBuffer(8, 8, 1)
	for i := range buf.Pix {
		buf.Pix[i] = 40
	}
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			buf.Set(x, y, 0, 200)
		}
	}
	ws, err := workspace.New(buf, t.TempDir(), "img1", "v1")
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return ws
}

// stubRegistry registers recording no-ops under real annotation-producing
// names so classification uses the production tables.
func stubRegistry(t *testing.T, calls *[]string, entries map[string][]string) *ops.Registry {
	t.Helper()
	r := ops.NewRegistry()
	for step, names := range entries {
		for _, name := range names {
			name := name
			op := func(ctx *ops.Context) (ops.Control, error) {
				*calls = append(*calls, name)
				if ctx.Annotation != nil {
					ctx.Store.Apply(&annotation.Annotation{
						Type: ctx.Annotation.Type,
						ID:   ctx.Annotation.ID,
						Edit: ctx.Annotation.Edit,
						Payload: &annotation.CommentPayload{
							Label: "stub", Text: name,
						},
					})
				}
				return ops.Continue, nil
			}
			if err := r.Register(step, name, op); err != nil {
				t.Fatalf("register %s.%s: %v", step, name, err)
			}
		}
	}
	return r
}

func newEngine(t *testing.T, r *ops.Registry) *Engine {
	t.Helper()
	e, err := New(r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func newEngineWithAliases(t *testing.T, r *ops.Registry, aliases map[string]map[string]string) *Engine {
	t.Helper()
	e, err := New(r, aliases)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestIDAssignmentIsDeterministic(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask", "detect_mask", "contour_to_mask"},
	})
	// contour_to_mask lives in segmentation in the builtin set; for the
	// table it only matters that all three produce masks
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{{
		Name: "preprocessing",
		Methods: []config.Method{
			{Name: "create_mask"},
			{Name: "detect_mask"},
			{Name: "contour_to_mask"},
		},
	}}}

	updated, _, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		ctrl := updated.Steps[0].Methods[i].Annotation
		if ctrl == nil || ctrl.ID != want {
			t.Errorf("method %d annotation id = %+v, want %q", i, ctrl, want)
		}
		if ctrl != nil && ctrl.Type != annotation.Mask {
			t.Errorf("method %d annotation type = %q, want mask", i, ctrl.Type)
		}
	}
}

func TestExplicitIDDoesNotShiftLaterDefaults(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask", "detect_mask"},
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{{
		Name: "preprocessing",
		Methods: []config.Method{
			{Name: "create_mask", Annotation: &config.Control{ID: "roi"}},
			{Name: "detect_mask"},
		},
	}}}

	updated, _, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if got := updated.Steps[0].Methods[0].Annotation.ID; got != "roi" {
		t.Errorf("explicit id = %q, want roi", got)
	}
	if got := updated.Steps[0].Methods[1].Annotation.ID; got != "b" {
		t.Errorf("second mask id = %q, want b (counter advanced past the explicit id)", got)
	}
}

func TestIdempotentRewrite(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask"},
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{{
		Name: "preprocessing",
		Methods: []config.Method{{
			Name: "create_mask",
			Annotation: &config.Control{
				Type: annotation.Mask, ID: "a", Edit: annotation.EditLocked,
			},
		}},
	}}}

	_, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Dry})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if res.Changed {
		t.Error("already-normalized document reported as changed")
	}
}

func TestAliasFixupIsStable(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"measurement": {"set_landmark"},
	})
	e := newEngineWithAliases(t, r, map[string]map[string]string{
		"measurement": {"landmarks": "set_landmark"},
	})

	doc := &config.Document{Steps: []config.Step{{
		Name:    "measurement",
		Methods: []config.Method{{Name: "landmarks"}},
	}}}

	updated, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Dry, FixNames: true})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if !res.Changed {
		t.Error("alias substitution did not mark the document changed")
	}
	if got := updated.Steps[0].Methods[0].Name; got != "set_landmark" {
		t.Fatalf("method name = %q, want set_landmark", got)
	}

	_, res2, err := e.Iterate(updated, testWorkspace(t), annotation.NewStore(), Options{Mode: Dry, FixNames: true})
	if err != nil {
		t.Fatalf("second Iterate: %v", err)
	}
	if res2.Changed {
		t.Error("second pass over a fixed document changed it again")
	}
}

func TestAliasFixupDisabled(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"measurement": {"set_landmark"},
	})
	e := newEngineWithAliases(t, r, map[string]map[string]string{
		"measurement": {"landmarks": "set_landmark"},
	})

	doc := &config.Document{Steps: []config.Step{{
		Name:    "measurement",
		Methods: []config.Method{{Name: "landmarks"}},
	}}}

	_, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("legacy name invoked without fix-names: %v", calls)
	}
	if res.Changed {
		t.Error("skipped method changed the document")
	}
}

func TestLockedAnnotationSurvivesRerun(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask"},
	})
	e := newEngine(t, r)

	store := annotation.NewStore()
	original := &annotation.Annotation{
		Type: annotation.Mask, ID: "a", Edit: annotation.EditLocked,
		Payload: &annotation.CommentPayload{Label: "keep", Text: "user refined"},
	}
	store.Apply(original)

	doc := &config.Document{Steps: []config.Step{{
		Name: "preprocessing",
		Methods: []config.Method{{
			Name: "create_mask",
			Annotation: &config.Control{
				Type: annotation.Mask, ID: "a", Edit: annotation.EditLocked,
			},
		}},
	}}}

	if _, _, err := e.Iterate(doc, testWorkspace(t), store, Options{Mode: Execute}); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	got := store.Get(annotation.Mask, "a").Payload.(*annotation.CommentPayload)
	if got.Text != "user refined" {
		t.Errorf("locked payload replaced: %+v", got)
	}
}

func TestEditedPolicyUnlocksStoredRecord(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask"},
	})
	e := newEngine(t, r)

	store := annotation.NewStore()
	store.Apply(&annotation.Annotation{
		Type: annotation.Mask, ID: "a", Edit: annotation.EditLocked,
		Payload: &annotation.CommentPayload{Label: "old", Text: "stale"},
	})

	// the user flipped edit: false to edit: overwrite in the file
	doc := &config.Document{Steps: []config.Step{{
		Name: "preprocessing",
		Methods: []config.Method{{
			Name: "create_mask",
			Annotation: &config.Control{
				Type: annotation.Mask, ID: "a", Edit: annotation.EditOverwrite,
			},
		}},
	}}}

	if _, _, err := e.Iterate(doc, testWorkspace(t), store, Options{Mode: Execute}); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	rec := store.Get(annotation.Mask, "a")
	got := rec.Payload.(*annotation.CommentPayload)
	if got.Text != "create_mask" {
		t.Errorf("overwrite policy from the document did not replace: %+v", got)
	}
	if rec.Edit != annotation.EditOverwrite {
		t.Errorf("stored policy = %q, want overwrite", rec.Edit)
	}
}

func TestFailureIsolation(t *testing.T) {
	var calls []string
	r := ops.NewRegistry()
	r.Register("preprocessing", "blur", func(*ops.Context) (ops.Control, error) {
		return ops.Continue, errors.New("boom")
	})
	r.Register("segmentation", "threshold", func(*ops.Context) (ops.Control, error) {
		calls = append(calls, "threshold")
		return ops.Continue, nil
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{
		{Name: "preprocessing", Methods: []config.Method{{Name: "blur"}}},
		{Name: "segmentation", Methods: []config.Method{{Name: "threshold"}}},
	}}

	_, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	if res.Failures[0].Step != "preprocessing" || res.Failures[0].Method != "blur" {
		t.Errorf("failure = %+v", res.Failures[0])
	}
	if len(calls) != 1 {
		t.Errorf("later step did not run after failure: %v", calls)
	}
}

func TestDebugPropagatesFailure(t *testing.T) {
	r := ops.NewRegistry()
	r.Register("preprocessing", "blur", func(*ops.Context) (ops.Control, error) {
		return ops.Continue, errors.New("boom")
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{
		{Name: "preprocessing", Methods: []config.Method{{Name: "blur"}}},
	}}

	if _, _, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute, Debug: true}); err == nil {
		t.Error("debug mode swallowed the failure")
	}
}

func TestRestartShortCircuitsPass(t *testing.T) {
	var calls []string
	r := ops.NewRegistry()
	r.Register("preprocessing", "blur", func(*ops.Context) (ops.Control, error) {
		calls = append(calls, "blur")
		return ops.RestartPass, nil
	})
	r.Register("segmentation", "threshold", func(*ops.Context) (ops.Control, error) {
		calls = append(calls, "threshold")
		return ops.Continue, nil
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{
		{Name: "preprocessing", Methods: []config.Method{{Name: "blur"}}},
		{Name: "segmentation", Methods: []config.Method{{Name: "threshold"}}},
	}}

	_, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if !res.Restarted {
		t.Error("restart verdict not reported")
	}
	if len(calls) != 1 || calls[0] != "blur" {
		t.Errorf("calls after restart = %v, want [blur]", calls)
	}
}

func TestThresholdScenario(t *testing.T) {
	doc, err := config.Parse([]byte(`processing_steps:
  - segmentation:
      - threshold:
          method: otsu
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := newEngine(t, ops.Builtin())

	ws := testWorkspace(t)
	_, res, err := e.Iterate(doc, ws, annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("failures: %v", res.Failures)
	}
	if ws.Binary == nil {
		t.Error("threshold did not set the binary buffer")
	}
	if res.Changed {
		t.Error("normalized document reported as changed")
	}
}

func TestCreateMaskScenario(t *testing.T) {
	doc, err := config.Parse([]byte(`processing_steps:
  - preprocessing:
      - create_mask
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := newEngine(t, ops.Builtin())

	store := annotation.NewStore()
	updated, res, err := e.Iterate(doc, testWorkspace(t), store, Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if !res.Changed {
		t.Error("annotation-control injection did not change the document")
	}
	ctrl := updated.Steps[0].Methods[0].Annotation
	if ctrl == nil || ctrl.Type != annotation.Mask || ctrl.ID != "a" || ctrl.Edit != annotation.EditLocked {
		t.Fatalf("injected control = %+v, want mask/a/false", ctrl)
	}
	if store.Get(annotation.Mask, "a") == nil {
		t.Error("mask annotation not stored")
	}

	_, res2, err := e.Iterate(updated, testWorkspace(t), store, Options{Mode: Execute})
	if err != nil {
		t.Fatalf("second Iterate: %v", err)
	}
	if res2.Changed {
		t.Error("second pass rewrote an already-normalized document")
	}
}

func TestImplicitSelectCanvas(t *testing.T) {
	doc := &config.Document{Steps: []config.Step{{
		Name: "visualization",
		Methods: []config.Method{{
			Name: "draw_contour",
		}},
	}}}
	e := newEngine(t, ops.Builtin())

	ws := testWorkspace(t)
	store := annotation.NewStore()
	store.Apply(&annotation.Annotation{
		Type: annotation.Contour, ID: "a", Edit: annotation.EditOverwrite,
		Payload: &annotation.ContourPayload{
			Coords: [][]annotation.Point{{{X: 1, Y: 1}, {X: 5, Y: 1}, {X: 5, Y: 5}, {X: 1, Y: 5}}},
		},
	})

	_, res, err := e.Iterate(doc, ws, store, Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("failures: %v", res.Failures)
	}
	if ws.Canvas == nil {
		t.Error("implicit select_canvas did not run")
	}
}

func TestRewritePersistsToSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pype_config_v1.yaml")
	raw := []byte(`processing_steps:
  - preprocessing:
      - create_mask
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	e := newEngine(t, ops.Builtin())
	updated, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{
		Mode: Execute, Source: path,
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if !res.Changed {
		t.Fatal("expected a rewrite")
	}

	reloaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Equal(updated) {
		t.Error("persisted document differs from the returned one")
	}
}

func TestResolvedSteps(t *testing.T) {
	var calls []string
	r := stubRegistry(t, &calls, map[string][]string{
		"preprocessing": {"create_mask"},
		"segmentation":  {"detect_contour"},
	})
	e := newEngine(t, r)

	doc := &config.Document{Steps: []config.Step{
		{Name: "preprocessing", Methods: []config.Method{{Name: "create_mask"}}},
		{Name: "measurement", Methods: []config.Method{{Name: "no_such_method"}}},
		{Name: "segmentation", Methods: []config.Method{{Name: "detect_contour"}}},
		{Name: "export"},
	}}

	_, res, err := e.Iterate(doc, testWorkspace(t), annotation.NewStore(), Options{Mode: Execute})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []string{"preprocessing", "segmentation"}
	if len(res.ResolvedSteps) != len(want) {
		t.Fatalf("resolved steps = %v, want %v", res.ResolvedSteps, want)
	}
	for i := range want {
		if res.ResolvedSteps[i] != want[i] {
			t.Errorf("resolved steps = %v, want %v", res.ResolvedSteps, want)
		}
	}
}
