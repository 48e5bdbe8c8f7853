package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Imageomics/phenopype/internal/annotation"
)

const sampleYAML = `processing_steps:
- preprocessing:
  - create_mask:
      ANNOTATION: {type: mask, id: a, edit: false}
      tool: polygon
  - blur:
      kernel_size: 15
- segmentation:
  - threshold:
      method: otsu
  - morphology:
      operation: close
      shape: ellipse
      kernel_size: 3
      iterations: 10
  - detect_contour
- measurement
- visualization:
  - select_canvas:
      canvas: raw
  - draw_contour:
      line_width: 2
`

func TestParseShape(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(doc.Steps))
	}

	pre := doc.Steps[0]
	if pre.Name != "preprocessing" || len(pre.Methods) != 2 {
		t.Fatalf("unexpected first step: %+v", pre)
	}

	mask := pre.Methods[0]
	if mask.Name != "create_mask" {
		t.Fatalf("method name = %q", mask.Name)
	}
	if mask.Annotation == nil {
		t.Fatal("ANNOTATION block not extracted")
	}
	if mask.Annotation.Type != annotation.Mask || mask.Annotation.ID != "a" || mask.Annotation.Edit != annotation.EditLocked {
		t.Errorf("control = %+v", mask.Annotation)
	}
	if _, ok := mask.Args.Get("ANNOTATION"); ok {
		t.Error("ANNOTATION must be removed from operation args")
	}
	if got := mask.Args.String("tool", ""); got != "polygon" {
		t.Errorf("tool arg = %q", got)
	}

	// bare method
	if doc.Steps[1].Methods[2].Name != "detect_contour" {
		t.Errorf("bare method lost: %+v", doc.Steps[1].Methods)
	}

	// bare step has nil methods
	if doc.Steps[2].Name != "measurement" || doc.Steps[2].Methods != nil {
		t.Errorf("bare step not preserved: %+v", doc.Steps[2])
	}
}

func TestParsePreservesArgOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	morph := doc.Steps[1].Methods[1]
	var keys []string
	for _, p := range morph.Args.Pairs {
		keys = append(keys, p.Key)
	}
	want := []string{"operation", "shape", "kernel_size", "iterations"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("arg order = %v, want %v", keys, want)
	}
}

func TestRoundTripStable(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, data)
	}
	if !doc.Equal(again) {
		t.Errorf("round trip changed document:\n%s", data)
	}

	// and a second encode of the reparsed value is byte-identical
	data2, err := Marshal(again)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(data2) {
		t.Errorf("second marshal differs:\n--- first\n%s\n--- second\n%s", data, data2)
	}
}

func TestMarshalEmitsAnnotationFirstFlowStyle(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "ANNOTATION: {type: mask, id: a, edit: false}") {
		t.Errorf("ANNOTATION block not flow-style:\n%s", text)
	}
	if strings.Index(text, "ANNOTATION") > strings.Index(text, "tool:") {
		t.Error("ANNOTATION should precede operation args")
	}
}

func TestEqualIsOrderSensitive(t *testing.T) {
	a, _ := Parse([]byte(sampleYAML))
	b, _ := Parse([]byte(sampleYAML))
	if !a.Equal(b) {
		t.Fatal("identical parses must be equal")
	}

	b.Steps[1].Methods[0], b.Steps[1].Methods[1] = b.Steps[1].Methods[1], b.Steps[1].Methods[0]
	if a.Equal(b) {
		t.Error("method reorder must break equality")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a, _ := Parse([]byte(sampleYAML))
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone must equal source")
	}
	b.Steps[0].Methods[1].Args.Set("kernel_size", 99)
	if a.Equal(b) {
		t.Error("mutating clone leaked into source")
	}
	if got := a.Steps[0].Methods[1].Args.Int("kernel_size", 0); got != 15 {
		t.Errorf("source mutated: kernel_size = %d", got)
	}
}

func TestTemplateLocked(t *testing.T) {
	doc, err := Parse([]byte("template_locked: true\n" + sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if !doc.TemplateLocked() {
		t.Error("template_locked: true not detected")
	}

	plain, _ := Parse([]byte(sampleYAML))
	if plain.TemplateLocked() {
		t.Error("unlocked document reported locked")
	}
}

func TestExtraTopLevelKeysSurviveRewrite(t *testing.T) {
	in := "template_info:\n  author: someone\n" + sampleYAML + "notes: keep me\n"
	doc, err := Parse([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "author: someone") || !strings.Contains(text, "notes: keep me") {
		t.Errorf("extra keys dropped:\n%s", text)
	}
	if strings.Index(text, "template_info") > strings.Index(text, stepsKey) {
		t.Error("pre keys must stay before processing_steps")
	}
	if strings.Index(text, "notes:") < strings.Index(text, stepsKey) {
		t.Error("post keys must stay after processing_steps")
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"not yaml":        "{::",
		"no steps":        "foo: bar\n",
		"steps not seq":   "processing_steps: 12\n",
		"two-key method":  "processing_steps:\n- segmentation:\n  - threshold: {method: otsu}\n    blur: {kernel_size: 3}\n",
		"bad annotation":  "processing_steps:\n- preprocessing:\n  - create_mask:\n      ANNOTATION: {type: blob}\n",
		"bad edit policy": "processing_steps:\n- preprocessing:\n  - create_mask:\n      ANNOTATION: {edit: maybe}\n",
	}
	for name, in := range cases {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("IMG01", "v1"))
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(doc, path); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Equal(again) {
		t.Error("save/load changed document")
	}
}

func TestCheckTag(t *testing.T) {
	for _, ok := range []string{"v1", "run-2", "A"} {
		if err := CheckTag(ok); err != nil {
			t.Errorf("CheckTag(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has space", "canvas", strings.Repeat("x", 40)} {
		if err := CheckTag(bad); err == nil {
			t.Errorf("CheckTag(%q): expected error", bad)
		}
	}
}
