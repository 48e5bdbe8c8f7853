// Package workspace owns the mutable image state of one analysis session:
// the immutable original, the working copy operations mutate, the binary
// mask set by segmentation, and the canvas set by visualization. The
// annotation store lives in the same session but is addressed separately
// and survives resets.
package workspace

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// Workspace is the buffer state for one session. All four buffers are
// exclusively owned here; a reset rebuilds working/binary/canvas from the
// original and leaves the annotation store untouched.
type Workspace struct {
	original *Buffer

	// Working is mutated in place by processing steps.
	Working *Buffer
	// Binary is set by segmentation-class steps, nil before that.
	Binary *Buffer
	// Canvas is the visible/exportable result, nil until visualization.
	Canvas *Buffer

	// Annotations is the session's annotation store.
	Annotations *annotation.Store

	// DirPath is where results for this session are written.
	DirPath string
	// FilePrefix and Tag key result file names: <prefix>_<artifact>_<tag>.<ext>.
	FilePrefix string
	Tag        string
}

// New builds a workspace around an original image. The original is cloned
// once and never handed out mutable.
func New(original *Buffer, dirPath, filePrefix, tag string) (*Workspace, error) {
	if original == nil || len(original.Pix) == 0 {
		return nil, fmt.Errorf("workspace: no image loaded")
	}
	ws := &Workspace{
		original:    original.Clone(),
		Annotations: annotation.NewStore(),
		DirPath:     dirPath,
		FilePrefix:  filePrefix,
		Tag:         tag,
	}
	ws.Reset()
	return ws, nil
}

// Original returns the pristine source buffer. Callers must not mutate it;
// clone before writing.
func (w *Workspace) Original() *Buffer {
	return w.original
}

// Reset restores working/binary/canvas from the original. Invoked at the
// top of every loop iteration before re-execution. Annotations persist.
func (w *Workspace) Reset() {
	w.Working = w.original.Clone()
	w.Binary = nil
	w.Canvas = nil
}

// ResultName builds a result file name for an artifact kind, e.g.
// ("canvas", "png") -> "IMG01_canvas_v1.png".
func (w *Workspace) ResultName(artifact, ext string) string {
	name := artifact
	if w.FilePrefix != "" {
		name = w.FilePrefix + "_" + name
	}
	if w.Tag != "" {
		name = name + "_" + w.Tag
	}
	return name + "." + ext
}
