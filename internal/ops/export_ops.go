package ops

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
)

// SaveCanvas writes the current canvas as a PNG artifact into the
// workspace directory. Args: resize (scale factor), overwrite.
func SaveCanvas(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	if ws.Canvas == nil {
		return Continue, fmt.Errorf("save_canvas: no canvas selected")
	}

	path := filepath.Join(ws.DirPath, ws.ResultName("canvas", "png"))
	if !ctx.Args.Bool("overwrite", true) {
		if _, err := os.Stat(path); err == nil {
			log.Info("canvas exists, skipping", "path", path)
			return Continue, nil
		}
	}

	canvas := ws.Canvas
	if factor := ctx.Args.Float("resize", 1); factor != 1 {
		canvas = canvas.Resize(factor)
	}

	f, err := os.Create(path)
	if err != nil {
		return Continue, fmt.Errorf("save_canvas: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, canvas.Image()); err != nil {
		return Continue, fmt.Errorf("save_canvas: encode %q: %w", path, err)
	}
	log.Info("saved canvas", "path", path)
	return Continue, nil
}

// SaveAnnotation writes the annotation store as a JSON artifact into
// the workspace directory. Args: overwrite.
func SaveAnnotation(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	path := filepath.Join(ws.DirPath, ws.ResultName("annotations", "json"))
	if !ctx.Args.Bool("overwrite", true) {
		if _, err := os.Stat(path); err == nil {
			log.Info("annotation file exists, skipping", "path", path)
			return Continue, nil
		}
	}

	data, err := ctx.Store.Encode()
	if err != nil {
		return Continue, fmt.Errorf("save_annotation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Continue, fmt.Errorf("save_annotation: %w", err)
	}
	log.Info("saved annotations", "path", path, "count", ctx.Store.Len())
	return Continue, nil
}
