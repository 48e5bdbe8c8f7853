package ops

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/workspace"
)

// Threshold converts the working image to a binary mask. Args: method
// (otsu or binary), value (for binary, default 127), invert. Include
// masks in the store restrict the foreground; exclude masks carve it out.
// The result replaces the working image and is kept as the binary buffer.
func Threshold(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	gray := ws.Working.Gray()

	var cut uint8
	switch method := ctx.Args.String("method", "otsu"); method {
	case "otsu":
		cut = otsu(gray)
	case "binary":
		v := ctx.Args.Int("value", 127)
		if v < 0 || v > 255 {
			return Continue, fmt.Errorf("threshold: value %d out of range", v)
		}
		cut = uint8(v)
	default:
		return Continue, fmt.Errorf("threshold: unknown method %q", method)
	}

	invert := ctx.Args.Bool("invert", false)
	for i, v := range gray.Pix {
		fg := v > cut
		if invert {
			fg = !fg
		}
		if fg {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}

	applyMasks(ctx, gray)

	ws.Working = gray
	ws.Binary = gray.Clone()
	return Continue, nil
}

// applyMasks restricts a binary buffer to the store's mask annotations:
// with at least one include mask, pixels outside every include polygon
// are cleared; exclude-mask polygons always clear.
func applyMasks(ctx *Context, bin *workspace.Buffer) {
	masks := ctx.Store.ByType(annotation.Mask)
	if len(masks) == 0 {
		return
	}

	var includes, excludes [][]annotation.Point
	for _, ann := range masks {
		payload, ok := ann.Payload.(*annotation.MaskPayload)
		if !ok {
			continue
		}
		if payload.Include {
			includes = append(includes, payload.Polygons...)
		} else {
			excludes = append(excludes, payload.Polygons...)
		}
	}

	if len(includes) > 0 {
		stencil := workspace.NewBuffer(bin.W, bin.H, 1)
		for _, poly := range includes {
			fillPolygon(stencil, poly, 255)
		}
		for i := range bin.Pix {
			if stencil.Pix[i] == 0 {
				bin.Pix[i] = 0
			}
		}
	}
	for _, poly := range excludes {
		fillPolygon(bin, poly, 0)
	}
}

// Morphology applies a morphological operation to the working image.
// Args: operation (erode, dilate, open, close), kernel_size, iterations.
func Morphology(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	kernel := ctx.Args.Int("kernel_size", 3)
	iterations := ctx.Args.Int("iterations", 1)
	op := ctx.Args.String("operation", "close")

	for i := 0; i < iterations; i++ {
		switch op {
		case "erode":
			morph(ws.Working, false, kernel)
		case "dilate":
			morph(ws.Working, true, kernel)
		case "open":
			morph(ws.Working, false, kernel)
			morph(ws.Working, true, kernel)
		case "close":
			morph(ws.Working, true, kernel)
			morph(ws.Working, false, kernel)
		default:
			return Continue, fmt.Errorf("morphology: unknown operation %q", op)
		}
	}
	if ws.Binary != nil {
		ws.Binary = ws.Working.Clone()
	}
	return Continue, nil
}

// DetectContour traces component outlines from the binary buffer. Args:
// min_area (pixels, default 25). Requires a segmentation result.
func DetectContour(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	if ws.Binary == nil {
		return Continue, fmt.Errorf("detect_contour: no binary image, run a segmentation method first")
	}

	coords := traceContours(ws.Binary, ctx.Args.Int("min_area", 25))
	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.ContourPayload{Coords: coords},
	})
	return Continue, nil
}

// EditContour applies manual strokes to the binary buffer and records
// them as a drawing annotation. Args: strokes as coords
// [[[x, y], ...], ...], include (default true), width.
func EditContour(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	if ws.Binary == nil {
		return Continue, fmt.Errorf("edit_contour: no binary image, run a segmentation method first")
	}

	v, ok := ctx.Args.Get("coords")
	if !ok {
		return Continue, fmt.Errorf("edit_contour: coords argument is required")
	}
	polylines, err := parsePolygons(v)
	if err != nil {
		return Continue, fmt.Errorf("edit_contour: %w", err)
	}
	include := ctx.Args.Bool("include", true)
	width := ctx.Args.Int("width", 1)

	var value uint8
	if include {
		value = 255
	}
	colour := [3]uint8{value, value, value}

	strokes := make([]annotation.Stroke, 0, len(polylines))
	for _, line := range polylines {
		for i := 0; i+1 < len(line); i++ {
			drawLine(ws.Binary, line[i], line[i+1], colour, width)
		}
		strokes = append(strokes, annotation.Stroke{Points: line, Include: include, Width: width})
	}
	ws.Working = ws.Binary.Clone()

	payload := &annotation.DrawingPayload{Strokes: strokes}
	if ctx.Existing != nil && ctx.Annotation.Edit == annotation.EditAppend {
		if prev, ok := ctx.Existing.Payload.(*annotation.DrawingPayload); ok {
			payload.Strokes = append(append([]annotation.Stroke{}, prev.Strokes...), strokes...)
		}
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: payload,
	})
	return Continue, nil
}

// DetectSkeleton thins the binary buffer and records the skeleton as
// line annotations.
func DetectSkeleton(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	if ws.Binary == nil {
		return Continue, fmt.Errorf("detect_skeleton: no binary image, run a segmentation method first")
	}

	skel := ws.Binary.Clone()
	thin(skel)
	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.LinePayload{Lines: skeletonSegments(skel)},
	})
	return Continue, nil
}

// ContourToMask converts stored contours into a mask annotation. Args:
// contour_id (default "a"), label.
func ContourToMask(ctx *Context) (Control, error) {
	contourID := ctx.Args.String("contour_id", "a")
	src := ctx.Store.Get(annotation.Contour, contourID)
	if src == nil {
		return Continue, fmt.Errorf("contour_to_mask: no contour annotation with id %q", contourID)
	}
	payload, ok := src.Payload.(*annotation.ContourPayload)
	if !ok {
		return Continue, fmt.Errorf("contour_to_mask: contour %q has no coordinate payload", contourID)
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.MaskPayload{
			Label:    ctx.Args.String("label", "contour_"+contourID),
			Include:  true,
			Polygons: payload.Coords,
		},
	})
	return Continue, nil
}
