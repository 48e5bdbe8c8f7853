package ops

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/workspace"
)

// SelectCanvas picks the buffer that draw operations paint onto.
// Args: canvas (mod, raw, bin, gray, red, green, blue; default mod).
func SelectCanvas(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	name := ctx.Args.String("canvas", "mod")

	switch name {
	case "mod":
		ws.Canvas = ws.Working.Multi()
	case "raw":
		ws.Canvas = ws.Original().Multi()
	case "bin", "binary":
		if ws.Binary == nil {
			return Continue, fmt.Errorf("select_canvas: no binary image to select")
		}
		ws.Canvas = ws.Binary.Multi()
	case "gray", "grey":
		ws.Canvas = ws.Working.Gray().Multi()
	case "red", "green", "blue":
		idx := map[string]int{"red": 0, "green": 1, "blue": 2}[name]
		ch, err := ws.Working.Channel(idx)
		if err != nil {
			return Continue, fmt.Errorf("select_canvas: %w", err)
		}
		ws.Canvas = ch.Multi()
	default:
		return Continue, fmt.Errorf("select_canvas: unknown canvas %q", name)
	}
	return Continue, nil
}

// DrawContour paints stored contour outlines onto the canvas.
// Args: contour_id, line_colour, line_width, fill.
func DrawContour(ctx *Context) (Control, error) {
	if ctx.Workspace.Canvas == nil {
		return Continue, fmt.Errorf("draw_contour: no canvas selected")
	}
	contourID := ctx.Args.String("contour_id", "a")
	src := ctx.Store.Get(annotation.Contour, contourID)
	if src == nil {
		return Continue, fmt.Errorf("draw_contour: no contour annotation with id %q", contourID)
	}
	payload, ok := src.Payload.(*annotation.ContourPayload)
	if !ok {
		return Continue, fmt.Errorf("draw_contour: contour %q has no coordinate payload", contourID)
	}

	col := colourOrDefault(ctx.Args.String("line_colour", ""), "lime")
	width := ctx.Args.Int("line_width", 1)
	fill := ctx.Args.Bool("fill", false)

	for _, ring := range payload.Coords {
		if fill {
			fillPolygonColour(ctx.Workspace.Canvas, ring, col)
			continue
		}
		drawRing(ctx.Workspace.Canvas, ring, col, width)
	}
	return Continue, nil
}

// DrawLandmark paints stored landmarks as dots. Args: landmark_id,
// point_colour, point_size.
func DrawLandmark(ctx *Context) (Control, error) {
	if ctx.Workspace.Canvas == nil {
		return Continue, fmt.Errorf("draw_landmark: no canvas selected")
	}
	id := ctx.Args.String("landmark_id", "a")
	src := ctx.Store.Get(annotation.Landmark, id)
	if src == nil {
		return Continue, fmt.Errorf("draw_landmark: no landmark annotation with id %q", id)
	}
	payload, ok := src.Payload.(*annotation.LandmarkPayload)
	if !ok {
		return Continue, fmt.Errorf("draw_landmark: landmark %q has no point payload", id)
	}

	col := colourOrDefault(ctx.Args.String("point_colour", ""), "red")
	size := ctx.Args.Int("point_size", 3)
	for _, p := range payload.Points {
		drawDot(ctx.Workspace.Canvas, p.X, p.Y, col, size)
	}
	return Continue, nil
}

// DrawMask paints stored mask polygon outlines. Args: mask_id,
// line_colour, line_width.
func DrawMask(ctx *Context) (Control, error) {
	if ctx.Workspace.Canvas == nil {
		return Continue, fmt.Errorf("draw_mask: no canvas selected")
	}
	id := ctx.Args.String("mask_id", "a")
	src := ctx.Store.Get(annotation.Mask, id)
	if src == nil {
		return Continue, fmt.Errorf("draw_mask: no mask annotation with id %q", id)
	}
	payload, ok := src.Payload.(*annotation.MaskPayload)
	if !ok {
		return Continue, fmt.Errorf("draw_mask: mask %q has no polygon payload", id)
	}

	col := colourOrDefault(ctx.Args.String("line_colour", ""), "blue")
	width := ctx.Args.Int("line_width", 1)
	for _, poly := range payload.Polygons {
		drawRing(ctx.Workspace.Canvas, poly, col, width)
	}
	return Continue, nil
}

// DrawPolyline paints stored polylines. Args: line_id, line_colour,
// line_width.
func DrawPolyline(ctx *Context) (Control, error) {
	if ctx.Workspace.Canvas == nil {
		return Continue, fmt.Errorf("draw_polyline: no canvas selected")
	}
	id := ctx.Args.String("line_id", "a")
	src := ctx.Store.Get(annotation.Line, id)
	if src == nil {
		return Continue, fmt.Errorf("draw_polyline: no line annotation with id %q", id)
	}
	payload, ok := src.Payload.(*annotation.LinePayload)
	if !ok {
		return Continue, fmt.Errorf("draw_polyline: line %q has no coordinate payload", id)
	}

	col := colourOrDefault(ctx.Args.String("line_colour", ""), "lime")
	width := ctx.Args.Int("line_width", 1)
	for _, line := range payload.Lines {
		for i := 1; i < len(line); i++ {
			drawLine(ctx.Workspace.Canvas, line[i-1], line[i], col, width)
		}
	}
	return Continue, nil
}

// drawRing connects the points of a closed ring, including the closing
// segment.
func drawRing(b *workspace.Buffer, ring []annotation.Point, col [3]uint8, width int) {
	if len(ring) == 0 {
		return
	}
	for i := 1; i < len(ring); i++ {
		drawLine(b, ring[i-1], ring[i], col, width)
	}
	if len(ring) > 2 {
		drawLine(b, ring[len(ring)-1], ring[0], col, width)
	}
}
