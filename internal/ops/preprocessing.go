package ops

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// Blur applies a box blur to the working image. Args: kernel_size (odd,
// default 5).
func Blur(ctx *Context) (Control, error) {
	kernel := ctx.Args.Int("kernel_size", 5)
	if kernel < 1 {
		return Continue, fmt.Errorf("blur: kernel_size %d out of range", kernel)
	}
	boxBlur(ctx.Workspace.Working, kernel)
	return Continue, nil
}

// CreateMask records a polygonal region of interest. Args: label,
// include (default true), polygons [[[x, y], ...], ...]. Without an
// interactive surface the polygons argument is required; an empty
// invocation falls back to the full frame so headless pipelines stay
// runnable.
func CreateMask(ctx *Context) (Control, error) {
	label := ctx.Args.String("label", "mask")
	include := ctx.Args.Bool("include", true)

	var polygons [][]annotation.Point
	if v, ok := ctx.Args.Get("polygons"); ok {
		parsed, err := parsePolygons(v)
		if err != nil {
			return Continue, fmt.Errorf("create_mask: %w", err)
		}
		polygons = parsed
	} else {
		w, h := ctx.Workspace.Working.W, ctx.Workspace.Working.H
		polygons = [][]annotation.Point{{
			{X: 0, Y: 0}, {X: w - 1, Y: 0}, {X: w - 1, Y: h - 1}, {X: 0, Y: h - 1},
		}}
	}

	payload := &annotation.MaskPayload{Label: label, Include: include, Polygons: polygons}

	// append policy: union with the existing polygons
	if ctx.Existing != nil && ctx.Annotation.Edit == annotation.EditAppend {
		if prev, ok := ctx.Existing.Payload.(*annotation.MaskPayload); ok {
			payload.Polygons = append(append([][]annotation.Point{}, prev.Polygons...), polygons...)
		}
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: payload,
	})
	return Continue, nil
}

// DetectMask proposes a mask from the largest bright component of the
// working image. Args: label, min_area.
func DetectMask(ctx *Context) (Control, error) {
	gray := ctx.Workspace.Working.Gray()
	t := otsu(gray)
	for i, v := range gray.Pix {
		if v > t {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}

	contours := traceContours(gray, ctx.Args.Int("min_area", 25))
	if len(contours) == 0 {
		return Continue, fmt.Errorf("detect_mask: no region found above threshold %d", t)
	}

	// largest by vertex count
	best := contours[0]
	for _, c := range contours[1:] {
		if len(c) > len(best) {
			best = c
		}
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.MaskPayload{
			Label:    ctx.Args.String("label", "detected"),
			Include:  true,
			Polygons: [][]annotation.Point{best},
		},
	})
	return Continue, nil
}

// WriteComment attaches free text to the session. Args: label (default
// "comment"), entry. Interactive prompting is unavailable in passive
// mode, so entry is required.
func WriteComment(ctx *Context) (Control, error) {
	entry := ctx.Args.String("entry", "")
	if entry == "" {
		return Continue, fmt.Errorf("write_comment: entry argument is required")
	}
	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.CommentPayload{
			Label: ctx.Args.String("label", "comment"),
			Text:  entry,
		},
	})
	return Continue, nil
}

// SelectChannel replaces the working image with one colour channel.
// Args: channel (gray, red, green, blue).
func SelectChannel(ctx *Context) (Control, error) {
	ws := ctx.Workspace
	switch channel := ctx.Args.String("channel", "gray"); channel {
	case "gray", "grey":
		ws.Working = ws.Working.Gray()
	case "red":
		ch, err := ws.Working.Channel(0)
		if err != nil {
			return Continue, fmt.Errorf("select_channel: %w", err)
		}
		ws.Working = ch
	case "green":
		ch, err := ws.Working.Channel(1)
		if err != nil {
			return Continue, fmt.Errorf("select_channel: %w", err)
		}
		ws.Working = ch
	case "blue":
		ch, err := ws.Working.Channel(2)
		if err != nil {
			return Continue, fmt.Errorf("select_channel: %w", err)
		}
		ws.Working = ch
	default:
		return Continue, fmt.Errorf("select_channel: unknown channel %q", channel)
	}
	return Continue, nil
}

// CreateReference records a pixel-to-unit ratio. Args: px_ratio
// (required), unit (default mm), active (default true). Multiple active
// references are allowed but warned about; activation stays a soft
// convention.
func CreateReference(ctx *Context) (Control, error) {
	ratio := ctx.Args.Float("px_ratio", 0)
	if ratio <= 0 {
		return Continue, fmt.Errorf("create_reference: px_ratio argument is required")
	}
	active := ctx.Args.Bool("active", true)

	if active {
		for _, ann := range ctx.Store.ByType(annotation.Reference) {
			ref, ok := ann.Payload.(*annotation.ReferencePayload)
			if ok && ref.Active && ann.ID != ctx.Annotation.ID {
				log.Warn("multiple active references",
					"existing_id", ann.ID, "new_id", ctx.Annotation.ID)
			}
		}
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.ReferencePayload{
			PxRatio: ratio,
			Unit:    ctx.Args.String("unit", "mm"),
			Active:  active,
		},
	})
	return Continue, nil
}
