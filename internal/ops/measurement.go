package ops

import (
	"fmt"
	"math"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// SetLandmark records landmark positions. Args: points [[x, y], ...]
// (required in passive mode).
func SetLandmark(ctx *Context) (Control, error) {
	v, ok := ctx.Args.Get("points")
	if !ok {
		return Continue, fmt.Errorf("set_landmark: points argument is required")
	}
	points, err := parsePoints(v)
	if err != nil {
		return Continue, fmt.Errorf("set_landmark: %w", err)
	}

	payload := &annotation.LandmarkPayload{Points: points}
	if ctx.Existing != nil && ctx.Annotation.Edit == annotation.EditAppend {
		if prev, ok := ctx.Existing.Payload.(*annotation.LandmarkPayload); ok {
			payload.Points = append(append([]annotation.Point{}, prev.Points...), points...)
		}
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: payload,
	})
	return Continue, nil
}

// SetPolyline records measurement polylines. Args: coords
// [[[x, y], ...], ...].
func SetPolyline(ctx *Context) (Control, error) {
	v, ok := ctx.Args.Get("coords")
	if !ok {
		return Continue, fmt.Errorf("set_polyline: coords argument is required")
	}
	lines, err := parsePolygons(v)
	if err != nil {
		return Continue, fmt.Errorf("set_polyline: %w", err)
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.LinePayload{Lines: lines},
	})
	return Continue, nil
}

// ComputeShapeFeatures measures stored contours: area, perimeter,
// centroid, bounding box, circularity. Args: contour_id (default "a").
// With an active reference in the store, length measures are also
// reported in reference units.
func ComputeShapeFeatures(ctx *Context) (Control, error) {
	contourID := ctx.Args.String("contour_id", "a")
	src := ctx.Store.Get(annotation.Contour, contourID)
	if src == nil {
		return Continue, fmt.Errorf("compute_shape_features: no contour annotation with id %q", contourID)
	}
	payload, ok := src.Payload.(*annotation.ContourPayload)
	if !ok {
		return Continue, fmt.Errorf("compute_shape_features: contour %q has no coordinate payload", contourID)
	}

	ratio := activeReferenceRatio(ctx)

	rows := make([]map[string]float64, 0, len(payload.Coords))
	for _, contour := range payload.Coords {
		area := shoelaceArea(contour)
		perimeter := ringPerimeter(contour)
		cx, cy, minX, minY, maxX, maxY := contourExtents(contour)

		row := map[string]float64{
			"area":      area,
			"perimeter": perimeter,
			"center_x":  cx,
			"center_y":  cy,
			"width":     float64(maxX - minX + 1),
			"height":    float64(maxY - minY + 1),
		}
		if perimeter > 0 {
			row["circularity"] = 4 * math.Pi * area / (perimeter * perimeter)
		}
		if ratio > 0 {
			row["area_scaled"] = area / (ratio * ratio)
			row["perimeter_scaled"] = perimeter / ratio
		}
		rows = append(rows, row)
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.FeaturesPayload{Rows: rows},
	})
	return Continue, nil
}

// ComputeTextureFeatures measures pixel statistics of the working image
// inside each stored contour's bounding box. Args: contour_id.
func ComputeTextureFeatures(ctx *Context) (Control, error) {
	contourID := ctx.Args.String("contour_id", "a")
	src := ctx.Store.Get(annotation.Contour, contourID)
	if src == nil {
		return Continue, fmt.Errorf("compute_texture_features: no contour annotation with id %q", contourID)
	}
	payload, ok := src.Payload.(*annotation.ContourPayload)
	if !ok {
		return Continue, fmt.Errorf("compute_texture_features: contour %q has no coordinate payload", contourID)
	}

	gray := ctx.Workspace.Working.Gray()
	rows := make([]map[string]float64, 0, len(payload.Coords))
	for _, contour := range payload.Coords {
		_, _, minX, minY, maxX, maxY := contourExtents(contour)

		var sum, sumSq float64
		minV, maxV := 255.0, 0.0
		n := 0
		for y := max(0, minY); y <= min(gray.H-1, maxY); y++ {
			for x := max(0, minX); x <= min(gray.W-1, maxX); x++ {
				v := float64(gray.At(x, y, 0))
				sum += v
				sumSq += v * v
				minV = math.Min(minV, v)
				maxV = math.Max(maxV, v)
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		rows = append(rows, map[string]float64{
			"mean": mean,
			"sd":   math.Sqrt(sumSq/float64(n) - mean*mean),
			"min":  minV,
			"max":  maxV,
		})
	}

	ctx.Store.Apply(&annotation.Annotation{
		Type: ctx.Annotation.Type, ID: ctx.Annotation.ID, Edit: ctx.Annotation.Edit,
		Payload: &annotation.FeaturesPayload{Rows: rows},
	})
	return Continue, nil
}

// activeReferenceRatio returns the px ratio of the first active
// reference, 0 if none.
func activeReferenceRatio(ctx *Context) float64 {
	for _, ann := range ctx.Store.ByType(annotation.Reference) {
		if ref, ok := ann.Payload.(*annotation.ReferencePayload); ok && ref.Active {
			return ref.PxRatio
		}
	}
	return 0
}

func shoelaceArea(ring []annotation.Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	sum := 0
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		sum += ring[j].X*ring[i].Y - ring[i].X*ring[j].Y
		j = i
	}
	return math.Abs(float64(sum)) / 2
}

func ringPerimeter(ring []annotation.Point) float64 {
	if len(ring) < 2 {
		return 0
	}
	total := 0.0
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		dx := float64(ring[i].X - ring[j].X)
		dy := float64(ring[i].Y - ring[j].Y)
		total += math.Hypot(dx, dy)
		j = i
	}
	return total
}

func contourExtents(ring []annotation.Point) (cx, cy float64, minX, minY, maxX, maxY int) {
	if len(ring) == 0 {
		return
	}
	minX, maxX = ring[0].X, ring[0].X
	minY, maxY = ring[0].Y, ring[0].Y
	sumX, sumY := 0, 0
	for _, p := range ring {
		sumX += p.X
		sumY += p.Y
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	cx = float64(sumX) / float64(len(ring))
	cy = float64(sumY) / float64(len(ring))
	return
}
