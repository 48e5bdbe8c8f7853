// Package annotation holds the typed measurement records produced by
// annotation-producing operations, the store that keeps them alive across
// pipeline iterations, and the edit policies that govern re-runs.
package annotation

import (
	"fmt"
	"strings"
)

// Type classifies an annotation record. The set is closed; ids are unique
// per type within one store.
type Type string

const (
	Comment         Type = "comment"
	Contour         Type = "contour"
	Drawing         Type = "drawing"
	Landmark        Type = "landmark"
	Line            Type = "line"
	Mask            Type = "mask"
	Reference       Type = "reference"
	ShapeFeatures   Type = "shape_features"
	TextureFeatures Type = "texture_features"
)

// Types lists all annotation types in stable order.
func Types() []Type {
	return []Type{
		Comment, Contour, Drawing, Landmark, Line,
		Mask, Reference, ShapeFeatures, TextureFeatures,
	}
}

// ParseType validates a type token from a config document.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("annotation: unknown type %q", s)
}

// EditPolicy decides what happens when an annotation-producing method runs
// again for an existing (type, id) pair.
type EditPolicy string

const (
	// EditOverwrite replaces the stored payload unconditionally.
	EditOverwrite EditPolicy = "overwrite"
	// EditAppend hands the existing record to the operation, which returns
	// a merged payload; the store replaces with the merge result.
	EditAppend EditPolicy = "append"
	// EditLocked keeps the stored payload; the operation only receives the
	// existing record as read-only context. Serialized as boolean false.
	EditLocked EditPolicy = "false"
)

// ParseEditPolicy accepts the YAML spellings of an edit policy, including
// boolean false for the locked policy.
func ParseEditPolicy(v any) (EditPolicy, error) {
	switch x := v.(type) {
	case bool:
		if !x {
			return EditLocked, nil
		}
		return "", fmt.Errorf("annotation: edit policy true is not valid")
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "overwrite":
			return EditOverwrite, nil
		case "append", "merge":
			return EditAppend, nil
		case "false":
			return EditLocked, nil
		}
	}
	return "", fmt.Errorf("annotation: invalid edit policy %v", v)
}

// Point is a pixel coordinate. Origin is the image top-left corner.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CommentPayload is free-text metadata attached to an image.
type CommentPayload struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ContourPayload holds detected outlines, one closed point ring each.
type ContourPayload struct {
	Coords [][]Point `json:"coords"`
}

// DrawingPayload holds manual contour edits (polylines with an include flag).
type DrawingPayload struct {
	Strokes []Stroke `json:"strokes"`
}

// Stroke is one drawing gesture; Include false means the stroke erases.
type Stroke struct {
	Points  []Point `json:"points"`
	Include bool    `json:"include"`
	Width   int     `json:"width"`
}

// LandmarkPayload holds ordered landmark positions.
type LandmarkPayload struct {
	Points []Point `json:"points"`
}

// LinePayload holds polylines or skeleton segments.
type LinePayload struct {
	Lines [][]Point `json:"lines"`
}

// MaskPayload holds polygonal regions of interest.
type MaskPayload struct {
	Label    string    `json:"label"`
	Include  bool      `json:"include"`
	Polygons [][]Point `json:"polygons"`
}

// ReferencePayload holds a pixel-to-unit ratio measured from a reference card.
type ReferencePayload struct {
	PxRatio float64 `json:"px_ratio"`
	Unit    string  `json:"unit"`
	Active  bool    `json:"active"`
}

// FeaturesPayload holds per-contour measurement rows, keyed by feature name.
type FeaturesPayload struct {
	Rows []map[string]float64 `json:"rows"`
}
