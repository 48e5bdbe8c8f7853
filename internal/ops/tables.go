package ops

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// annotationFunctions maps annotation-producing method names to the type
// of record they produce. Methods not listed here run without annotation
// bookkeeping.
var annotationFunctions = map[string]annotation.Type{
	// comments
	"write_comment": annotation.Comment,
	"detect_QRcode": annotation.Comment,

	// contours
	"detect_contour": annotation.Contour,

	// drawings
	"edit_contour": annotation.Drawing,

	// landmarks
	"set_landmark":    annotation.Landmark,
	"detect_landmark": annotation.Landmark,

	// lines
	"set_polyline":    annotation.Line,
	"detect_skeleton": annotation.Line,

	// masks
	"contour_to_mask": annotation.Mask,
	"create_mask":     annotation.Mask,
	"detect_mask":     annotation.Mask,

	// references
	"create_reference": annotation.Reference,
	"detect_reference": annotation.Reference,

	// features
	"compute_shape_features":   annotation.ShapeFeatures,
	"compute_texture_features": annotation.TextureFeatures,
}

// AnnotationType returns the record type a method produces, if any.
func AnnotationType(method string) (annotation.Type, bool) {
	t, ok := annotationFunctions[method]
	return t, ok
}

// overwriteByDefault lists the structurally-replacing operations whose
// output supersedes earlier results wholesale; their default edit policy
// is overwrite. Everything else defaults to locked so user-refined
// annotations are never silently replaced.
var overwriteByDefault = map[string]bool{
	"detect_contour":           true,
	"detect_shape":             true,
	"compute_shape_features":   true,
	"compute_texture_features": true,
	"skeletonize":              true,
}

// DefaultEdit returns the default edit policy for a method.
func DefaultEdit(method string) annotation.EditPolicy {
	if overwriteByDefault[method] {
		return annotation.EditOverwrite
	}
	return annotation.EditLocked
}

// legacyNames maps (step, deprecated name) to the current name. Used only
// for name resolution; never stored. Validated at startup: a legacy name
// must not collide with a live one, and its target must be live (no
// chained renames).
var legacyNames = map[string]map[string]string{
	"preprocessing": {
		"enter_data":   "write_comment",
		"comment":      "write_comment",
		"detect_shape": "detect_mask",
	},
	"segmentation": {
		"detect_contours": "detect_contour",
		"edit_contours":   "edit_contour",
	},
	"measurement": {
		"set_landmarks":    "set_landmark",
		"landmark":         "set_landmark",
		"landmarks":        "set_landmark",
		"shape_features":   "compute_shape_features",
		"texture_features": "compute_texture_features",
	},
	"visualization": {
		"draw_landmarks": "draw_landmark",
		"draw_contours":  "draw_contour",
	},
	"export": {},
}

// LegacyAliases returns the migration table.
func LegacyAliases() map[string]map[string]string {
	return legacyNames
}

// ResolveAlias looks up the current name for a deprecated one.
func ResolveAlias(step, name string) (string, bool) {
	current, ok := legacyNames[step][name]
	return current, ok
}

// ValidateAliases checks the migration table against a registry: every
// alias target must resolve to a registered operation, and no alias may
// shadow a live name.
func ValidateAliases(table map[string]map[string]string, r *Registry) error {
	for step, entries := range table {
		for old, current := range entries {
			if r.Exists(step, old) {
				return fmt.Errorf("ops: alias %s.%s shadows a live operation", step, old)
			}
			if !r.Exists(step, current) {
				return fmt.Errorf("ops: alias %s.%s points to unregistered %q", step, old, current)
			}
			if _, chained := table[step][current]; chained {
				return fmt.Errorf("ops: alias %s.%s chains through %q", step, old, current)
			}
		}
	}
	return nil
}
