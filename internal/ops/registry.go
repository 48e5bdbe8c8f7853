// Package ops holds the operation registry the engine dispatches against:
// per-step namespaces of callables, the legacy-name migration table, and
// the builtin image operations. The engine treats every operation as
// opaque; argument validation happens inside the operation.
package ops

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/logging"
	"github.com/Imageomics/phenopype/internal/workspace"
)

var log = logging.New("ops")

// Control is the flow verdict of one invocation. RestartPass ends the
// current pass early so the loop can pick up fresh state; it is not an
// error.
type Control int

const (
	Continue Control = iota
	RestartPass
)

// Context carries everything an operation may touch during one invocation.
type Context struct {
	Workspace *workspace.Workspace
	Store     *annotation.Store

	// Args are the operation arguments with the annotation-control block
	// already stripped.
	Args *config.Args

	// Annotation is the fully-defaulted control block for
	// annotation-producing operations, nil otherwise.
	Annotation *config.Control

	// Existing is the stored record for (Annotation.Type, Annotation.ID),
	// nil if none. When the control's policy is "append" the operation
	// merges into its result; with "false" it is read-only context.
	Existing *annotation.Annotation

	// Counter is the per-type id sequence of the running pass.
	Counter *annotation.Counter

	// Passive is set when no interactive surface is available; operations
	// must take their inputs from Args instead of prompting.
	Passive bool
}

// Operation is a single registered callable.
type Operation func(ctx *Context) (Control, error)

// Registry maps (step, method name) to operations. Built once at startup;
// lookups are plain map reads.
type Registry struct {
	byStep map[string]map[string]Operation
}

// NewRegistry returns an empty registry with a namespace per known step.
func NewRegistry() *Registry {
	byStep := make(map[string]map[string]Operation, len(config.StepNames))
	for _, s := range config.StepNames {
		byStep[s] = make(map[string]Operation)
	}
	return &Registry{byStep: byStep}
}

// Register adds an operation under a step namespace.
func (r *Registry) Register(step, name string, op Operation) error {
	ns, ok := r.byStep[step]
	if !ok {
		return fmt.Errorf("ops: unknown step %q", step)
	}
	if _, dup := ns[name]; dup {
		return fmt.Errorf("ops: %s.%s already registered", step, name)
	}
	ns[name] = op
	return nil
}

// Exists reports whether (step, name) is registered.
func (r *Registry) Exists(step, name string) bool {
	_, ok := r.byStep[step][name]
	return ok
}

// Get returns the operation for (step, name).
func (r *Registry) Get(step, name string) (Operation, bool) {
	op, ok := r.byStep[step][name]
	return op, ok
}

// Names lists the registered method names of a step (unordered).
func (r *Registry) Names(step string) []string {
	out := make([]string, 0, len(r.byStep[step]))
	for name := range r.byStep[step] {
		out = append(out, name)
	}
	return out
}

// Builtin returns the registry with all builtin operations wired in.
func Builtin() *Registry {
	r := NewRegistry()
	register := func(step, name string, op Operation) {
		// all builtin names are distinct; a duplicate is a programming error
		if err := r.Register(step, name, op); err != nil {
			panic(err)
		}
	}

	register("preprocessing", "blur", Blur)
	register("preprocessing", "create_mask", CreateMask)
	register("preprocessing", "detect_mask", DetectMask)
	register("preprocessing", "write_comment", WriteComment)
	register("preprocessing", "select_channel", SelectChannel)
	register("preprocessing", "create_reference", CreateReference)

	register("segmentation", "threshold", Threshold)
	register("segmentation", "morphology", Morphology)
	register("segmentation", "detect_contour", DetectContour)
	register("segmentation", "edit_contour", EditContour)
	register("segmentation", "detect_skeleton", DetectSkeleton)
	register("segmentation", "contour_to_mask", ContourToMask)

	register("measurement", "set_landmark", SetLandmark)
	register("measurement", "set_polyline", SetPolyline)
	register("measurement", "compute_shape_features", ComputeShapeFeatures)
	register("measurement", "compute_texture_features", ComputeTextureFeatures)

	register("visualization", "select_canvas", SelectCanvas)
	register("visualization", "draw_contour", DrawContour)
	register("visualization", "draw_landmark", DrawLandmark)
	register("visualization", "draw_mask", DrawMask)
	register("visualization", "draw_polyline", DrawPolyline)

	register("export", "save_canvas", SaveCanvas)
	register("export", "save_annotation", SaveAnnotation)

	return r
}
