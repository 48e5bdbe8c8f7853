// Package engine executes one pass of a pipeline document against a
// workspace and annotation store. A pass resolves method names through
// the registry and the legacy alias table, defaults annotation-control
// blocks, invokes operations in declaration order, and rewrites the
// document on disk only when the pass actually changed it.
package engine

import (
	"fmt"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/logging"
	"github.com/Imageomics/phenopype/internal/ops"
	"github.com/Imageomics/phenopype/internal/workspace"
)

var log = logging.New("engine")

// Mode selects whether operations actually run.
type Mode int

const (
	// Dry resolves names and defaults annotation controls without
	// invoking any operation.
	Dry Mode = iota
	// Execute runs the full pass.
	Execute
)

// Options tune one pass.
type Options struct {
	Mode Mode

	// FixNames enables legacy alias substitution. A substituted name is
	// written into the updated document.
	FixNames bool

	// Debug propagates the first method error instead of logging it and
	// continuing.
	Debug bool

	// Passive is handed to operations that would otherwise prompt.
	Passive bool

	// Source is the document path for the rewrite. Empty disables
	// persistence; the updated document is still returned.
	Source string
}

// Failure is one caught per-method error.
type Failure struct {
	Step   string
	Method string
	Err    error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s.%s: %v", f.Step, f.Method, f.Err)
}

// Result reports what one pass did.
type Result struct {
	// Restarted is set when an operation requested a pass restart; the
	// remaining methods were not executed.
	Restarted bool

	// Changed is set when the updated document differs structurally
	// from the input.
	Changed bool

	// Failures are the caught per-method errors, in execution order.
	Failures []Failure

	// ResolvedSteps lists the steps that had at least one method
	// resolved, in execution order. Export decides from this which
	// artifacts to write.
	ResolvedSteps []string
}

// Engine runs passes against one registry.
type Engine struct {
	registry *ops.Registry
	aliases  map[string]map[string]string
}

// New builds an engine and validates the alias table against the
// registry. Production callers pass ops.Builtin() and
// ops.LegacyAliases().
func New(registry *ops.Registry, aliases map[string]map[string]string) (*Engine, error) {
	if err := ops.ValidateAliases(aliases, registry); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{registry: registry, aliases: aliases}, nil
}

// Iterate runs one pass. The input document is never mutated; the
// returned document carries alias fix-ups and defaulted annotation
// controls, and has been written to opts.Source when it changed.
func (e *Engine) Iterate(doc *config.Document, ws *workspace.Workspace, store *annotation.Store, opts Options) (*config.Document, *Result, error) {
	updated := doc.Clone()
	res := &Result{}
	counter := annotation.NewCounter()

pass:
	for si := range updated.Steps {
		step := &updated.Steps[si]
		if !config.KnownStep(step.Name) {
			log.Warn("unknown step, skipping", "step", step.Name)
			continue
		}
		if len(step.Methods) == 0 {
			continue
		}

		log.Info("step", "name", step.Name)

		if step.Name == "visualization" && ws.Canvas == nil && !step.HasMethod("select_canvas") {
			if opts.Mode == Execute {
				if err := e.invoke(step.Name, "select_canvas", nil, nil, config.NewArgs(), ws, store, counter, opts, res); err != nil {
					return nil, nil, err
				}
			}
		}

		resolved := false
		for mi := range step.Methods {
			method := &step.Methods[mi]

			name, ok := e.resolve(step.Name, method.Name, opts.FixNames)
			if !ok {
				log.Warn("unknown method, skipping",
					"step", step.Name, "method", method.Name)
				continue
			}
			if name != method.Name {
				log.Info("legacy name fixed",
					"step", step.Name, "old", method.Name, "new", name)
				method.Name = name
			}
			resolved = true

			ctrl, existing := e.classify(name, method, store, counter)

			if opts.Mode != Execute {
				continue
			}
			err := e.invoke(step.Name, name, ctrl, existing, method.Args, ws, store, counter, opts, res)
			if err != nil {
				return nil, nil, err
			}
			if res.Restarted {
				break pass
			}
		}
		if resolved {
			res.ResolvedSteps = append(res.ResolvedSteps, step.Name)
		}
	}

	res.Changed = !updated.Equal(doc)
	if res.Changed && !res.Restarted && opts.Source != "" {
		if err := config.Save(updated, opts.Source); err != nil {
			return nil, nil, fmt.Errorf("engine: rewrite %q: %w", opts.Source, err)
		}
		log.Info("document rewritten", "path", opts.Source)
	}
	return updated, res, nil
}

// resolve maps a declared method name to a registered one. The second
// return is false when neither the registry nor the alias table knows
// the name.
func (e *Engine) resolve(step, name string, fixNames bool) (string, bool) {
	if e.registry.Exists(step, name) {
		return name, true
	}
	if fixNames {
		if current, ok := e.aliases[step][name]; ok && e.registry.Exists(step, current) {
			return current, true
		}
	}
	return "", false
}

// classify defaults the annotation-control block of an annotation
// producer and writes it back into the method. Non-producers return
// (nil, nil).
func (e *Engine) classify(name string, method *config.Method, store *annotation.Store, counter *annotation.Counter) (*config.Control, *annotation.Annotation) {
	annType, producer := ops.AnnotationType(name)
	if !producer {
		return nil, nil
	}

	ctrl := &config.Control{}
	if method.Annotation != nil {
		*ctrl = *method.Annotation
	}
	if ctrl.Type == "" {
		ctrl.Type = annType
	}

	// the counter advances for every producer occurrence, so explicit
	// ids do not shift the letters of later defaults
	n := counter.Advance(ctrl.Type)
	if ctrl.ID == "" {
		ctrl.ID = annotation.Letter(n)
	}
	if ctrl.Edit == "" {
		ctrl.Edit = ops.DefaultEdit(name)
	}

	method.Annotation = ctrl
	return ctrl, store.Get(ctrl.Type, ctrl.ID)
}

// invoke runs one operation with failure isolation. The returned error
// is non-nil only in debug mode.
func (e *Engine) invoke(step, name string, ctrl *config.Control, existing *annotation.Annotation, args *config.Args, ws *workspace.Workspace, store *annotation.Store, counter *annotation.Counter, opts Options, res *Result) error {
	op, ok := e.registry.Get(step, name)
	if !ok {
		return fmt.Errorf("engine: %s.%s vanished from the registry", step, name)
	}

	log.Info("method", "step", step, "name", name)

	verdict, err := op(&ops.Context{
		Workspace:  ws,
		Store:      store,
		Args:       args,
		Annotation: ctrl,
		Existing:   existing,
		Counter:    counter,
		Passive:    opts.Passive,
	})
	if err != nil {
		if opts.Debug {
			return fmt.Errorf("engine: %s.%s: %w", step, name, err)
		}
		res.Failures = append(res.Failures, Failure{Step: step, Method: name, Err: err})
		log.Error("method failed", "step", step, "method", name, "error", err)
		return nil
	}
	if verdict == ops.RestartPass {
		log.Info("restart requested", "step", step, "method", name)
		res.Restarted = true
	}
	return nil
}
