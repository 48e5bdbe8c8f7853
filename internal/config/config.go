// Package config models the declarative pipeline document: an ordered list
// of named steps, each an ordered list of methods with arguments. The
// engine never mutates a Document in place; every modification produces a
// new value that is compared against the original before anything is
// written back to disk. Key and list order round-trip through the YAML
// codec so user edits stay where the user put them.
package config

import (
	"fmt"
	"regexp"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// StepNames is the closed set of pipeline steps in execution order.
var StepNames = []string{
	"preprocessing",
	"segmentation",
	"measurement",
	"visualization",
	"export",
}

// KnownStep reports whether name is one of the fixed pipeline steps.
func KnownStep(name string) bool {
	for _, s := range StepNames {
		if s == name {
			return true
		}
	}
	return false
}

// Document is one parsed pipeline configuration.
type Document struct {
	// Steps is the ordered processing_steps sequence.
	Steps []Step
	// Pre and Post hold top-level keys that appear before/after
	// processing_steps (e.g. template metadata). They are preserved
	// verbatim on rewrite.
	Pre  *Args
	Post *Args
}

// Step is one named stage. Methods nil means the step was declared bare
// (no methods for this run); the engine skips it.
type Step struct {
	Name    string
	Methods []Method
}

// Method is one operation invocation. The annotation-control block is a
// first-class field, not an argument: it is extracted from the ANNOTATION
// key on parse and re-emitted there on marshal.
type Method struct {
	Name       string
	Annotation *Control
	Args       *Args
}

// Control is the annotation-control block of an annotation-producing
// method. Zero fields mean "not set, default during the pass".
type Control struct {
	Type annotation.Type
	ID   string
	Edit annotation.EditPolicy
}

// TemplateLocked reports whether the document is a locked template that
// must not be executed directly.
func (d *Document) TemplateLocked() bool {
	for _, extra := range []*Args{d.Pre, d.Post} {
		if extra == nil {
			continue
		}
		if v, ok := extra.Get("template_locked"); ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// Step returns the step with the given name and whether it exists.
func (d *Document) Step(name string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// HasMethod reports whether the named method is declared in the step.
func (s *Step) HasMethod(name string) bool {
	for _, m := range s.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,32}$`)

// reservedTags would collide with artifact file name components.
var reservedTags = map[string]bool{
	"canvas": true, "annotations": true, "attributes": true, "pype": true,
}

// CheckTag validates a session tag. Tags key result files and config
// names (pype_config_<tag>.yaml), so they must stay short and filesystem
// safe.
func CheckTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("config: invalid tag %q (alphanumeric/dash, max 32 chars)", tag)
	}
	if reservedTags[tag] {
		return fmt.Errorf("config: tag %q is reserved", tag)
	}
	return nil
}

// FileName builds the config file name for a tag, optionally prefixed
// with the image name root.
func FileName(prefix, tag string) string {
	name := "pype_config_" + tag + ".yaml"
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}
