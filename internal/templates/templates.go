// Package templates ships the builtin pipeline templates. A template is
// a complete pipeline document a user copies into a project and edits;
// the engine treats it like any other document.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/Imageomics/phenopype/internal/config"
)

//go:embed builtin/*.yaml
var builtin embed.FS

// Names lists the available template names, sorted.
func Names() []string {
	entries, err := fs.ReadDir(builtin, "builtin")
	if err != nil {
		// embedded FS; a read failure is a build defect
		panic(err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}

// Raw returns the YAML text of a template.
func Raw(name string) ([]byte, error) {
	data, err := builtin.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("templates: unknown template %q", name)
	}
	return data, nil
}

// Get parses a template into a document.
func Get(name string) (*config.Document, error) {
	data, err := Raw(name)
	if err != nil {
		return nil, err
	}
	doc, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("templates: %q: %w", name, err)
	}
	return doc, nil
}
