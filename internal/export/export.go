// Package export persists session results: the canvas image and the
// annotation records as files in the workspace directory, optionally
// mirrored into a SQLite results store. The loop hands it the steps
// that resolved in the final pass so it only writes artifacts the run
// actually produced.
package export

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/logging"
	"github.com/Imageomics/phenopype/internal/workspace"
)

var log = logging.New("export")

// Exporter persists a terminated session.
type Exporter interface {
	Persist(store *annotation.Store, ws *workspace.Workspace, stepNames []string) error
}

// FileExporter writes result files next to the image, and session rows
// into a results store when one is attached.
type FileExporter struct {
	// Results is optional; nil disables the database mirror.
	Results *ResultsStore
}

// Persist writes the artifacts concurrently. The canvas is written only
// when a visualization step resolved and a canvas exists; annotations
// only when the store is non-empty.
func (e *FileExporter) Persist(store *annotation.Store, ws *workspace.Workspace, stepNames []string) error {
	var g errgroup.Group

	if hasStep(stepNames, "visualization") && ws.Canvas != nil {
		path := filepath.Join(ws.DirPath, ws.ResultName("canvas", "png"))
		canvas := ws.Canvas
		g.Go(func() error {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("export: canvas: %w", err)
			}
			defer f.Close()
			if err := png.Encode(f, canvas.Image()); err != nil {
				return fmt.Errorf("export: canvas %q: %w", path, err)
			}
			log.Info("saved canvas", "path", path)
			return nil
		})
	}

	if store.Len() > 0 {
		path := filepath.Join(ws.DirPath, ws.ResultName("annotations", "json"))
		g.Go(func() error {
			data, err := store.Encode()
			if err != nil {
				return fmt.Errorf("export: annotations: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("export: annotations %q: %w", path, err)
			}
			log.Info("saved annotations", "path", path, "count", store.Len())
			return nil
		})
	}

	if e.Results != nil {
		g.Go(func() error {
			id, err := e.Results.InsertSession(ws.FilePrefix, ws.Tag, strings.Join(stepNames, ","))
			if err != nil {
				return err
			}
			return e.Results.InsertAnnotations(id, store)
		})
	}

	return g.Wait()
}

func hasStep(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// LoadAnnotations restores a previously saved annotation file into the
// store. A missing file is not an error; the session simply starts
// empty.
func LoadAnnotations(store *annotation.Store, ws *workspace.Workspace) error {
	path := filepath.Join(ws.DirPath, ws.ResultName("annotations", "json"))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("export: load annotations: %w", err)
	}
	if err := store.Decode(data); err != nil {
		return err
	}
	log.Info("loaded annotations", "path", path, "count", store.Len())
	return nil
}
