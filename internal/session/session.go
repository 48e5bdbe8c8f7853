// Package session drives the live reload loop: load and validate the
// pipeline document, then watch, execute, visualize and repeat until
// the gate verdict terminates the session. The workspace buffers reset
// at the top of every cycle; the annotation store persists across
// cycles so the user can refine results incrementally.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Imageomics/phenopype/internal/annotation"
	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/engine"
	"github.com/Imageomics/phenopype/internal/export"
	"github.com/Imageomics/phenopype/internal/logging"
	"github.com/Imageomics/phenopype/internal/workspace"
)

var log = logging.New("session")

// ErrSkipped reports that the skip precheck found existing results and
// the session was never entered.
var ErrSkipped = errors.New("session: results exist, skipped")

// Verdict is the gate's answer after one visualization.
type Verdict struct {
	Terminate bool
}

// Gate presents the canvas and blocks for a verdict. The stdin gate in
// the CLI is one implementation; tests stub it.
type Gate interface {
	Present(canvas *workspace.Buffer) (Verdict, error)
}

// Watcher publishes pipeline document snapshots. watch.Monitor
// implements it.
type Watcher interface {
	Latest() *config.Document
	Refresh()
	Stop()
}

// Options configure one session.
type Options struct {
	ConfigPath string
	Tag        string

	// Skip enables the precheck: existing tagged results in the
	// workspace directory end the session with ErrSkipped before INIT.
	Skip bool

	// Autoload restores a previously saved annotation file at INIT.
	Autoload bool
	// Autosave persists through the exporter on normal termination.
	Autosave bool

	FixNames bool
	Debug    bool

	// Visual presents the canvas after each pass and loops on a
	// continue verdict. Without it the loop terminates after one pass.
	Visual bool

	// RetryPause is the wait before re-polling an empty watcher.
	RetryPause time.Duration
}

// Session is one live run of a document against one image.
type Session struct {
	ws       *workspace.Workspace
	store    *annotation.Store
	engine   *engine.Engine
	watcher  Watcher
	gate     Gate
	exporter export.Exporter
	opts     Options
}

// New validates the session inputs. Any failure here is fatal; the
// loop is never entered.
func New(ws *workspace.Workspace, store *annotation.Store, eng *engine.Engine, watcher Watcher, gate Gate, exporter export.Exporter, opts Options) (*Session, error) {
	if ws == nil {
		return nil, errors.New("session: no workspace")
	}
	if store == nil {
		return nil, errors.New("session: no annotation store")
	}
	if eng == nil {
		return nil, errors.New("session: no engine")
	}
	if watcher == nil {
		return nil, errors.New("session: no watcher")
	}
	if err := config.CheckTag(opts.Tag); err != nil {
		return nil, err
	}
	if info, err := os.Stat(ws.DirPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("session: save location %q unusable", ws.DirPath)
	}
	if opts.Visual && gate == nil {
		return nil, errors.New("session: visual mode without a gate")
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = 200 * time.Millisecond
	}
	return &Session{
		ws: ws, store: store, engine: eng,
		watcher: watcher, gate: gate, exporter: exporter,
		opts: opts,
	}, nil
}

// Run executes the loop until the gate terminates it. The watcher is
// stopped on return.
func (s *Session) Run() error {
	if s.opts.Skip {
		skip, err := ResultsExist(s.ws.DirPath, s.opts.Tag)
		if err != nil {
			return err
		}
		if skip {
			log.Info("skipping, results exist", "dir", s.ws.DirPath, "tag", s.opts.Tag)
			return ErrSkipped
		}
	}
	defer s.watcher.Stop()

	if s.opts.Autoload {
		if err := export.LoadAnnotations(s.store, s.ws); err != nil {
			return err
		}
	}

	var resolvedSteps []string
	for {
		doc := s.watcher.Latest()
		if doc == nil {
			// external editor mid-write; not an error
			log.Debug("no document content yet, retrying")
			time.Sleep(s.opts.RetryPause)
			continue
		}
		if doc.TemplateLocked() {
			return config.ErrTemplateLocked
		}

		s.ws.Reset()
		_, res, err := s.engine.Iterate(doc, s.ws, s.store, engine.Options{
			Mode:     engine.Execute,
			FixNames: s.opts.FixNames,
			Debug:    s.opts.Debug,
			Passive:  !s.opts.Visual,
			Source:   s.opts.ConfigPath,
		})
		if err != nil {
			return err
		}
		resolvedSteps = res.ResolvedSteps
		for _, f := range res.Failures {
			fmt.Printf("- %s\n", f)
		}
		if res.Changed {
			s.watcher.Refresh()
		}
		if res.Restarted {
			continue
		}

		if !s.opts.Visual {
			break
		}
		verdict, err := s.gate.Present(s.ws.Canvas)
		if err != nil {
			return fmt.Errorf("session: gate: %w", err)
		}
		if verdict.Terminate {
			break
		}
	}

	if s.opts.Autosave && s.exporter != nil {
		if err := s.exporter.Persist(s.store, s.ws, resolvedSteps); err != nil {
			return err
		}
	}
	log.Info("session terminated", "tag", s.opts.Tag)
	return nil
}

// ResultsExist reports whether the directory already holds tagged
// result files. The config file and attribute files do not count.
func ResultsExist(dir, tag string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("session: skip precheck: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.Contains(name, "_"+tag+".") {
			continue
		}
		if strings.Contains(name, "pype_config") || strings.Contains(name, "attributes") {
			continue
		}
		return true, nil
	}
	return false, nil
}
