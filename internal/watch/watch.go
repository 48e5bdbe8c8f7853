// Package watch monitors a pipeline document on disk and publishes the
// latest successfully parsed snapshot. The loop consumes a copy of the
// snapshot at the top of each cycle, so watcher updates arriving during
// a pass never touch state the engine is using.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/logging"
)

var log = logging.New("watch")

// DefaultDebounce collapses editor write bursts into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Monitor watches one document path.
type Monitor struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	snapshot *config.Document

	done chan struct{}
	once sync.Once
}

// New starts watching path. The document must parse once up front: a
// session cannot begin without a readable document, so the initial load
// error is returned. Parse failures after that keep the last snapshot.
func New(path string, debounce time.Duration) (*Monitor, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	// watch the directory, not the file: editors replace files on save
	// and the inode-level watch would go stale
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch: %q: %w", path, err)
	}

	doc, err := config.Load(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch: %w", err)
	}

	m := &Monitor{
		path:     path,
		debounce: debounce,
		watcher:  watcher,
		snapshot: doc,
		done:     make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// Latest returns a deep copy of the newest parsed document.
func (m *Monitor) Latest() *config.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil
	}
	return m.snapshot.Clone()
}

// Refresh re-reads the document immediately, outside the event flow.
// The loop uses it after the engine rewrites the file, so the next
// cycle starts from the rewritten content even if the event has not
// been delivered yet.
func (m *Monitor) Refresh() {
	m.reload()
}

// Stop ends the watch. Safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.done)
		m.watcher.Close()
	})
}

func (m *Monitor) run() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watch error", "path", m.path, "error", err)
		case <-fire:
			fire = nil
			m.reload()
		}
	}
}

// reload parses the file and replaces the snapshot on success. A parse
// failure keeps the previous snapshot; the user is mid-edit.
func (m *Monitor) reload() {
	doc, err := config.Load(m.path)
	if err != nil {
		log.Warn("document not loadable, keeping last snapshot",
			"path", m.path, "error", err)
		return
	}
	m.mu.Lock()
	m.snapshot = doc
	m.mu.Unlock()
	log.Debug("document reloaded", "path", m.path)
}
