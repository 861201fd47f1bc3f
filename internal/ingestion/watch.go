package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of changes to
// settle before triggering a rebuild.
const DefaultDebounce = 2 * time.Second

// Watcher calls a function whenever the source tree changes. Bursts of
// events (an editor save, a copy of many files) collapse into one call.
type Watcher struct {
	fw       *fsnotify.Watcher
	file     string // non-empty when watching a single file
	exclude  map[string]bool
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher watches path, a single source file or a directory tree.
// Directories created later under the tree are picked up as they appear.
func NewWatcher(path string, debounce time.Duration, exclude []string, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingestion: create watcher: %w", err)
	}
	w := &Watcher{fw: fw, debounce: debounce, log: log, exclude: make(map[string]bool, len(exclude))}
	for _, e := range exclude {
		w.exclude[filepath.Clean(e)] = true
	}

	if info.IsDir() {
		err = w.addTree(path)
	} else {
		// Editors often replace a file by rename, which drops a watch on the
		// file itself, so the parent directory is watched instead.
		w.file = filepath.Clean(path)
		err = fw.Add(filepath.Dir(path))
	}
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("ingestion: watch %s: %w", path, err)
	}
	return w, nil
}

// addTree adds dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.fw.Add(p)
	})
}

// Run delivers debounced change notifications to onChange until ctx is
// cancelled. Errors from onChange are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.fw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && w.file == "" {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn("ingestion: failed to watch new directory", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("ingestion: source changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := onChange(ctx); err != nil {
				w.log.Error("ingestion: change handler failed", "error", err)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("ingestion: watcher error", "error", err)
		}
	}
}

// relevant reports whether ev touches a source file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if w.file != "" {
		return name == w.file
	}
	if w.exclude[name] || filepath.Base(name)[0] == '.' {
		return false
	}
	return Supported(name)
}
