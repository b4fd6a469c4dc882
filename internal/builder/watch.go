package builder

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/bundlr/internal/logging"
)

// IgnoreList matches project-relative, slash-separated paths against glob
// patterns. Patterns may be written with or without a leading "**/".
type IgnoreList struct {
	globs []glob.Glob
}

// CompileIgnore compiles patterns. The first invalid pattern is returned
// as an error.
func CompileIgnore(patterns []string) (*IgnoreList, error) {
	l := &IgnoreList{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		l.globs = append(l.globs, g)
	}
	return l, nil
}

// Match reports whether rel is ignored. A directory also matches when a
// pattern targets its contents ("dir/**").
func (l *IgnoreList) Match(rel string, isDir bool) bool {
	if l == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	candidates := []string{rel, "/" + rel}
	if isDir {
		candidates = append(candidates, rel+"/", "/"+rel+"/")
	}
	for _, g := range l.globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}

// Watcher reports debounced batches of changed files under a root
// directory, watching subdirectories as they appear.
type Watcher struct {
	root     string
	ignore   *IgnoreList
	debounce time.Duration
	logger   *logging.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	done   chan struct{}
}

// NewWatcher watches root recursively. Ignored directories are not
// descended into.
func NewWatcher(root string, ignore *IgnoreList, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	w := &Watcher{
		root:     root,
		ignore:   ignore,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			if rel, relErr := filepath.Rel(w.root, path); relErr == nil && w.ignore.Match(rel, true) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("cannot watch directory", "path", path, "error", err.Error())
		}
		return nil
	})
}

// Run delivers batches of changed project-relative paths to onChange until
// Stop is called. Batches are sorted and deduplicated.
func (w *Watcher) Run(onChange func(changed []string)) {
	defer close(w.done)

	debounceTimer := time.NewTimer(time.Hour)
	debounceTimer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, ok := w.relevant(ev)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			onChange(changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err.Error())
		}
	}
}

// relevant filters an fsnotify event, watching new directories as a side
// effect. It returns the project-relative path.
func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if ev.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()
	if w.ignore.Match(rel, isDir) {
		return "", false
	}
	if isDir && ev.Has(fsnotify.Create) {
		_ = w.addRecursive(ev.Name)
	}
	return filepath.ToSlash(rel), true
}

// Stop ends Run and releases the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	_ = w.fsw.Close()
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
