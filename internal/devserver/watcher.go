// Package devserver rebuilds the project when its sources change and
// serves the output directory with live reload.
package devserver

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/jate-dev/jate/config"
)

// Ignore patterns, anchored to the project root.
const (
	globGit         = "**/.git"
	globNodeModules = "**/node_modules"
)

// Watcher reports changes below the project root, skipping VCS metadata,
// installed packages and the build output.
type Watcher struct {
	log     *slog.Logger
	fsWatch *fsnotify.Watcher
	root    string

	// absolute, slash-separated doublestar patterns
	ignored []string

	watchedDirs sync.Map
}

func NewWatcher(cfg *config.Config, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		log:     log,
		fsWatch: fsWatch,
		root:    norm(cfg.Context),
	}
	out := norm(cfg.Output.Path)
	for _, p := range []string{w.root + "/" + globGit, w.root + "/" + globNodeModules, out} {
		w.ignored = append(w.ignored, p, p+"/**")
	}
	return w, nil
}

// norm converts a path to absolute with forward slashes for matching.
func norm(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(abs)
}

func (w *Watcher) Events() <-chan fsnotify.Event { return w.fsWatch.Events }
func (w *Watcher) Errors() <-chan error          { return w.fsWatch.Errors }
func (w *Watcher) Close() error                  { return w.fsWatch.Close() }

// IsIgnored reports whether path, or a directory containing it, is
// excluded from watching.
func (w *Watcher) IsIgnored(path string) bool {
	np := norm(path)
	for _, pattern := range w.ignored {
		ok, err := doublestar.Match(pattern, np)
		if err != nil {
			w.log.Error("pattern match error", "pattern", pattern, "path", np, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// AddDir watches root and every directory below it that is not ignored.
func (w *Watcher) AddDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if w.IsIgnored(path) {
			return filepath.SkipDir
		}

		key := norm(path)
		if _, exists := w.watchedDirs.Load(key); exists {
			return nil
		}
		if err := w.fsWatch.Add(path); err != nil {
			return err
		}
		w.watchedDirs.Store(key, true)
		return nil
	})
}

// RemoveStale drops watches for directories that no longer exist.
func (w *Watcher) RemoveStale() {
	w.watchedDirs.Range(func(key, _ any) bool {
		path := key.(string)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.fsWatch.Remove(path)
			w.watchedDirs.Delete(path)
		}
		return true
	})
}

// Relevant reports whether an event should trigger a rebuild.
func (w *Watcher) Relevant(evt fsnotify.Event) bool {
	if w.IsIgnored(evt.Name) {
		return false
	}
	return !isNonEmptyChmodOnly(evt)
}

// isNonEmptyChmodOnly matches permission-only changes. Chmod on an empty
// file is kept since some editors create, chmod, then write.
func isNonEmptyChmodOnly(evt fsnotify.Event) bool {
	if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Remove) ||
		evt.Has(fsnotify.Rename) {
		return false
	}
	info, err := os.Stat(evt.Name)
	if err != nil {
		return false
	}
	return info.Size() > 0
}
