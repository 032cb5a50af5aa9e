package devserver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jate-dev/jate/internal/pipeline"
)

type Options struct {
	Builder  *pipeline.Builder
	Log      *slog.Logger
	Debounce time.Duration // Default: DefaultDebounce

	// OnStart runs before every build, OnBuild after it.
	OnStart func()
	OnBuild func(res *pipeline.Result, err error)
}

func (o *Options) setDefaults() error {
	if o.Builder == nil {
		return errors.New("devserver: no builder")
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	return nil
}

// Run builds once, then rebuilds after every change below the project
// root until ctx ends. Failed builds are logged and do not stop it.
func Run(ctx context.Context, opts Options) error {
	if err := opts.setDefaults(); err != nil {
		return err
	}
	cfg := opts.Builder.Config()

	w, err := NewWatcher(cfg, opts.Log)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.AddDir(cfg.Context); err != nil {
		return err
	}

	build := func() {
		if opts.OnStart != nil {
			opts.OnStart()
		}
		res, err := opts.Builder.Build(ctx)
		if err != nil && ctx.Err() == nil {
			opts.Log.Error("build failed", "error", err)
		}
		if opts.OnBuild != nil {
			opts.OnBuild(res, err)
		}
	}

	build()
	opts.Log.Info("watching for changes", "root", cfg.Context)

	deb := NewDebouncer(opts.Debounce, func(paths []string) {
		if ctx.Err() != nil {
			return
		}
		first := paths[0]
		if rel, err := filepath.Rel(cfg.Context, first); err == nil {
			first = rel
		}
		opts.Log.Info("change detected", "file", first, "files", len(paths))
		w.RemoveStale()
		build()
	})
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.Events():
			if !ok {
				return nil
			}
			if !w.Relevant(evt) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				if fi, err := os.Stat(evt.Name); err == nil && fi.IsDir() {
					if err := w.AddDir(evt.Name); err != nil {
						opts.Log.Warn("failed to watch new directory", "dir", evt.Name, "error", err)
					}
				}
			}
			deb.Add(evt.Name)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			opts.Log.Error("watcher error", "error", err)
		}
	}
}
