package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jate-dev/jate/internal/pipeline"
	"github.com/jate-dev/jate/kit/fsutil"
	"github.com/jate-dev/jate/kit/grace"
	"github.com/jate-dev/jate/kit/htmlutil"
	"github.com/jate-dev/jate/kit/middleware/etag"
	"golang.org/x/sync/errgroup"
)

const DefaultAddr = "localhost:3000"

const reloadScript = `
(() => {
  const url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "` + ReloadPath + `";
  const connect = () => {
    const ws = new WebSocket(url);
    ws.onmessage = (event) => {
      const msg = JSON.parse(event.data);
      if (msg.type === "reload") location.reload();
      if (msg.type === "error") console.error("[jate] build failed\n" + msg.error);
    };
    ws.onclose = () => setTimeout(connect, 1000);
  };
  connect();
})();
`

var reloadSnippet = func() string {
	el, err := htmlutil.RenderElement(&htmlutil.Element{Tag: "script", DangerousInnerHTML: reloadScript})
	if err != nil {
		panic(err)
	}
	return string(el) + "\n"
}()

type ServeOptions struct {
	Options
	Addr string // Default: DefaultAddr

	// Ready, if set, receives the address the server listens on.
	Ready func(addr string)
}

// Serve runs Run and an HTTP server over the output directory. Browsers
// viewing served pages reload after every successful rebuild. It returns
// once ctx ends or a shutdown signal arrives.
func Serve(ctx context.Context, opts ServeOptions) error {
	if err := opts.setDefaults(); err != nil {
		return err
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	outDir := opts.Builder.Config().Output.Path

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := newHub()
	go h.run(ctx)

	mux := http.NewServeMux()
	mux.Handle(ReloadPath, h.handler(ctx))
	mux.Handle("/", etag.Auto(nil)(staticHandler(outDir)))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	watch := opts.Options
	onStart, onBuild := watch.OnStart, watch.OnBuild
	watch.OnStart = func() {
		if onStart != nil {
			onStart()
		}
		h.send(ctx, reloadMessage{Type: messageRebuilding})
	}
	watch.OnBuild = func(res *pipeline.Result, err error) {
		if onBuild != nil {
			onBuild(res, err)
		}
		if err != nil {
			h.send(ctx, reloadMessage{Type: messageError, Error: err.Error()})
			return
		}
		h.send(ctx, reloadMessage{Type: messageReload})
	}

	return grace.Orchestrate(ctx, grace.OrchestrateOptions{
		Logger: opts.Log,
		StartupCallback: func() error {
			ln, err := net.Listen("tcp", opts.Addr)
			if err != nil {
				return err
			}
			addr := ln.Addr().String()
			opts.Log.Info("serving", "url", "http://"+addr, "dir", outDir)
			if opts.Ready != nil {
				opts.Ready(addr)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				err := Run(gctx, watch)
				if err != nil {
					srv.Close()
				}
				return err
			})
			return g.Wait()
		},
		ShutdownCallback: func(sctx context.Context) error {
			cancel()
			err := srv.Shutdown(sctx)
			h.wait()
			return err
		},
	})
}

// staticHandler serves dir without caching and adds the live-reload
// client to HTML documents.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		name := r.URL.Path
		if strings.HasSuffix(name, "/") {
			name += "index.html"
		}
		if path.Ext(name) == ".html" {
			if page, ok := readPage(dir, name); ok {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write(page)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

func readPage(dir, name string) ([]byte, bool) {
	p, err := fsutil.SafeJoin(dir, strings.TrimPrefix(path.Clean(name), "/"))
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	out, err := htmlutil.AppendToBody(data, reloadSnippet)
	if err != nil {
		return nil, false
	}
	return out, true
}
