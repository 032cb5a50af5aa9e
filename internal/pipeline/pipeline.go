// Package pipeline runs a full build: it bundles every entry with esbuild,
// applies the configured plugins in order and writes the sealed
// compilation to the output directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
	"github.com/jate-dev/jate/internal/loaders"
	"github.com/jate-dev/jate/internal/plugins"
	"github.com/jate-dev/jate/kit/esbuildutil"
	"github.com/jate-dev/jate/kit/fsutil"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("builder is closed")

// Result summarizes one successful build.
type Result struct {
	Assets   []string // written files, relative to the output path
	Warnings []string
	Duration time.Duration
}

// Builder handles build operations. It is safe to reuse across multiple
// builds; loaded modules are cached between them.
type Builder struct {
	cfg     *config.Config
	log     *slog.Logger
	rules   *loaders.Rules
	plugins []compile.Plugin

	// life bounds loader work started from esbuild callbacks.
	life   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	esctx  esbuild.BuildContext
	hasCtx bool
	closed bool
}

var _ plugins.ScriptBundler = (*Builder)(nil)

// New validates cfg and prepares its loaders and plugins.
func New(cfg *config.Config, log *slog.Logger) (*Builder, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules, err := loaders.NewRules(loaders.Env{Config: cfg, Log: log})
	if err != nil {
		return nil, err
	}

	b := &Builder{cfg: cfg, log: log, rules: rules}
	b.life, b.cancel = context.WithCancel(context.Background())

	env := plugins.Env{Config: cfg, Log: log, Scripts: b}
	for i, desc := range cfg.Plugins {
		p, err := plugins.New(desc, env)
		if err != nil {
			b.cancel()
			return nil, fmt.Errorf("plugins[%d]: %w", i, err)
		}
		b.plugins = append(b.plugins, p)
	}
	return b, nil
}

func (b *Builder) Config() *config.Config { return b.cfg }

// Close releases the esbuild context. The builder cannot be used after.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	if b.hasCtx {
		b.esctx.Dispose()
		b.hasCtx = false
	}
	return nil
}

// Build performs a full build and writes the output directory.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	b.log.Info("START build", "mode", b.cfg.Mode, "entries", len(b.cfg.Entry))

	c := compile.New(b.cfg, b.log)

	bundleStart := time.Now()
	if err := b.bundle(c); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	bundleDur := time.Since(bundleStart)

	pluginStart := time.Now()
	for _, p := range b.plugins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Apply(ctx, c); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	if err := c.Seal(ctx); err != nil {
		return nil, err
	}
	pluginDur := time.Since(pluginStart)

	written, err := b.write(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	res := &Result{
		Assets:   written,
		Warnings: c.Warnings(),
		Duration: time.Since(start),
	}
	b.log.Info("DONE build",
		"total", res.Duration,
		"bundle", bundleDur,
		"plugins", pluginDur,
		"assets", len(res.Assets),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (b *Builder) baseOptions() esbuild.BuildOptions {
	prod := b.cfg.IsProduction()
	return esbuild.BuildOptions{
		AbsWorkingDir:     b.cfg.Context,
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Outdir:            b.cfg.Output.Path,
		PublicPath:        b.cfg.Output.PublicPath,
		AssetNames:        loaders.AssetNames,
		Format:            esbuild.FormatIIFE,
		Platform:          esbuild.PlatformBrowser,
		Loader:            loaders.AssetLoaders,
		MinifyWhitespace:  prod,
		MinifyIdentifiers: prod,
		MinifySyntax:      prod,
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(string(b.cfg.Mode)),
		},
		LogLevel: esbuild.LogLevelSilent,
		Plugins:  []esbuild.Plugin{b.rules.Plugin(b.life)},
	}
}

func (b *Builder) entryOptions() esbuild.BuildOptions {
	opts := b.baseOptions()
	for _, e := range b.cfg.Entry {
		opts.EntryPointsAdvanced = append(opts.EntryPointsAdvanced, esbuild.EntryPoint{
			InputPath:  b.cfg.Resolve(e.Import),
			OutputPath: e.Name,
		})
	}
	opts.EntryNames = strings.TrimSuffix(b.cfg.Output.Filename, ".js")
	if !b.cfg.IsProduction() {
		opts.Sourcemap = esbuild.SourceMapInline
	}
	return opts
}

// bundle runs esbuild over every entry and emits its outputs. Must be
// called with b.mu held.
func (b *Builder) bundle(c *compile.Compilation) error {
	if !b.hasCtx {
		esctx, ctxErr := esbuild.Context(b.entryOptions())
		if ctxErr != nil {
			return esbuildutil.CollectErrors(ctxErr.Errors)
		}
		b.esctx, b.hasCtx = esctx, true
	}

	result := b.esctx.Rebuild()
	if err := esbuildutil.CollectErrors(result.Errors); err != nil {
		b.rules.TakeAssets()
		return err
	}
	for _, w := range esbuildutil.FormatWarnings(result.Warnings) {
		c.Warn("%s", w)
	}

	meta, err := esbuildutil.ParseMetafile(result.Metafile)
	if err != nil {
		return err
	}
	entryByOutput := make(map[string]string, len(meta.Outputs))
	for out, info := range meta.Outputs {
		if info.EntryPoint == "" {
			continue
		}
		entryByOutput[b.absPath(out)] = b.absPath(info.EntryPoint)
	}

	files := make(map[string][]string, len(b.cfg.Entry))
	for _, f := range result.OutputFiles {
		name, err := b.assetName(f.Path)
		if err != nil {
			return err
		}
		src, isEntry := entryByOutput[filepath.Clean(f.Path)]
		if err := emitOnce(c, name, f.Contents, compile.AssetInfo{Immutable: !isEntry, SourceFile: src}); err != nil {
			return err
		}
		if isEntry {
			files[src] = append(files[src], name)
		}
	}

	for _, e := range b.cfg.Entry {
		src := b.cfg.Resolve(e.Import)
		if len(files[src]) == 0 {
			return fmt.Errorf("entry %q produced no output", e.Name)
		}
		c.AddEntrypoint(compile.Entrypoint{Name: e.Name, Files: files[src]})
	}

	for _, a := range b.rules.TakeAssets() {
		if err := emitOnce(c, a.Name, a.Contents, a.Info); err != nil {
			return err
		}
	}
	return nil
}

// BundleScript bundles a standalone script, such as a service worker,
// with the same rules as the entries. Files it references are emitted
// into c.
func (b *Builder) BundleScript(_ context.Context, c *compile.Compilation, entry string) ([]byte, error) {
	opts := b.baseOptions()
	opts.EntryPoints = []string{entry}
	opts.EntryNames = "[name]"

	result := esbuild.Build(opts)
	if err := esbuildutil.CollectErrors(result.Errors); err != nil {
		b.rules.TakeAssets()
		return nil, err
	}
	for _, w := range esbuildutil.FormatWarnings(result.Warnings) {
		c.Warn("%s", w)
	}

	var code []byte
	var found bool
	for _, f := range result.OutputFiles {
		if filepath.Ext(f.Path) == ".js" && !found {
			code, found = f.Contents, true
			continue
		}
		name, err := b.assetName(f.Path)
		if err != nil {
			return nil, err
		}
		if err := emitOnce(c, name, f.Contents, compile.AssetInfo{Immutable: true}); err != nil {
			return nil, err
		}
	}
	for _, a := range b.rules.TakeAssets() {
		if err := emitOnce(c, a.Name, a.Contents, a.Info); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("esbuild produced no script for %s", entry)
	}
	return code, nil
}

// write replaces the output directory with the compilation's assets.
func (b *Builder) write(ctx context.Context, c *compile.Compilation) ([]string, error) {
	out := b.cfg.Output.Path
	if fsutil.IsWithin(out, b.cfg.Context) {
		return nil, fmt.Errorf("refusing to clean %s: it contains the project root", out)
	}
	if err := fsutil.CleanDir(out); err != nil {
		return nil, err
	}

	assets := c.Assets()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0) * 2)
	for _, a := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dest, err := fsutil.SafeJoin(out, a.Name)
			if err != nil {
				return err
			}
			return fsutil.WriteFileAtomic(dest, a.Contents)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.Name)
		b.log.Debug("wrote asset", "file", a.Name, "bytes", len(a.Contents))
	}
	return names, nil
}

func (b *Builder) absPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(b.cfg.Context, filepath.FromSlash(p))
}

func (b *Builder) assetName(abs string) (string, error) {
	rel, err := filepath.Rel(b.cfg.Output.Path, abs)
	if err != nil || !fsutil.IsWithin(b.cfg.Output.Path, abs) {
		return "", fmt.Errorf("esbuild output %s is outside %s", abs, b.cfg.Output.Path)
	}
	return filepath.ToSlash(rel), nil
}

// emitOnce emits an asset unless one with the same name exists already.
// Side assets carry content hashes, so equal names mean equal files.
func emitOnce(c *compile.Compilation, name string, contents []byte, info compile.AssetInfo) error {
	if _, ok := c.Asset(name); ok {
		return nil
	}
	return c.EmitAsset(name, contents, info)
}
