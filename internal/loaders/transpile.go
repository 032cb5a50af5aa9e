package loaders

import (
	"context"
	"fmt"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/kit/esbuildutil"
)

// Presets map to the language level output is lowered to.
var presets = map[string]esbuild.Target{
	"env": esbuild.ES2015,
}

const (
	pluginObjectRestSpread = "object-rest-spread"
	pluginTransformRuntime = "transform-runtime"
)

// transpileLoader lowers modern syntax for older browsers. It only sees
// files its rule matched, so excluded paths such as node_modules reach
// the bundle untouched.
//
// esbuild has no shared helper module to import from, so transform-runtime
// is accepted but each lowered module keeps the helpers it needs.
type transpileLoader struct {
	target    esbuild.Target
	supported map[string]bool
	sourcemap bool
}

func newTranspileLoader(opts *config.TranspileOptions, production bool) (*transpileLoader, error) {
	l := &transpileLoader{
		target:    esbuild.ESNext,
		supported: map[string]bool{},
		sourcemap: !production,
	}
	if opts == nil {
		return l, nil
	}

	for _, p := range opts.Presets {
		target, ok := presets[p]
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", ErrBadOptions, p)
		}
		l.target = target
	}
	for _, p := range opts.Plugins {
		switch p {
		case pluginObjectRestSpread:
			l.supported["object-rest-spread"] = false
		case pluginTransformRuntime:
		default:
			return nil, fmt.Errorf("%w: unknown plugin %q", ErrBadOptions, p)
		}
	}
	return l, nil
}

func (l *transpileLoader) Name() string { return config.LoaderTranspile }

func (l *transpileLoader) Load(_ context.Context, m *Module) error {
	if m.Loader == esbuild.LoaderCSS {
		return fmt.Errorf("cannot transpile CSS input %s", m.Path)
	}
	opts := esbuild.TransformOptions{
		Loader:     m.Loader,
		Target:     l.target,
		Supported:  l.supported,
		Sourcefile: m.Path,
	}
	if l.sourcemap {
		opts.Sourcemap = esbuild.SourceMapInline
	}
	result := esbuild.Transform(m.Contents, opts)
	if err := esbuildutil.CollectErrors(result.Errors); err != nil {
		return err
	}
	m.Contents = string(result.Code)
	m.Loader = esbuild.LoaderJS
	return nil
}
