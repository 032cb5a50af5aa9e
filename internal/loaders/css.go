package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
	"github.com/jate-dev/jate/kit/esbuildutil"
)

// cssLoader resolves a stylesheet: @import rules are inlined and url()
// references are emitted as hashed assets and rewritten to their public
// URLs. The result is still CSS.
type cssLoader struct {
	cfg *config.Config
}

func newCSSLoader(env Env) *cssLoader {
	return &cssLoader{cfg: env.Config}
}

func (l *cssLoader) Name() string { return config.LoaderCSS }

func (l *cssLoader) Load(ctx context.Context, m *Module) error {
	if m.Loader != esbuild.LoaderCSS {
		return fmt.Errorf("expected CSS input for %s", m.Path)
	}

	prod := l.cfg.IsProduction()
	result := esbuild.Build(esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   m.Contents,
			ResolveDir: filepath.Dir(m.Path),
			Sourcefile: m.Path,
			Loader:     esbuild.LoaderCSS,
		},
		AbsWorkingDir:    l.cfg.Context,
		Bundle:           true,
		Write:            false,
		Metafile:         true,
		Outdir:           l.cfg.Output.Path,
		AssetNames:       AssetNames,
		PublicPath:       l.cfg.Output.PublicPath,
		Loader:           AssetLoaders,
		MinifyWhitespace: prod,
		MinifySyntax:     prod,
		LogLevel:         esbuild.LogLevelSilent,
	})
	if err := esbuildutil.CollectErrors(result.Errors); err != nil {
		return err
	}

	var css []byte
	var found bool
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(l.cfg.Output.Path, f.Path)
		if err != nil {
			return fmt.Errorf("output outside %s: %w", l.cfg.Output.Path, err)
		}
		rel = filepath.ToSlash(rel)

		switch {
		case strings.HasSuffix(rel, ".css") && !found:
			css, found = f.Contents, true
		case strings.HasSuffix(rel, ".map"):
		default:
			m.Assets = append(m.Assets, compile.Asset{
				Name:     rel,
				Contents: f.Contents,
				Info:     compile.AssetInfo{Immutable: true},
			})
		}
	}
	if !found {
		return fmt.Errorf("esbuild produced no CSS for %s", m.Path)
	}

	if meta, err := esbuildutil.ParseMetafile(result.Metafile); err == nil {
		for _, p := range meta.InputPaths(l.cfg.Context) {
			if p != m.Path {
				m.Dependencies = append(m.Dependencies, p)
			}
		}
	}

	m.Contents = string(css)
	m.Loader = esbuild.LoaderCSS
	return nil
}
