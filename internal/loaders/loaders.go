// Package loaders implements the per-file transformation chains selected
// by module rules.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
)

var (
	ErrUnknownLoader = errors.New("unknown loader")
	ErrBadOptions    = errors.New("invalid loader options")
)

// Module is one source file on its way through a loader chain.
type Module struct {
	Path       string // absolute
	Contents   string
	Loader     esbuild.Loader // how esbuild should read Contents
	ResolveDir string

	// Assets are files the chain produced besides the module itself,
	// such as images referenced from a stylesheet.
	Assets []compile.Asset

	// Dependencies are files other than Path whose contents were read
	// while loading.
	Dependencies []string
}

type Loader interface {
	Name() string
	Load(ctx context.Context, m *Module) error
}

type Env struct {
	Config *config.Config
	Log    *slog.Logger
}

// New constructs the loader a rule refers to.
func New(ref config.LoaderRef, env Env) (Loader, error) {
	switch ref.Loader {
	case config.LoaderCSS:
		return newCSSLoader(env), nil
	case config.LoaderStyle:
		return styleLoader{root: env.Config.Context}, nil
	case config.LoaderTranspile:
		var opts *config.TranspileOptions
		if ref.Options != nil {
			var ok bool
			if opts, ok = ref.Options.(*config.TranspileOptions); !ok {
				return nil, fmt.Errorf("%w: %s wants *config.TranspileOptions, got %T", ErrBadOptions, ref.Loader, ref.Options)
			}
		}
		return newTranspileLoader(opts, env.Config.IsProduction())
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLoader, ref.Loader)
}

// Chain is the ordered loader list of one rule.
type Chain struct {
	Rule    int
	Loaders []Loader
}

func (ch Chain) Run(ctx context.Context, m *Module) error {
	for _, l := range ch.Loaders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Load(ctx, m); err != nil {
			return fmt.Errorf("%s loader: %w", l.Name(), err)
		}
	}
	return nil
}

// loaderForExt picks esbuild's loader for a file that enters a chain.
func loaderForExt(ext string) esbuild.Loader {
	switch ext {
	case ".css":
		return esbuild.LoaderCSS
	case ".jsx":
		return esbuild.LoaderJSX
	case ".ts", ".mts", ".cts":
		return esbuild.LoaderTS
	case ".tsx":
		return esbuild.LoaderTSX
	case ".json":
		return esbuild.LoaderJSON
	default:
		return esbuild.LoaderJS
	}
}

// AssetLoaders maps file types that are not transformed but copied to the
// output directory under a content-hashed name.
var AssetLoaders = map[string]esbuild.Loader{
	".png":   esbuild.LoaderFile,
	".jpg":   esbuild.LoaderFile,
	".jpeg":  esbuild.LoaderFile,
	".gif":   esbuild.LoaderFile,
	".svg":   esbuild.LoaderFile,
	".webp":  esbuild.LoaderFile,
	".ico":   esbuild.LoaderFile,
	".woff":  esbuild.LoaderFile,
	".woff2": esbuild.LoaderFile,
	".ttf":   esbuild.LoaderFile,
	".eot":   esbuild.LoaderFile,
}

// AssetNames is the esbuild name template for files emitted by AssetLoaders.
const AssetNames = "assets/[name]-[hash]"
