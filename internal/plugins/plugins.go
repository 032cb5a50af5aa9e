// Package plugins implements the build plugins a configuration can
// declare: HTML generation, service-worker manifest injection and web
// app manifest generation.
package plugins

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
	"golang.org/x/crypto/blake2b"
)

var ErrUnknownPlugin = errors.New("unknown plugin")

// ScriptBundler bundles a standalone script with the same rules as the
// main build. Side assets are emitted into c.
type ScriptBundler interface {
	BundleScript(ctx context.Context, c *compile.Compilation, entry string) ([]byte, error)
}

type Env struct {
	Config  *config.Config
	Log     *slog.Logger
	Scripts ScriptBundler
}

// New constructs the plugin a descriptor refers to.
func New(desc config.PluginDescriptor, env Env) (compile.Plugin, error) {
	if env.Log == nil {
		env.Log = slog.Default()
	}
	log := env.Log.With("plugin", desc.Name)

	switch desc.Name {
	case config.PluginHTML:
		opts, ok := desc.Options.(*config.HTMLOptions)
		if !ok {
			return nil, badOptions(desc)
		}
		return &HTMLPlugin{opts: *opts, cfg: env.Config, log: log}, nil

	case config.PluginInjectManifest:
		opts, ok := desc.Options.(*config.InjectManifestOptions)
		if !ok {
			return nil, badOptions(desc)
		}
		if env.Scripts == nil {
			return nil, fmt.Errorf("%s: no script bundler available", desc.Name)
		}
		return &InjectManifestPlugin{opts: *opts, cfg: env.Config, scripts: env.Scripts, log: log}, nil

	case config.PluginPWAManifest:
		opts, ok := desc.Options.(*config.PWAManifestOptions)
		if !ok {
			return nil, badOptions(desc)
		}
		return &PWAManifestPlugin{opts: *opts, cfg: env.Config, log: log}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, desc.Name)
}

func badOptions(desc config.PluginDescriptor) error {
	return fmt.Errorf("%s: unexpected options type %T", desc.Name, desc.Options)
}

// contentHash returns the first n hex characters of a BLAKE2b-256 digest.
func contentHash(b []byte, n int) string {
	sum := blake2b.Sum256(b)
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}
