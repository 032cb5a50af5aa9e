package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
)

const (
	defaultInjectionPoint = "self.__WB_MANIFEST"
	defaultMaxCacheSize   = 2 * 1024 * 1024
)

var (
	ErrNoInjectionPoint        = errors.New("unable to find the injection point in the service worker")
	ErrMultipleInjectionPoints = errors.New("the injection point appears more than once in the service worker")
)

// PrecacheEntry is one item of the precache manifest.
type PrecacheEntry struct {
	Revision *string `json:"revision"`
	URL      string  `json:"url"`
}

// InjectManifestPlugin compiles the service worker source and injects the
// list of build assets to precache into it.
type InjectManifestPlugin struct {
	opts    config.InjectManifestOptions
	cfg     *config.Config
	scripts ScriptBundler
	log     *slog.Logger
}

var _ compile.Plugin = (*InjectManifestPlugin)(nil)

func (p *InjectManifestPlugin) Name() string { return config.PluginInjectManifest }

func (p *InjectManifestPlugin) injectionPoint() string {
	if p.opts.InjectionPoint != "" {
		return p.opts.InjectionPoint
	}
	return defaultInjectionPoint
}

func (p *InjectManifestPlugin) maxFileSize() int64 {
	if p.opts.MaximumFileSizeToCacheInBytes > 0 {
		return p.opts.MaximumFileSizeToCacheInBytes
	}
	return defaultMaxCacheSize
}

func (p *InjectManifestPlugin) Apply(ctx context.Context, c *compile.Compilation) error {
	swSrc := p.cfg.Resolve(p.opts.SwSrc)
	code, err := p.scripts.BundleScript(ctx, c, swSrc)
	if err != nil {
		return fmt.Errorf("compile %s: %w", p.opts.SwSrc, err)
	}

	// The manifest has to list assets emitted by plugins declared after
	// this one, so injection waits until every plugin has run.
	c.OnSeal(p.Name(), func(_ context.Context, c *compile.Compilation) error {
		entries := p.PrecacheEntries(c)
		out, err := Inject(code, p.injectionPoint(), entries)
		if err != nil {
			return fmt.Errorf("%s: %w", p.opts.SwSrc, err)
		}
		if err := c.EmitAsset(p.opts.SwDest, out, compile.AssetInfo{SourceFile: swSrc}); err != nil {
			return err
		}
		p.log.Debug("injected precache manifest", "file", p.opts.SwDest, "entries", len(entries))
		return nil
	})
	return nil
}

// PrecacheEntries lists every asset except the service worker itself,
// source maps and files over the size limit, sorted by URL.
func (p *InjectManifestPlugin) PrecacheEntries(c *compile.Compilation) []PrecacheEntry {
	swDest := path.Clean(p.opts.SwDest)
	limit := p.maxFileSize()

	var entries []PrecacheEntry
	for _, a := range c.Assets() {
		if a.Name == swDest || path.Ext(a.Name) == ".map" {
			continue
		}
		if int64(len(a.Contents)) > limit {
			c.Warn("%s is %d bytes, larger than the %d byte precache limit; it will not be precached", a.Name, len(a.Contents), limit)
			continue
		}
		e := PrecacheEntry{URL: c.PublicURL(a.Name)}
		if !a.Info.Immutable {
			rev := contentHash(a.Contents, 32)
			e.Revision = &rev
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
	return entries
}

// Inject replaces the single occurrence of point in code with the JSON
// form of entries.
func Inject(code []byte, point string, entries []PrecacheEntry) ([]byte, error) {
	switch n := bytes.Count(code, []byte(point)); {
	case n == 0:
		return nil, fmt.Errorf("%w: %q", ErrNoInjectionPoint, point)
	case n > 1:
		return nil, fmt.Errorf("%w: %q found %d times", ErrMultipleInjectionPoints, point, n)
	}

	if entries == nil {
		entries = []PrecacheEntry{}
	}
	manifest, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return bytes.Replace(code, []byte(point), manifest, 1), nil
}
