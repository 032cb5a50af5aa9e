// Package compile holds the state of a single build run: the assets it
// produces, the entrypoints that own them and the plugin hooks that run
// against them.
package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/jate-dev/jate/config"
)

var ErrAssetConflict = errors.New("multiple assets emit to the same filename")

// Plugin extends a build. Plugins are applied in the order they are
// declared, after bundling.
type Plugin interface {
	Name() string
	Apply(ctx context.Context, c *Compilation) error
}

type AssetInfo struct {
	// Immutable marks assets whose name already carries a content hash.
	Immutable bool
	// SourceFile is the absolute path the asset was produced from, if any.
	SourceFile string
}

type Asset struct {
	Name     string // slash-separated, relative to the output path
	Contents []byte
	Info     AssetInfo
}

type Entrypoint struct {
	Name  string
	Files []string
}

// SealHook runs after every plugin has been applied.
type SealHook struct {
	Plugin string
	Fn     func(ctx context.Context, c *Compilation) error
}

type Compilation struct {
	Config *config.Config
	Log    *slog.Logger

	mu          sync.RWMutex
	assets      map[string]*Asset
	order       []string
	entrypoints []Entrypoint
	sealHooks   []SealHook
	warnings    []string
	sealed      bool
}

func New(cfg *config.Config, log *slog.Logger) *Compilation {
	if log == nil {
		log = slog.Default()
	}
	return &Compilation{
		Config: cfg,
		Log:    log,
		assets: make(map[string]*Asset),
	}
}

func normalizeName(name string) (string, error) {
	n := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	n = strings.TrimPrefix(n, "/")
	if n == "." || n == "" || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	return n, nil
}

// EmitAsset adds a new asset. Emitting a name twice is an error.
func (c *Compilation) EmitAsset(name string, contents []byte, info AssetInfo) error {
	n, err := normalizeName(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return fmt.Errorf("emit %s: compilation is sealed", n)
	}
	if _, exists := c.assets[n]; exists {
		return fmt.Errorf("%w: %s", ErrAssetConflict, n)
	}
	c.assets[n] = &Asset{Name: n, Contents: contents, Info: info}
	c.order = append(c.order, n)
	return nil
}

// UpdateAsset replaces the contents of an existing asset.
func (c *Compilation) UpdateAsset(name string, fn func(old []byte) ([]byte, error)) error {
	n, err := normalizeName(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.assets[n]
	if !ok {
		return fmt.Errorf("update %s: no such asset", n)
	}
	updated, err := fn(a.Contents)
	if err != nil {
		return fmt.Errorf("update %s: %w", n, err)
	}
	a.Contents = updated
	return nil
}

func (c *Compilation) Asset(name string) (Asset, bool) {
	n, err := normalizeName(name)
	if err != nil {
		return Asset{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[n]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// Assets returns a snapshot of all assets in emission order.
func (c *Compilation) Assets() []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Asset, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, *c.assets[n])
	}
	return out
}

func (c *Compilation) AddEntrypoint(e Entrypoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entrypoints = append(c.entrypoints, e)
}

// Entrypoints are returned in the order the configuration declares them.
func (c *Compilation) Entrypoints() []Entrypoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entrypoint(nil), c.entrypoints...)
}

func (c *Compilation) OnSeal(plugin string, fn func(ctx context.Context, c *Compilation) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealHooks = append(c.sealHooks, SealHook{Plugin: plugin, Fn: fn})
}

// Seal runs seal hooks in registration order. No assets may be emitted
// once it returns.
func (c *Compilation) Seal(ctx context.Context) error {
	c.mu.RLock()
	hooks := append([]SealHook(nil), c.sealHooks...)
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Fn(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", h.Plugin, err)
		}
	}

	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
	return nil
}

func (c *Compilation) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
	c.Log.Warn(msg)
}

func (c *Compilation) Warnings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.warnings...)
}

// PublicURL joins the configured public path with an asset name.
// An empty public path yields a relative URL.
func (c *Compilation) PublicURL(name string) string {
	prefix := ""
	if c.Config != nil {
		prefix = c.Config.Output.PublicPath
	}
	return JoinURL(prefix, name)
}

func JoinURL(prefix, name string) string {
	name = strings.TrimPrefix(name, "/")
	if prefix == "" {
		return name
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}
