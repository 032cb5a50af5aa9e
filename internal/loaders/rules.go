package loaders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
)

// cacheSize bounds the number of loaded modules kept between rebuilds.
const cacheSize = 1024

// Rules applies module rules to files esbuild loads. For each file the
// first matching rule wins; files without a match are left to esbuild.
type Rules struct {
	cfg    *config.Config
	chains []Chain
	cache  *lru.Cache[string, *cacheEntry]

	mu     sync.Mutex
	assets map[string]compile.Asset
	order  []string
}

type stamp struct {
	size    int64
	modTime time.Time
}

type cacheEntry struct {
	stamps map[string]stamp
	module Module
}

func (e *cacheEntry) fresh() bool {
	for p, want := range e.stamps {
		got, err := statStamp(p)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

func statStamp(path string) (stamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return stamp{}, err
	}
	return stamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}

func NewRules(env Env) (*Rules, error) {
	r := &Rules{
		cfg:    env.Config,
		assets: make(map[string]compile.Asset),
	}
	for i, rule := range env.Config.Module.Rules {
		ch := Chain{Rule: i}
		for _, ref := range rule.Use {
			l, err := New(ref, env)
			if err != nil {
				return nil, fmt.Errorf("module.rules[%d]: %w", i, err)
			}
			ch.Loaders = append(ch.Loaders, l)
		}
		r.chains = append(r.chains, ch)
	}

	cache, err := lru.New[string, *cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *Rules) Plugin(ctx context.Context) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "jate-rules",
		Setup: func(build esbuild.PluginBuild) {
			build.OnLoad(esbuild.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					return r.load(ctx, args.Path)
				},
			)
		},
	}
}

func (r *Rules) load(ctx context.Context, path string) (esbuild.OnLoadResult, error) {
	rule, idx := r.cfg.Module.MatchRule(path)
	if rule == nil {
		return esbuild.OnLoadResult{}, nil
	}

	key := fmt.Sprintf("%d\x00%s", idx, path)
	if e, ok := r.cache.Get(key); ok && e.fresh() {
		m := e.module
		r.collect(m.Assets)
		return toResult(&m), nil
	}

	st, err := statStamp(path)
	if err != nil {
		return esbuild.OnLoadResult{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return esbuild.OnLoadResult{}, err
	}

	m := &Module{
		Path:       path,
		Contents:   string(data),
		Loader:     loaderForExt(filepath.Ext(path)),
		ResolveDir: filepath.Dir(path),
	}
	if err := r.chains[idx].Run(ctx, m); err != nil {
		return esbuild.OnLoadResult{}, err
	}

	stamps := map[string]stamp{path: st}
	for _, dep := range m.Dependencies {
		if s, err := statStamp(dep); err == nil {
			stamps[dep] = s
		}
	}
	r.cache.Add(key, &cacheEntry{stamps: stamps, module: *m})

	r.collect(m.Assets)
	return toResult(m), nil
}

func toResult(m *Module) esbuild.OnLoadResult {
	contents := m.Contents
	return esbuild.OnLoadResult{
		Contents:   &contents,
		ResolveDir: m.ResolveDir,
		Loader:     m.Loader,
		WatchFiles: m.Dependencies,
	}
}

func (r *Rules) collect(assets []compile.Asset) {
	if len(assets) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assets {
		if _, seen := r.assets[a.Name]; seen {
			continue
		}
		r.assets[a.Name] = a
		r.order = append(r.order, a.Name)
	}
}

// TakeAssets returns the side assets produced since the last call.
func (r *Rules) TakeAssets() []compile.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]compile.Asset, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.assets[n])
	}
	r.assets = make(map[string]compile.Asset)
	r.order = nil
	return out
}

// CacheLen reports how many loaded modules are cached.
func (r *Rules) CacheLen() int { return r.cache.Len() }
