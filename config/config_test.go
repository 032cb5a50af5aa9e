package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEntries(t *testing.T) {
	cfg := Get()

	require.Len(t, cfg.Entry, 2)
	assert.Equal(t, Entry{Name: "main", Import: "./src/js/index.js"}, cfg.Entry[0])
	assert.Equal(t, Entry{Name: "install", Import: "./src/js/install.js"}, cfg.Entry[1])
	assert.Equal(t, []string{"main", "install"}, cfg.EntryNames())
}

func TestGetOutput(t *testing.T) {
	cfg := Get()

	assert.Equal(t, "[name].bundle.js", cfg.Output.Filename)
	assert.Equal(t, "main.bundle.js", cfg.OutputFile("main"))
	assert.Equal(t, "install.bundle.js", cfg.OutputFile("install"))
	assert.True(t, filepath.IsAbs(cfg.Output.Path))
	assert.Equal(t, "dist", filepath.Base(cfg.Output.Path))
}

func TestGetPluginOrder(t *testing.T) {
	cfg := Get()

	require.Len(t, cfg.Plugins, 3)
	names := []string{cfg.Plugins[0].Name, cfg.Plugins[1].Name, cfg.Plugins[2].Name}
	assert.Equal(t, []string{PluginHTML, PluginInjectManifest, PluginPWAManifest}, names)

	html := cfg.Plugins[0].Options.(*HTMLOptions)
	assert.Equal(t, "./index.html", html.Template)
	assert.Equal(t, "Text Editor", html.Title)

	sw := cfg.Plugins[1].Options.(*InjectManifestOptions)
	assert.Equal(t, "./src-sw.js", sw.SwSrc)
	assert.Equal(t, "src-sw.js", sw.SwDest)

	pwa := cfg.Plugins[2].Options.(*PWAManifestOptions)
	assert.False(t, pwa.Fingerprints)
	assert.True(t, pwa.Inject)
	assert.Equal(t, "JATE", pwa.ShortName)
	assert.Equal(t, "#225CA3", pwa.ThemeColor)
	assert.Equal(t, "#225CA3", pwa.BackgroundColor)
	require.Len(t, pwa.Icons, 1)
	assert.Equal(t, []int{96, 128, 192, 256, 384, 512}, pwa.Icons[0].Sizes)
	assert.Equal(t, filepath.Join("assets", "icons"), pwa.Icons[0].Destination)
	assert.True(t, filepath.IsAbs(pwa.Icons[0].Src))
}

func TestGetRules(t *testing.T) {
	cfg := Get()
	require.Len(t, cfg.Module.Rules, 2)

	css := cfg.Module.Rules[0]
	require.Len(t, css.Use, 2)
	assert.Equal(t, LoaderCSS, css.Use[0].Loader)
	assert.Equal(t, LoaderStyle, css.Use[1].Loader)

	js := cfg.Module.Rules[1]
	require.Len(t, js.Use, 1)
	assert.Equal(t, LoaderTranspile, js.Use[0].Loader)
	opts := js.Use[0].Options.(*TranspileOptions)
	assert.Equal(t, []string{"env"}, opts.Presets)
	assert.Equal(t, []string{"object-rest-spread", "transform-runtime"}, opts.Plugins)
}

func TestRuleMatching(t *testing.T) {
	cfg := ForRoot(t.TempDir())

	tests := []struct {
		path string
		want int
	}{
		{"/p/src/css/style.css", 0},
		{"/p/src/css/STYLE.CSS", 0},
		{"/p/src/js/index.js", 1},
		{"/p/src/js/db.mjs", 1},
		{"/p/node_modules/idb/build/index.js", -1},
		{"/p/src/js/index.jsx", -1},
		{"/p/src/images/logo.png", -1},
	}
	for _, tt := range tests {
		_, got := cfg.Module.MatchRule(tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestMatchRuleFirstWins(t *testing.T) {
	m := Module{Rules: []Rule{
		{Test: MustPattern(`\.js$`), Use: []LoaderRef{{Loader: LoaderTranspile}}},
		{Test: MustPattern(`.*`), Use: []LoaderRef{{Loader: LoaderCSS}}},
	}}
	r, i := m.MatchRule("a/b.js")
	require.NotNil(t, r)
	assert.Equal(t, 0, i)

	_, i = m.MatchRule("a/b.css")
	assert.Equal(t, 1, i)
}

func TestFreshValuePerCall(t *testing.T) {
	a := Get()
	b := Get()
	require.NotSame(t, a, b)

	a.Entry[0].Name = "mutated"
	a.Plugins = a.Plugins[:1]
	assert.Equal(t, "main", b.Entry[0].Name)
	assert.Len(t, b.Plugins, 3)
}

func TestValidate(t *testing.T) {
	require.NoError(t, ForRoot(t.TempDir()).Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"duplicate entry", func(c *Config) { c.Entry[1].Name = "main" }, "duplicate entry"},
		{"empty import", func(c *Config) { c.Entry[0].Import = "" }, "no import path"},
		{"filename without name", func(c *Config) { c.Output.Filename = "bundle.js" }, "[name]"},
		{"relative output", func(c *Config) { c.Output.Path = "dist" }, "absolute"},
		{"bad mode", func(c *Config) { c.Mode = "staging" }, "invalid mode"},
		{"unknown loader", func(c *Config) { c.Module.Rules[0].Use[0].Loader = "sass" }, "unknown loader"},
		{"wrong plugin options", func(c *Config) { c.Plugins[0].Options = &PWAManifestOptions{} }, "unexpected options"},
		{"unknown plugin", func(c *Config) { c.Plugins[1].Name = "copy" }, "unknown plugin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ForRoot(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Production ")
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, m)

	_, err = ParseMode("test")
	assert.Error(t, err)

	cfg := Get()
	prod := cfg.WithMode(ModeProduction)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.True(t, prod.IsProduction())
}

func TestEncode(t *testing.T) {
	cfg := ForRoot(t.TempDir())

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cfg, FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "development", decoded["mode"])
	rules := decoded["module"].(map[string]any)["rules"].([]any)
	assert.Equal(t, `\.m?js$`, rules[1].(map[string]any)["test"])

	for _, format := range []string{FormatYAML, FormatTOML} {
		buf.Reset()
		require.NoError(t, Encode(&buf, cfg, format), format)
		assert.True(t, strings.Contains(buf.String(), "JATE"), format)
	}

	assert.Error(t, Encode(&buf, cfg, "xml"))
}
