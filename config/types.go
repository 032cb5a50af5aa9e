// Package config declares the shape of a JATE build and provides the
// project's build configuration. It has no dependencies on the build
// engine; the engine consumes what this package returns.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDevelopment:
		return ModeDevelopment, nil
	case ModeProduction:
		return ModeProduction, nil
	}
	return "", fmt.Errorf("config: unknown mode %q (want %q or %q)", s, ModeDevelopment, ModeProduction)
}

// Config is the complete description of one build.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode" toml:"mode"`

	// Context is the absolute project root. Relative paths anywhere in the
	// config resolve against it.
	Context string `json:"context" yaml:"context" toml:"context"`

	Entry   []Entry            `json:"entry" yaml:"entry" toml:"entry"`
	Output  Output             `json:"output" yaml:"output" toml:"output"`
	Plugins []PluginDescriptor `json:"plugins" yaml:"plugins" toml:"plugins"`
	Module  Module             `json:"module" yaml:"module" toml:"module"`
}

// Entry is a named root module. Each entry produces one bundle.
type Entry struct {
	Name   string `json:"name" yaml:"name" toml:"name"`
	Import string `json:"import" yaml:"import" toml:"import"`
}

type Output struct {
	// Filename is a template; [name] is replaced by the entry name.
	Filename   string `json:"filename" yaml:"filename" toml:"filename"`
	Path       string `json:"path" yaml:"path" toml:"path"`
	PublicPath string `json:"publicPath,omitempty" yaml:"publicPath,omitempty" toml:"publicPath,omitempty"`
}

// Plugin names understood by the build engine.
const (
	PluginHTML           = "html"
	PluginInjectManifest = "inject-manifest"
	PluginPWAManifest    = "pwa-manifest"
)

// PluginDescriptor pairs a plugin identity with its options. Options is
// one of *HTMLOptions, *InjectManifestOptions or *PWAManifestOptions.
type PluginDescriptor struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Options any    `json:"options" yaml:"options" toml:"options"`
}

type HTMLOptions struct {
	Template string `json:"template" yaml:"template" toml:"template"`
	Title    string `json:"title" yaml:"title" toml:"title"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty" toml:"filename,omitempty"`
}

type InjectManifestOptions struct {
	SwSrc  string `json:"swSrc" yaml:"swSrc" toml:"swSrc"`
	SwDest string `json:"swDest" yaml:"swDest" toml:"swDest"`

	// InjectionPoint defaults to self.__WB_MANIFEST.
	InjectionPoint string `json:"injectionPoint,omitempty" yaml:"injectionPoint,omitempty" toml:"injectionPoint,omitempty"`

	// MaximumFileSizeToCacheInBytes defaults to 2 MiB.
	MaximumFileSizeToCacheInBytes int64 `json:"maximumFileSizeToCacheInBytes,omitempty" yaml:"maximumFileSizeToCacheInBytes,omitempty" toml:"maximumFileSizeToCacheInBytes,omitempty"`
}

type PWAManifestOptions struct {
	Fingerprints    bool   `json:"fingerprints" yaml:"fingerprints" toml:"fingerprints"`
	Inject          bool   `json:"inject" yaml:"inject" toml:"inject"`
	Filename        string `json:"filename,omitempty" yaml:"filename,omitempty" toml:"filename,omitempty"`
	Name            string `json:"name" yaml:"name" toml:"name"`
	ShortName       string `json:"short_name" yaml:"short_name" toml:"short_name"`
	Description     string `json:"description" yaml:"description" toml:"description"`
	BackgroundColor string `json:"background_color" yaml:"background_color" toml:"background_color"`
	ThemeColor      string `json:"theme_color" yaml:"theme_color" toml:"theme_color"`
	StartURL        string `json:"start_url" yaml:"start_url" toml:"start_url"`
	Display         string `json:"display,omitempty" yaml:"display,omitempty" toml:"display,omitempty"`
	Orientation     string `json:"orientation,omitempty" yaml:"orientation,omitempty" toml:"orientation,omitempty"`
	PublicPath      string `json:"publicPath" yaml:"publicPath" toml:"publicPath"`
	Icons           []Icon `json:"icons" yaml:"icons" toml:"icons"`
}

// Icon is one source image scaled to every listed size.
type Icon struct {
	Src         string `json:"src" yaml:"src" toml:"src"`
	Sizes       []int  `json:"sizes" yaml:"sizes" toml:"sizes"`
	Destination string `json:"destination" yaml:"destination" toml:"destination"`
}

type Module struct {
	Rules []Rule `json:"rules" yaml:"rules" toml:"rules"`
}

// Loader names understood by the build engine.
const (
	LoaderCSS       = "css"
	LoaderStyle     = "style"
	LoaderTranspile = "transpile"
)

// Rule selects a loader chain by file path. Use is listed in execution
// order: the first loader receives the file contents.
type Rule struct {
	Test    *Pattern    `json:"test" yaml:"test" toml:"test"`
	Exclude *Pattern    `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Use     []LoaderRef `json:"use" yaml:"use" toml:"use"`
}

type LoaderRef struct {
	Loader  string `json:"loader" yaml:"loader" toml:"loader"`
	Options any    `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
}

// TranspileOptions configures the transpile loader.
type TranspileOptions struct {
	Presets []string `json:"presets" yaml:"presets" toml:"presets"`
	Plugins []string `json:"plugins" yaml:"plugins" toml:"plugins"`
}

// Pattern is a compiled regular expression that encodes as its source.
type Pattern struct {
	*regexp.Regexp
}

func MustPattern(expr string) *Pattern {
	return &Pattern{Regexp: regexp.MustCompile(expr)}
}

func (p *Pattern) MarshalText() ([]byte, error) {
	if p == nil || p.Regexp == nil {
		return nil, nil
	}
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(b []byte) error {
	re, err := regexp.Compile(string(b))
	if err != nil {
		return err
	}
	p.Regexp = re
	return nil
}

// Matches reports whether the rule applies to path. Paths are matched
// with forward slashes so Exclude patterns like node_modules behave the
// same on every OS.
func (r *Rule) Matches(path string) bool {
	if r.Test == nil || r.Test.Regexp == nil {
		return false
	}
	p := filepath.ToSlash(path)
	if !r.Test.MatchString(p) {
		return false
	}
	if r.Exclude != nil && r.Exclude.Regexp != nil && r.Exclude.MatchString(p) {
		return false
	}
	return true
}

// MatchRule returns the first rule that applies to path and its index,
// or -1 when none does.
func (m *Module) MatchRule(path string) (*Rule, int) {
	for i := range m.Rules {
		if m.Rules[i].Matches(path) {
			return &m.Rules[i], i
		}
	}
	return nil, -1
}

func (c *Config) EntryNames() []string {
	names := make([]string, 0, len(c.Entry))
	for _, e := range c.Entry {
		names = append(names, e.Name)
	}
	return names
}

// OutputFile returns the bundle filename for an entry name.
func (c *Config) OutputFile(entryName string) string {
	return strings.ReplaceAll(c.Output.Filename, "[name]", entryName)
}

// Resolve makes a config-relative path absolute.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Context, filepath.FromSlash(p))
}

func (c *Config) IsProduction() bool { return c.Mode == ModeProduction }

// WithMode returns a shallow copy of c that builds in mode m.
func (c *Config) WithMode(m Mode) *Config {
	cp := *c
	cp.Mode = m
	return &cp
}

func (c *Config) Validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return fmt.Errorf("config: invalid mode %q", c.Mode)
	}
	if !filepath.IsAbs(c.Context) {
		return fmt.Errorf("config: context must be absolute, got %q", c.Context)
	}

	if len(c.Entry) == 0 {
		return fmt.Errorf("config: at least one entry is required")
	}
	seen := make(map[string]struct{}, len(c.Entry))
	for i, e := range c.Entry {
		if e.Name == "" {
			return fmt.Errorf("config: entry[%d] has no name", i)
		}
		if e.Import == "" {
			return fmt.Errorf("config: entry %q has no import path", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("config: duplicate entry name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	if !strings.Contains(c.Output.Filename, "[name]") {
		return fmt.Errorf("config: output.filename %q must contain [name]", c.Output.Filename)
	}
	if filepath.Ext(c.Output.Filename) != ".js" {
		return fmt.Errorf("config: output.filename %q must end in .js", c.Output.Filename)
	}
	if !filepath.IsAbs(c.Output.Path) {
		return fmt.Errorf("config: output.path must be absolute, got %q", c.Output.Path)
	}

	for i, p := range c.Plugins {
		if err := validatePlugin(p); err != nil {
			return fmt.Errorf("config: plugins[%d]: %w", i, err)
		}
	}

	for i, r := range c.Module.Rules {
		if r.Test == nil || r.Test.Regexp == nil {
			return fmt.Errorf("config: module.rules[%d] has no test", i)
		}
		if len(r.Use) == 0 {
			return fmt.Errorf("config: module.rules[%d] has no loaders", i)
		}
		for j, u := range r.Use {
			if !slices.Contains(knownLoaders, u.Loader) {
				return fmt.Errorf("config: module.rules[%d].use[%d]: unknown loader %q", i, j, u.Loader)
			}
		}
	}

	return nil
}

var knownLoaders = []string{LoaderCSS, LoaderStyle, LoaderTranspile}

func validatePlugin(p PluginDescriptor) error {
	var ok bool
	switch p.Name {
	case PluginHTML:
		_, ok = p.Options.(*HTMLOptions)
	case PluginInjectManifest:
		var o *InjectManifestOptions
		if o, ok = p.Options.(*InjectManifestOptions); ok && (o.SwSrc == "" || o.SwDest == "") {
			return fmt.Errorf("%s: swSrc and swDest are required", p.Name)
		}
	case PluginPWAManifest:
		_, ok = p.Options.(*PWAManifestOptions)
	default:
		return fmt.Errorf("unknown plugin %q", p.Name)
	}
	if !ok {
		return fmt.Errorf("%s: unexpected options type %T", p.Name, p.Options)
	}
	return nil
}
