package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
	"github.com/jate-dev/jate/kit/htmlutil"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	defaultManifestFilename = "manifest.json"
	defaultDisplay          = "standalone"
	defaultOrientation      = "portrait"
)

// WebManifest is the emitted manifest document.
type WebManifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description,omitempty"`
	Display         string         `json:"display"`
	Orientation     string         `json:"orientation"`
	StartURL        string         `json:"start_url"`
	BackgroundColor string         `json:"background_color,omitempty"`
	ThemeColor      string         `json:"theme_color,omitempty"`
	Icons           []ManifestIcon `json:"icons"`
}

type ManifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// PWAManifestPlugin writes the web app manifest and its scaled icons, and
// links the manifest from HTML documents emitted before it.
type PWAManifestPlugin struct {
	opts config.PWAManifestOptions
	cfg  *config.Config
	log  *slog.Logger
}

var _ compile.Plugin = (*PWAManifestPlugin)(nil)

func (p *PWAManifestPlugin) Name() string { return config.PluginPWAManifest }

func (p *PWAManifestPlugin) Apply(ctx context.Context, c *compile.Compilation) error {
	m := WebManifest{
		Name:            p.opts.Name,
		ShortName:       p.opts.ShortName,
		Description:     p.opts.Description,
		Display:         orDefault(p.opts.Display, defaultDisplay),
		Orientation:     orDefault(p.opts.Orientation, defaultOrientation),
		StartURL:        orDefault(p.opts.StartURL, "."),
		BackgroundColor: p.opts.BackgroundColor,
		ThemeColor:      p.opts.ThemeColor,
		Icons:           []ManifestIcon{},
	}

	for _, icon := range p.opts.Icons {
		emitted, err := p.emitIcon(ctx, c, icon)
		if err != nil {
			return err
		}
		m.Icons = append(m.Icons, emitted...)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	filename := orDefault(p.opts.Filename, defaultManifestFilename)
	if p.opts.Fingerprints {
		filename = fingerprint(filename, data)
	}
	if err := c.EmitAsset(filename, data, compile.AssetInfo{Immutable: p.opts.Fingerprints}); err != nil {
		return err
	}
	p.log.Debug("emitted manifest", "file", filename, "icons", len(m.Icons))

	if p.opts.Inject {
		return p.inject(c, filename)
	}
	return nil
}

func (p *PWAManifestPlugin) inject(c *compile.Compilation, manifestName string) error {
	els := []*htmlutil.Element{{
		Tag:        "link",
		Attributes: map[string]string{"rel": "manifest", "href": compile.JoinURL(p.opts.PublicPath, manifestName)},
	}}
	if p.opts.ThemeColor != "" {
		els = append(els, &htmlutil.Element{
			Tag:        "meta",
			Attributes: map[string]string{"name": "theme-color", "content": p.opts.ThemeColor},
		})
	}
	tags, err := htmlutil.RenderElements(els...)
	if err != nil {
		return err
	}

	var injected int
	for _, a := range c.Assets() {
		if path.Ext(a.Name) != ".html" {
			continue
		}
		if err := c.UpdateAsset(a.Name, func(old []byte) ([]byte, error) {
			return htmlutil.AppendToHead(old, tags)
		}); err != nil {
			return err
		}
		injected++
	}
	if injected == 0 {
		c.Warn("%s: inject is enabled but no HTML document was emitted before this plugin", p.Name())
	}
	return nil
}

type encodedIcon struct {
	size int
	data []byte
}

func (p *PWAManifestPlugin) emitIcon(ctx context.Context, c *compile.Compilation, icon config.Icon) ([]ManifestIcon, error) {
	srcPath := p.cfg.Resolve(icon.Src)
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("icon: %w", err)
	}
	src, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("icon %s: decode: %w", srcPath, err)
	}

	ext, mime := ".png", "image/png"
	if format == "jpeg" {
		ext, mime = ".jpg", "image/jpeg"
	}

	for _, size := range icon.Sizes {
		if size <= 0 {
			return nil, fmt.Errorf("icon %s: invalid size %d", srcPath, size)
		}
	}

	results := make([]encodedIcon, len(icon.Sizes))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, size := range icon.Sizes {
		g.Go(func() error {
			data, err := resize(src, size, format)
			if err != nil {
				return fmt.Errorf("icon %s at %dpx: %w", srcPath, size, err)
			}
			results[i] = encodedIcon{size: size, data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dest := filepath.ToSlash(icon.Destination)
	out := make([]ManifestIcon, 0, len(results))
	for _, r := range results {
		name := path.Join(dest, fmt.Sprintf("icon_%dx%d%s", r.size, r.size, ext))
		if p.opts.Fingerprints {
			name = fingerprint(name, r.data)
		}
		if err := c.EmitAsset(name, r.data, compile.AssetInfo{Immutable: p.opts.Fingerprints, SourceFile: srcPath}); err != nil {
			return nil, err
		}
		out = append(out, ManifestIcon{
			Src:   compile.JoinURL(p.opts.PublicPath, name),
			Sizes: fmt.Sprintf("%dx%d", r.size, r.size),
			Type:  mime,
		})
	}
	return out, nil
}

func resize(src image.Image, size int, format string) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	var err error
	if format == "jpeg" {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&buf, dst)
	}
	return buf.Bytes(), err
}

// fingerprint inserts a content hash before the extension.
func fingerprint(name string, data []byte) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + contentHash(data, 10) + ext
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
