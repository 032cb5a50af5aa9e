package plugins

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"regexp"

	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/internal/compile"
	"github.com/jate-dev/jate/kit/htmlutil"
)

const defaultHTMLFilename = "index.html"

const defaultHTMLTemplate = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body></body>
</html>
`

var titlePlaceholder = regexp.MustCompile(`<%=\s*htmlWebpackPlugin\.options\.title\s*%>`)

// HTMLPlugin renders the page template and references every entry
// bundle from it.
type HTMLPlugin struct {
	opts config.HTMLOptions
	cfg  *config.Config
	log  *slog.Logger
}

var _ compile.Plugin = (*HTMLPlugin)(nil)

func (p *HTMLPlugin) Name() string { return config.PluginHTML }

func (p *HTMLPlugin) Filename() string {
	if p.opts.Filename != "" {
		return p.opts.Filename
	}
	return defaultHTMLFilename
}

func (p *HTMLPlugin) Apply(_ context.Context, c *compile.Compilation) error {
	src, tplPath, err := p.readTemplate()
	if err != nil {
		return err
	}

	src = titlePlaceholder.ReplaceAllLiteral(src, []byte(html.EscapeString(p.opts.Title)))
	if p.opts.Title != "" {
		if src, err = htmlutil.EnsureTitle(src, p.opts.Title); err != nil {
			return fmt.Errorf("%s: %w", tplPath, err)
		}
	}

	var scripts []*htmlutil.Element
	for _, ep := range c.Entrypoints() {
		for _, f := range ep.Files {
			if path.Ext(f) == ".js" {
				scripts = append(scripts, htmlutil.DeferredScript(c.PublicURL(f)))
			}
		}
	}
	tags, err := htmlutil.RenderElements(scripts...)
	if err != nil {
		return err
	}
	if src, err = htmlutil.AppendToHead(src, tags); err != nil {
		return fmt.Errorf("%s: %w", tplPath, err)
	}

	if err := c.EmitAsset(p.Filename(), src, compile.AssetInfo{SourceFile: tplPath}); err != nil {
		return err
	}
	p.log.Debug("emitted document", "file", p.Filename(), "scripts", len(scripts))
	return nil
}

func (p *HTMLPlugin) readTemplate() ([]byte, string, error) {
	if p.opts.Template == "" {
		return []byte(defaultHTMLTemplate), "", nil
	}
	tplPath := p.cfg.Resolve(p.opts.Template)
	src, err := os.ReadFile(tplPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tplPath, fmt.Errorf("template %s does not exist", tplPath)
	}
	if err != nil {
		return nil, tplPath, fmt.Errorf("read template: %w", err)
	}
	return src, tplPath, nil
}
