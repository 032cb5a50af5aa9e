package pipeline

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jate-dev/jate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

var projectFiles = map[string]string{
	"index.html": `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <title><%= htmlWebpackPlugin.options.title %></title>
  </head>
  <body>
    <div id="main"></div>
    <button id="buttonInstall">Install!</button>
  </body>
</html>
`,
	"src-sw.js": `const manifest = self.__WB_MANIFEST;
self.addEventListener("install", () => {
  console.log("precaching", manifest.length);
});
`,
	"src/js/index.js": `import "../css/style.css";
import { header } from "./header";

const defaults = { theme: "dark" };
const settings = { ...defaults, header };
console.log(settings);
`,
	"src/js/header.js": `export const header = "JATE";
`,
	"src/js/install.js": `const butInstall = document.getElementById("buttonInstall");
window.addEventListener("beforeinstallprompt", (event) => {
  event.preventDefault();
  butInstall.hidden = false;
});
`,
	"src/css/style.css": `body { margin: 0; }
.logo { background: url("../images/logo.png"); }
`,
}

func newProject(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	for name, contents := range projectFiles {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}

	logo := filepath.Join(root, "src", "images", "logo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(logo), 0o755))
	f, err := os.Create(logo)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	require.NoError(t, f.Close())

	return config.ForRoot(root)
}

func newBuilder(t *testing.T, cfg *config.Config) *Builder {
	t.Helper()
	b, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func readDist(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.Path, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

// headScripts returns the src of every script element inside <head>.
func headScripts(t *testing.T, doc string) (scripts []string, manifest string, title string) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var walk func(n *html.Node, inHead bool)
	walk = func(n *html.Node, inHead bool) {
		if n.Type == html.ElementNode {
			attrs := map[string]string{}
			for _, a := range n.Attr {
				attrs[a.Key] = a.Val
			}
			switch n.Data {
			case "head":
				inHead = true
			case "script":
				if inHead {
					scripts = append(scripts, attrs["src"])
				}
			case "link":
				if attrs["rel"] == "manifest" {
					manifest = attrs["href"]
				}
			case "title":
				if n.FirstChild != nil {
					title = n.FirstChild.Data
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch, inHead)
		}
	}
	walk(root, false)
	return scripts, manifest, title
}

func TestBuild(t *testing.T) {
	cfg := newProject(t)
	b := newBuilder(t, cfg)

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Positive(t, res.Duration)

	for _, name := range []string{
		"main.bundle.js",
		"install.bundle.js",
		"index.html",
		"src-sw.js",
		"manifest.json",
		"assets/icons/icon_96x96.png",
		"assets/icons/icon_512x512.png",
	} {
		assert.Contains(t, res.Assets, name)
		assert.FileExists(t, filepath.Join(cfg.Output.Path, filepath.FromSlash(name)))
	}

	var logo string
	for _, a := range res.Assets {
		if strings.HasPrefix(a, "assets/logo-") {
			logo = a
		}
	}
	require.NotEmpty(t, logo, "stylesheet images are emitted")

	mainJS := readDist(t, cfg, "main.bundle.js")
	assert.Contains(t, mainJS, "document.head.appendChild")
	assert.Contains(t, mainJS, "/"+logo)
	assert.NotContains(t, mainJS, "...defaults")
	assert.Contains(t, mainJS, "sourceMappingURL=data:")

	scripts, manifest, title := headScripts(t, readDist(t, cfg, "index.html"))
	assert.Equal(t, []string{"/main.bundle.js", "/install.bundle.js"}, scripts)
	assert.Equal(t, "/manifest.json", manifest)
	assert.Equal(t, "Text Editor", title)

	sw := readDist(t, cfg, "src-sw.js")
	assert.NotContains(t, sw, "__WB_MANIFEST")
	assert.Contains(t, sw, `"url":"/main.bundle.js"`)
	assert.Contains(t, sw, `"url":"/manifest.json"`, "assets from later plugins are precached")
	assert.Contains(t, sw, `"url":"/assets/icons/icon_96x96.png"`)
	assert.NotContains(t, sw, `"url":"/src-sw.js"`)

	var m struct {
		ShortName string `json:"short_name"`
		Icons     []struct {
			Src string `json:"src"`
		} `json:"icons"`
	}
	require.NoError(t, json.Unmarshal([]byte(readDist(t, cfg, "manifest.json")), &m))
	assert.Equal(t, "JATE", m.ShortName)
	assert.Len(t, m.Icons, 6)
}

func TestBuildSkipsVendoredScripts(t *testing.T) {
	cfg := newProject(t)
	files := map[string]string{
		"node_modules/dep/index.js": "export const dep = (o) => ({ ...o, vendored: true });\n",
		"src/js/install.js":         "import { dep } from \"dep\";\nconsole.log(dep({ ...window.opts }));\n",
	}
	for name, contents := range files {
		p := filepath.Join(cfg.Context, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}

	_, err := newBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)

	js := readDist(t, cfg, "install.bundle.js")
	assert.Contains(t, js, "...o, vendored: true")
	assert.NotContains(t, js, "...window.opts")
}

func TestBuildUppercaseTemplate(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Context, "index.html"),
		[]byte("<!DOCTYPE html>\n<HTML><HEAD><META charset=\"utf-8\"></HEAD><BODY></BODY></HTML>\n"), 0o644))

	_, err := newBuilder(t, cfg).Build(context.Background())
	require.NoError(t, err)

	scripts, manifest, title := headScripts(t, readDist(t, cfg, "index.html"))
	assert.Equal(t, []string{"/main.bundle.js", "/install.bundle.js"}, scripts)
	assert.Equal(t, "/manifest.json", manifest)
	assert.Equal(t, "Text Editor", title)
}

func TestRebuild(t *testing.T) {
	cfg := newProject(t)
	b := newBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	stale := filepath.Join(cfg.Output.Path, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	header := filepath.Join(cfg.Context, "src", "js", "header.js")
	require.NoError(t, os.WriteFile(header, []byte(`export const header = "Just another text editor";`+"\n"), 0o644))

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, stale, "the output directory is cleaned")
	assert.Contains(t, readDist(t, cfg, "main.bundle.js"), "Just another text editor")

	var logos int
	for _, a := range res.Assets {
		if strings.HasPrefix(a, "assets/logo-") {
			logos++
		}
	}
	assert.Equal(t, 1, logos, "cached stylesheets still contribute their images")
}

func TestBuildProduction(t *testing.T) {
	cfg := newProject(t).WithMode(config.ModeProduction)
	b := newBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	mainJS := readDist(t, cfg, "main.bundle.js")
	assert.NotContains(t, mainJS, "sourceMappingURL")
	assert.NotContains(t, mainJS, "\n  ")
}

func TestBuildErrors(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Context, "src", "js", "install.js"), []byte("const = ;"), 0o644))
	b := newBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install.js")
	assert.NoFileExists(t, filepath.Join(cfg.Output.Path, "index.html"))
}

func TestBuildMissingInjectionPoint(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Context, "src-sw.js"), []byte("self.skipWaiting();\n"), 0o644))
	b := newBuilder(t, cfg)

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injection point")
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := newProject(t)
	cfg.Output.Filename = "bundle.js"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestClosed(t *testing.T) {
	b := newBuilder(t, newProject(t))
	require.NoError(t, b.Close())
	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
