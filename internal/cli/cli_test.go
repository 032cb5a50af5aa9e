package cli

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := NewRootCmd(&out, &logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), logs.String(), err
}

func TestConfigJSON(t *testing.T) {
	root := t.TempDir()
	out, _, err := run(t, "config", "--root", root)
	require.NoError(t, err)

	var got struct {
		Mode   string `json:"mode"`
		Output struct {
			Filename string `json:"filename"`
			Path     string `json:"path"`
		} `json:"output"`
		Plugins []struct {
			Name string `json:"name"`
		} `json:"plugins"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "development", got.Mode)
	assert.Equal(t, "[name].bundle.js", got.Output.Filename)
	assert.Equal(t, filepath.Join(root, "dist"), got.Output.Path)
	require.Len(t, got.Plugins, 3)
	assert.Equal(t, "html", got.Plugins[0].Name)
	assert.Contains(t, out, "Text Editor")
}

func TestConfigYAMLProduction(t *testing.T) {
	out, _, err := run(t, "config", "--root", t.TempDir(), "--format", "yaml", "--mode", "production", "--check")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "production", got["mode"])
}

func TestConfigTOML(t *testing.T) {
	out, _, err := run(t, "config", "--root", t.TempDir(), "--format", "toml")
	require.NoError(t, err)
	assert.Regexp(t, `mode = ['"]development['"]`, out)
}

func TestBadFlags(t *testing.T) {
	_, _, err := run(t, "config", "--root", t.TempDir(), "--mode", "staging")
	assert.Error(t, err)

	_, _, err = run(t, "config", "--root", t.TempDir(), "--log-level", "loud")
	assert.Error(t, err)

	_, _, err = run(t, "config", "--root", t.TempDir(), "--format", "xml")
	assert.Error(t, err)
}

func TestLogLevelFromEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("JATE_LOG_LEVEL=verbose\n"), 0o644))
	t.Setenv(envLogLevel, "")
	os.Unsetenv(envLogLevel)

	_, _, err := run(t, "config", "--root", root)
	require.Error(t, err, "the .env level is applied")

	_, _, err = run(t, "config", "--root", root, "--log-level", "debug")
	require.NoError(t, err, "the flag wins over the environment")
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"index.html":        "<html><head><title><%= htmlWebpackPlugin.options.title %></title></head><body></body></html>",
		"src-sw.js":         "console.log(self.__WB_MANIFEST);\n",
		"src/js/index.js":   "import '../css/style.css';\nconsole.log('editor');\n",
		"src/js/install.js": "console.log('install');\n",
		"src/css/style.css": "body { margin: 0; }\n",
	}
	for name, contents := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}
	logo := filepath.Join(root, "src", "images", "logo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(logo), 0o755))
	f, err := os.Create(logo)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	out, logs, err := run(t, "build", "--root", root)
	require.NoError(t, err)

	written := strings.Fields(out)
	assert.Contains(t, written, "main.bundle.js")
	assert.Contains(t, written, "install.bundle.js")
	assert.Contains(t, written, "index.html")
	assert.Contains(t, written, "src-sw.js")
	assert.Contains(t, written, "manifest.json")
	assert.Contains(t, logs, "START build")
	assert.Contains(t, logs, "DONE build")
	assert.FileExists(t, filepath.Join(root, "dist", "assets", "icons", "icon_192x192.png"))
}
