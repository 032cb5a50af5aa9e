package loaders

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/jate-dev/jate/config"
)

// styleLoader turns resolved CSS into a script module that attaches the
// styles to the document when the bundle runs.
type styleLoader struct {
	root string
}

func (styleLoader) Name() string { return config.LoaderStyle }

func (l styleLoader) Load(_ context.Context, m *Module) error {
	if m.Loader != esbuild.LoaderCSS {
		return fmt.Errorf("expected CSS input for %s; put the css loader first", m.Path)
	}

	cssLit, err := json.Marshal(m.Contents)
	if err != nil {
		return err
	}
	source := m.Path
	if rel, err := filepath.Rel(l.root, m.Path); err == nil && !strings.HasPrefix(rel, "..") {
		source = filepath.ToSlash(rel)
	}
	srcLit, err := json.Marshal(source)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "const css = %s;\n", cssLit)
	sb.WriteString("if (typeof document !== \"undefined\") {\n")
	sb.WriteString("  const style = document.createElement(\"style\");\n")
	fmt.Fprintf(&sb, "  style.setAttribute(\"data-source\", %s);\n", srcLit)
	sb.WriteString("  style.appendChild(document.createTextNode(css));\n")
	sb.WriteString("  document.head.appendChild(style);\n")
	sb.WriteString("}\n")
	sb.WriteString("export default css;\n")

	m.Contents = sb.String()
	m.Loader = esbuild.LoaderJS
	return nil
}
