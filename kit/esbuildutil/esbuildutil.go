// Package esbuildutil holds small helpers shared by code that drives
// esbuild's Go API.
package esbuildutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// CollectErrors turns esbuild error messages into a single error, or nil.
func CollectErrors(msgs []esbuild.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	formatted := esbuild.FormatMessages(msgs, esbuild.FormatMessagesOptions{
		Kind: esbuild.ErrorMessage,
	})
	return errors.New(strings.TrimSpace(strings.Join(formatted, "\n")))
}

// FormatWarnings renders esbuild warnings as single-line strings.
func FormatWarnings(msgs []esbuild.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			out = append(out, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		out = append(out, m.Text)
	}
	return out
}

// MetafileSubset is the part of esbuild's metafile JSON this module reads.
type MetafileSubset struct {
	Inputs  map[string]struct{} `json:"inputs"`
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint,omitempty"`
	} `json:"outputs"`
}

func ParseMetafile(s string) (*MetafileSubset, error) {
	var m MetafileSubset
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}
	return &m, nil
}

// InputPaths returns the absolute paths of all real files in the
// metafile's inputs. Virtual inputs like <stdin> are skipped.
func (m *MetafileSubset) InputPaths(workingDir string) []string {
	out := make([]string, 0, len(m.Inputs))
	for p := range m.Inputs {
		// namespaced inputs look like "ns:path"
		if strings.HasPrefix(p, "<") || (strings.Contains(p, ":") && !filepath.IsAbs(p)) {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(workingDir, filepath.FromSlash(p))
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
