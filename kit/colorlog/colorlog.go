// Package colorlog provides a compact, optionally colored slog handler
// for command-line tools.
package colorlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[37m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorBlue   = "\033[34m"
)

type Options struct {
	Output   io.Writer
	Level    slog.Leveler
	UseColor *bool // nil = auto-detect
}

type Handler struct {
	label  string
	opts   Options
	mu     *sync.Mutex // shared across WithAttrs/WithGroup clones
	attrs  []slog.Attr
	groups []string
	color  bool
}

func New(label string, opts ...Options) *slog.Logger {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}

	return slog.New(&Handler{
		label: label,
		opts:  o,
		mu:    &sync.Mutex{},
		color: detectColor(o.Output, o.UseColor),
	})
}

// ParseLevel accepts debug, info, warn and error in any case. An empty
// string means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("colorlog: invalid level %q", s)
	}
	return l, nil
}

func detectColor(w io.Writer, override *bool) bool {
	if override != nil {
		return *override
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(h.wrap(colorGray, r.Time.Format("15:04:05.000")))
	sb.WriteString("  ")
	sb.WriteString(h.wrap(colorBlue, h.label))
	sb.WriteString("  ")
	sb.WriteString(h.wrap(h.levelToColor(r.Level), h.levelToPrefix(r.Level)+r.Message))

	writeAttr := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		sb.WriteString("  ")
		sb.WriteString(h.wrap(colorGray, a.Key+"="))
		sb.WriteString(formatValue(a.Value))
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(h.prefixAttr(a))
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.opts.Output, sb.String())
	return err
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindGroup:
		parts := make([]string, 0, len(v.Group()))
		for _, a := range v.Group() {
			parts = append(parts, a.Key+"="+formatValue(a.Value))
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, h.prefixAttr(a))
	}
	clone := *h
	clone.attrs = newAttrs
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *Handler) prefixAttr(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	return slog.Attr{Key: strings.Join(h.groups, ".") + "." + a.Key, Value: a.Value}
}

func (h *Handler) wrap(color string, s string) string {
	if !h.color {
		return s
	}
	return color + s + colorReset
}

func (h *Handler) levelToColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

func (h *Handler) levelToPrefix(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR  "
	case level >= slog.LevelWarn:
		return "WARN  "
	case level >= slog.LevelInfo:
		return ""
	default:
		return "DEBUG  "
	}
}
