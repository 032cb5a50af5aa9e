package colorlog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestNewDefaults(t *testing.T) {
	logger := New("jate")
	h, ok := logger.Handler().(*Handler)
	if !ok {
		t.Fatal("handler should be *Handler")
	}
	if h.label != "jate" {
		t.Errorf("label = %q, want jate", h.label)
	}
	if h.opts.Level.Level() != slog.LevelInfo {
		t.Errorf("default level = %v, want info", h.opts.Level)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("jate", Options{Output: &buf, Level: slog.LevelWarn, UseColor: ptr(false)})

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	got := buf.String()
	if strings.Contains(got, "debug") || strings.Contains(got, "info") {
		t.Errorf("debug and info should be filtered: %q", got)
	}
	if !strings.Contains(got, "WARN  warn") {
		t.Errorf("warn missing: %q", got)
	}
	if !strings.Contains(got, "ERROR  error") {
		t.Errorf("error missing: %q", got)
	}
}

func TestLevelVar(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelError)
	logger := New("jate", Options{Output: &buf, Level: lv, UseColor: ptr(false)})

	logger.Info("hidden")
	lv.Set(slog.LevelDebug)
	logger.Debug("shown")

	got := buf.String()
	if strings.Contains(got, "hidden") || !strings.Contains(got, "shown") {
		t.Errorf("level var not honored: %q", got)
	}
}

func TestColors(t *testing.T) {
	tests := []struct {
		level slog.Level
		color string
	}{
		{slog.LevelDebug, colorGray},
		{slog.LevelInfo, colorCyan},
		{slog.LevelWarn, colorYellow},
		{slog.LevelError, colorRed},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New("jate", Options{Output: &buf, Level: slog.LevelDebug, UseColor: ptr(true)})
		logger.Log(context.Background(), tt.level, "msg")
		if !strings.Contains(buf.String(), tt.color) {
			t.Errorf("level %v: missing color in %q", tt.level, buf.String())
		}
	}

	var buf bytes.Buffer
	New("jate", Options{Output: &buf, UseColor: ptr(false)}).Info("plain", "k", "v")
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("color codes should not appear when disabled: %q", buf.String())
	}
}

func TestAttrFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := New("jate", Options{Output: &buf, UseColor: ptr(false)})

	logger.Info("DONE build",
		"assets", 12,
		"path", "/tmp/dist",
		"title", "Text Editor",
		"ok", true,
	)

	got := buf.String()
	for _, want := range []string{"assets=12", "path=/tmp/dist", `title="Text Editor"`, "ok=true"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("line should end with newline: %q", got)
	}
}

func TestGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := New("jate", Options{Output: &buf, UseColor: ptr(false)})

	logger.With("pre", "val").WithGroup("plugin").WithGroup("html").Info("emit", "file", "index.html")

	got := buf.String()
	if !strings.Contains(got, "pre=val") {
		t.Errorf("pre-group attr missing: %q", got)
	}
	if !strings.Contains(got, "plugin.html.file=index.html") {
		t.Errorf("group prefix not applied: %q", got)
	}

	buf.Reset()
	logger.Info("original")
	if strings.Contains(buf.String(), "pre=") {
		t.Errorf("original logger should not carry attrs: %q", buf.String())
	}
}

func TestCloneSharesMutex(t *testing.T) {
	logger := New("jate", Options{Output: &bytes.Buffer{}, UseColor: ptr(false)})

	h1 := logger.Handler().(*Handler)
	h2 := logger.With("key", "value").Handler().(*Handler)
	h3 := logger.WithGroup("grp").Handler().(*Handler)

	if h1.mu != h2.mu || h1.mu != h3.mu {
		t.Error("clones should share the same mutex")
	}
	if h1.WithAttrs(nil) != h1 || h1.WithGroup("") != h1 {
		t.Error("empty WithAttrs/WithGroup should return the same handler")
	}
}

func TestThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := New("jate", Options{Output: &buf, UseColor: ptr(false)})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("message", "n", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, "message") {
			t.Errorf("line %d appears corrupted: %q", i, line)
		}
	}
}

type errorWriter struct{}

func (errorWriter) Write([]byte) (int, error) {
	return 0, errors.New("write error")
}

func TestHandleError(t *testing.T) {
	h := New("jate", Options{Output: errorWriter{}, UseColor: ptr(false)}).Handler()

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	if err == nil || err.Error() != "write error" {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLevel(%q) err = %v, want err %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
