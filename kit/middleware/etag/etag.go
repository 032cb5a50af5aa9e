// Package etag adds ETags to GET and HEAD responses and answers
// conditional requests with 304 Not Modified.
package etag

import (
	"bytes"
	"encoding/hex"
	"hash"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type Config struct {
	Strong      bool
	Hash        func() hash.Hash // Default: BLAKE2b-256
	MaxBodySize int64            // Default: 8 MiB; larger bodies pass through untagged
	SkipFunc    func(r *http.Request) bool
}

func newBlake2b() hash.Hash {
	h, _ := blake2b.New256(nil) // only fails for keys over 64 bytes
	return h
}

// Auto buffers each response, hashes its body and sets an ETag. Weak tags
// unless cfg.Strong is set.
func Auto(cfg *Config) func(http.Handler) http.Handler {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Hash == nil {
		c.Hash = newBlake2b
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = 8 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if c.SkipFunc != nil && c.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{w: w, status: http.StatusOK, header: w.Header().Clone(), max: c.MaxBodySize}
			next.ServeHTTP(bw, r)
			if bw.passthrough {
				return
			}
			if !bw.taggable() {
				bw.flush("")
				return
			}

			h := c.Hash()
			h.Write(bw.buf.Bytes())
			tag := `"` + hex.EncodeToString(h.Sum(nil)) + `"`
			if !c.Strong {
				tag = "W/" + tag
			}
			if inm := r.Header.Get("If-None-Match"); inm != "" && matches(inm, tag) {
				notModified(w, bw.header, tag)
				return
			}
			bw.flush(tag)
		})
	}
}

// bufferedWriter holds the response until the body is complete, or
// switches to pass-through once it exceeds max.
type bufferedWriter struct {
	w           http.ResponseWriter
	header      http.Header
	status      int
	wroteHeader bool
	buf         bytes.Buffer
	max         int64
	passthrough bool
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if !b.wroteHeader {
		b.status = code
		b.wroteHeader = true
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	if b.passthrough {
		return b.w.Write(p)
	}
	if int64(b.buf.Len()+len(p)) > b.max {
		b.passthrough = true
		maps.Copy(b.w.Header(), b.header)
		b.w.WriteHeader(b.status)
		if _, err := b.w.Write(b.buf.Bytes()); err != nil {
			return 0, err
		}
		b.buf.Reset()
		return b.w.Write(p)
	}
	return b.buf.Write(p)
}

func (b *bufferedWriter) taggable() bool {
	return b.status == http.StatusOK &&
		b.buf.Len() > 0 &&
		!strings.Contains(b.header.Get("Cache-Control"), "no-store") &&
		b.header.Get("Set-Cookie") == ""
}

func (b *bufferedWriter) flush(tag string) {
	h := b.w.Header()
	maps.Copy(h, b.header)
	if tag != "" {
		h.Set("ETag", tag)
		h.Set("Content-Length", strconv.Itoa(b.buf.Len()))
	}
	b.w.WriteHeader(b.status)
	b.w.Write(b.buf.Bytes())
}

func notModified(w http.ResponseWriter, header http.Header, tag string) {
	h := w.Header()
	for _, k := range []string{"Cache-Control", "Content-Location", "Date", "Expires", "Vary"} {
		if v := header.Values(k); len(v) > 0 {
			h[k] = v
		}
	}
	h.Set("ETag", tag)
	w.WriteHeader(http.StatusNotModified)
}

// matches compares using the weak comparison function of RFC 9110, which
// is the one If-None-Match requires.
func matches(ifNoneMatch, tag string) bool {
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
