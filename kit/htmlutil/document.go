package htmlutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/html"
)

// Document is a lexed HTML document that supports inserting fragments at
// structural positions without reformatting the rest of the markup.
type Document struct {
	src  []byte
	toks []token
}

type token struct {
	typ        html.TokenType
	name       string
	start, end int
}

func ParseDocument(src []byte) (*Document, error) {
	d := &Document{src: src}

	l := html.NewLexer(parse.NewInputBytes(bytes.Clone(src)))
	cursor := 0
	for {
		tt, data := l.Next()
		if tt == html.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("htmlutil: lex document: %w", err)
			}
			break
		}
		if len(data) == 0 {
			continue
		}

		// Tokens arrive in source order but the lexer skips whitespace
		// inside tags and lowercases tag and attribute names.
		idx := indexFoldASCII(src[cursor:], data)
		if idx < 0 {
			return nil, fmt.Errorf("htmlutil: lost track of token %q", data)
		}
		start := cursor + idx
		cursor = start + len(data)

		tok := token{typ: tt, start: start, end: cursor}
		switch tt {
		case html.StartTagToken, html.EndTagToken:
			tok.name = string(bytes.ToLower(l.Text()))
		}
		d.toks = append(d.toks, tok)
	}
	return d, nil
}

// indexFoldASCII is bytes.Index with ASCII case folding. Folding never
// changes byte lengths, so a match in s is also an offset into s.
func indexFoldASCII(s, sep []byte) int {
	n := len(sep)
	for i := 0; i+n <= len(s); i++ {
		if equalFoldASCII(s[i:i+n], sep) {
			return i
		}
	}
	return -1
}

func equalFoldASCII(a, b []byte) bool {
	for i := range a {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func (d *Document) Bytes() []byte { return d.src }

// Has reports whether the document contains a start tag named tag.
func (d *Document) Has(tag string) bool {
	return d.find(html.StartTagToken, tag) >= 0
}

func (d *Document) find(typ html.TokenType, name string) int {
	for i, t := range d.toks {
		if t.typ == typ && t.name == name {
			return i
		}
	}
	return -1
}

// afterStartTag returns the offset just past the '>' that closes the
// first start tag named name, or -1.
func (d *Document) afterStartTag(name string) int {
	i := d.find(html.StartTagToken, name)
	if i < 0 {
		return -1
	}
	for j := i + 1; j < len(d.toks); j++ {
		switch d.toks[j].typ {
		case html.StartTagCloseToken, html.StartTagVoidToken:
			return d.toks[j].end
		case html.AttributeToken:
			continue
		default:
			return d.toks[i].end
		}
	}
	return d.toks[i].end
}

func (d *Document) beforeEndTag(name string) int {
	if i := d.find(html.EndTagToken, name); i >= 0 {
		return d.toks[i].start
	}
	return -1
}

// HeadEnd is where content appended to <head> belongs: before </head>,
// else before <body>, else after <html>, else the start of the document.
func (d *Document) HeadEnd() int {
	if off := d.beforeEndTag("head"); off >= 0 {
		return off
	}
	if i := d.find(html.StartTagToken, "body"); i >= 0 {
		return d.toks[i].start
	}
	if off := d.afterStartTag("html"); off >= 0 {
		return off
	}
	return 0
}

// HeadStart is where content prepended to <head> belongs.
func (d *Document) HeadStart() int {
	if off := d.afterStartTag("head"); off >= 0 {
		return off
	}
	return d.HeadEnd()
}

// BodyEnd is where content appended to <body> belongs.
func (d *Document) BodyEnd() int {
	if off := d.beforeEndTag("body"); off >= 0 {
		return off
	}
	if off := d.beforeEndTag("html"); off >= 0 {
		return off
	}
	return len(d.src)
}

// InsertAt returns a copy of src with fragment inserted at off.
func InsertAt(src []byte, off int, fragment string) []byte {
	out := make([]byte, 0, len(src)+len(fragment))
	out = append(out, src[:off]...)
	out = append(out, fragment...)
	out = append(out, src[off:]...)
	return out
}

// AppendToHead inserts fragment at the end of the document head.
func AppendToHead(src []byte, fragment string) ([]byte, error) {
	d, err := ParseDocument(src)
	if err != nil {
		return nil, err
	}
	return InsertAt(src, d.HeadEnd(), fragment), nil
}

// AppendToBody inserts fragment at the end of the document body.
func AppendToBody(src []byte, fragment string) ([]byte, error) {
	d, err := ParseDocument(src)
	if err != nil {
		return nil, err
	}
	return InsertAt(src, d.BodyEnd(), fragment), nil
}

// EnsureTitle adds a <title> at the top of the head when the document has
// none. Documents that already carry a title are returned unchanged.
func EnsureTitle(src []byte, title string) ([]byte, error) {
	d, err := ParseDocument(src)
	if err != nil {
		return nil, err
	}
	if d.Has("title") {
		return src, nil
	}
	el, err := RenderElement(&Element{Tag: "title", TextContent: title})
	if err != nil {
		return nil, err
	}
	return InsertAt(src, d.HeadStart(), string(el)), nil
}
