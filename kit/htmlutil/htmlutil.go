package htmlutil

import (
	"fmt"
	"html/template"
	"maps"
	"slices"
	"strings"
)

// Element is rendered with escaped attributes and text. DangerousInnerHTML
// is written verbatim and wins over TextContent.
type Element struct {
	Tag                string
	Attributes         map[string]string
	BooleanAttributes  []string
	TextContent        string
	DangerousInnerHTML string
}

var (
	// see https://html.spec.whatwg.org/multipage/syntax.html#void-elements
	selfClosingTags = []string{
		"area", "base", "br", "col", "embed", "hr", "img",
		"input", "link", "meta", "source", "track", "wbr",
	}
)

func RenderElement(el *Element) (template.HTML, error) {
	var htmlBuilder strings.Builder

	err := RenderElementToBuilder(el, &htmlBuilder)
	if err != nil {
		return "", fmt.Errorf("could not render element: %w", err)
	}

	return template.HTML(htmlBuilder.String()), nil
}

// RenderElements renders each element on its own line.
func RenderElements(els ...*Element) (string, error) {
	var sb strings.Builder
	for _, el := range els {
		if err := RenderElementToBuilder(el, &sb); err != nil {
			return "", fmt.Errorf("could not render element: %w", err)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func RenderElementToBuilder(el *Element, htmlBuilder *strings.Builder) error {
	escapedTag := template.HTMLEscapeString(el.Tag)
	if escapedTag == "" {
		return fmt.Errorf("element has no tag")
	}

	isSelfClosing := slices.Contains(selfClosingTags, escapedTag)

	escapedAttributes := combineIntoDangerousAttributes(el)

	htmlBuilder.WriteString("<")
	htmlBuilder.WriteString(escapedTag)

	for _, escapedKey := range slices.Sorted(maps.Keys(escapedAttributes)) {
		writeAttribute(htmlBuilder, escapedKey, escapedAttributes[escapedKey])
	}

	for _, booleanAttribute := range el.BooleanAttributes {
		htmlBuilder.WriteString(" ")
		htmlBuilder.WriteString(template.HTMLEscapeString(booleanAttribute))
	}

	if isSelfClosing {
		htmlBuilder.WriteString(" />")
		return nil
	}

	htmlBuilder.WriteString(">")
	htmlBuilder.WriteString(combineIntoDangerousInnerHTML(el))
	htmlBuilder.WriteString("</")
	htmlBuilder.WriteString(escapedTag)
	htmlBuilder.WriteString(">")
	return nil
}

func writeAttribute(htmlBuilder *strings.Builder, key, value string) {
	htmlBuilder.WriteString(" ")
	htmlBuilder.WriteString(key)
	htmlBuilder.WriteString(`="`)
	htmlBuilder.WriteString(value)
	htmlBuilder.WriteString(`"`)
}

func combineIntoDangerousAttributes(el *Element) map[string]string {
	attributes := make(map[string]string, len(el.Attributes))
	for k, v := range el.Attributes {
		attributes[template.HTMLEscapeString(k)] = template.HTMLEscapeString(v)
	}
	return attributes
}

func combineIntoDangerousInnerHTML(el *Element) string {
	if el.DangerousInnerHTML != "" {
		return el.DangerousInnerHTML
	}
	if el.TextContent != "" {
		return template.HTMLEscapeString(el.TextContent)
	}
	return ""
}

// DeferredScript is a classic script tag with the defer attribute, the
// way bundles are referenced from a generated document head.
func DeferredScript(src string) *Element {
	return &Element{
		Tag:               "script",
		Attributes:        map[string]string{"src": src},
		BooleanAttributes: []string{"defer"},
	}
}
