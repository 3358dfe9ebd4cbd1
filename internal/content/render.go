package content

import (
	"html"
	"strings"
)

// Render projects a document to HTML. The output depends only on the tree, so
// two equal trees always produce byte-identical snapshots.
func Render(doc Document) string {
	var out strings.Builder
	renderNode(&out, doc)
	return out.String()
}

func renderNode(out *strings.Builder, n Node) {
	switch v := deref(n).(type) {
	case Document:
		for _, child := range v.Children {
			renderNode(out, child)
		}
	case Paragraph:
		out.WriteString("<p>")
		for _, child := range v.Children {
			renderNode(out, child)
		}
		out.WriteString("</p>\n")
	case Text:
		out.WriteString(html.EscapeString(v.Value))
	}
}

// PlainText joins paragraph text with newlines.
func PlainText(doc Document) string {
	lines := make([]string, 0, len(doc.Children))
	for _, child := range doc.Children {
		p, ok := deref(child).(Paragraph)
		if !ok {
			continue
		}
		var line strings.Builder
		for _, inline := range p.Children {
			if t, ok := deref(inline).(Text); ok {
				line.WriteString(t.Value)
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
