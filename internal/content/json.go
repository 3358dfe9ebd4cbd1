package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireNode mirrors the editor's JSON. Text is a pointer so that a missing
// "text" key can be told apart from an empty string.
type wireNode struct {
	Type    Kind              `json:"type"`
	Content []json.RawMessage `json:"content,omitempty"`
	Text    *string           `json:"text,omitempty"`
}

// Parse decodes and validates a document in the editor's JSON format:
//
//	{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi"}]}]}
func Parse(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Document{}, malformed("", "document is required")
	}

	var root wireNode
	if err := decodeStrict(trimmed, &root); err != nil {
		return Document{}, malformed("", "invalid JSON: %v", err)
	}
	if root.Type != KindDocument {
		return Document{}, malformed("", "root must be %q, got %q", KindDocument, root.Type)
	}
	if root.Text != nil {
		return Document{}, malformed("", "document cannot carry text")
	}

	doc := Document{Children: make([]Block, 0, len(root.Content))}
	for i, rawChild := range root.Content {
		path := fmt.Sprintf("content[%d]", i)
		block, err := parseBlock(path, rawChild)
		if err != nil {
			return Document{}, err
		}
		doc.Children = append(doc.Children, block)
	}

	if err := Validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func parseBlock(path string, raw json.RawMessage) (Block, error) {
	var node wireNode
	if err := decodeStrict(raw, &node); err != nil {
		return nil, malformed(path, "invalid node: %v", err)
	}
	switch node.Type {
	case KindParagraph:
		if node.Text != nil {
			return nil, malformed(path, "paragraph cannot carry text")
		}
		p := Paragraph{Children: make([]Inline, 0, len(node.Content))}
		for i, rawChild := range node.Content {
			childPath := fmt.Sprintf("%s.content[%d]", path, i)
			inline, err := parseInline(childPath, rawChild)
			if err != nil {
				return nil, err
			}
			p.Children = append(p.Children, inline)
		}
		return p, nil
	case KindText:
		return nil, malformed(path, "%q is not a block node", node.Type)
	case KindDocument:
		return nil, malformed(path, "nested document")
	case "":
		return nil, malformed(path, "missing node type")
	default:
		return nil, malformed(path, "unknown node type %q", node.Type)
	}
}

func parseInline(path string, raw json.RawMessage) (Inline, error) {
	var node wireNode
	if err := decodeStrict(raw, &node); err != nil {
		return nil, malformed(path, "invalid node: %v", err)
	}
	switch node.Type {
	case KindText:
		if node.Text == nil {
			return nil, malformed(path, "text node requires a \"text\" field")
		}
		if len(node.Content) > 0 {
			return nil, malformed(path, "text node cannot have children")
		}
		return Text{Value: *node.Text}, nil
	case KindParagraph, KindDocument:
		return nil, malformed(path, "%q is not an inline node", node.Type)
	case "":
		return nil, malformed(path, "missing node type")
	default:
		return nil, malformed(path, "unknown node type %q", node.Type)
	}
}

// decodeStrict rejects fields outside the model (marks, attrs) instead of dropping them.
func decodeStrict(raw []byte, target *wireNode) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// MarshalJSON writes the editor's JSON format. Empty paragraphs omit "content",
// matching what the editor emits for a blank line.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(d))
}

func (d *Document) UnmarshalJSON(raw []byte) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type wireOut struct {
	Type    Kind      `json:"type"`
	Content []wireOut `json:"content,omitempty"`
	Text    *string   `json:"text,omitempty"`
}

func toWire(n Node) wireOut {
	switch v := deref(n).(type) {
	case Document:
		out := wireOut{Type: KindDocument, Content: make([]wireOut, 0, len(v.Children))}
		for _, child := range v.Children {
			out.Content = append(out.Content, toWire(child))
		}
		return out
	case Paragraph:
		out := wireOut{Type: KindParagraph}
		if len(v.Children) > 0 {
			out.Content = make([]wireOut, 0, len(v.Children))
			for _, child := range v.Children {
				out.Content = append(out.Content, toWire(child))
			}
		}
		return out
	case Text:
		value := v.Value
		return wireOut{Type: KindText, Text: &value}
	default:
		return wireOut{}
	}
}
